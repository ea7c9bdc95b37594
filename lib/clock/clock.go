// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts time operations so that debounce windows, command
// deadlines and periodic loops can be tested deterministically.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// NewTimer returns a Timer whose C channel receives once d has
	// elapsed. Unlike After, the wait can be abandoned with Stop.
	NewTimer(d time.Duration) *Timer

	// AfterFunc calls f once d has elapsed. The returned Timer has a
	// nil C channel and can cancel the call with Stop.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker returns a Ticker delivering ticks every d. Panics if
	// d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks for at least d.
	Sleep(d time.Duration)
}

// Timer is a single scheduled event.
type Timer struct {
	// C delivers the fire time. Nil for AfterFunc timers.
	C <-chan time.Time

	stop  func() bool
	reset func(time.Duration) bool
}

// Stop prevents the timer from firing. It reports whether the call
// stopped a pending timer; false means the timer already fired or was
// already stopped.
func (t *Timer) Stop() bool { return t.stop() }

// Reset reschedules the timer to fire after d and reports whether it
// was pending before the call.
func (t *Timer) Reset(d time.Duration) bool { return t.reset(d) }

// Ticker delivers ticks on C at a fixed interval. C has capacity 1;
// ticks are dropped when the consumer falls behind.
type Ticker struct {
	C <-chan time.Time

	stop  func()
	reset func(time.Duration)
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Reset changes the interval; the next tick arrives d from now.
func (t *Ticker) Reset(d time.Duration) { t.reset(d) }
