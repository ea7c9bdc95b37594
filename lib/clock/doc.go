// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the time source used by every steward
// component.
//
// Components take a Clock rather than calling time.Now, time.After,
// time.AfterFunc or time.NewTicker directly. Production wiring passes
// Real(); tests pass Fake() and drive time explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	reconciler := pause.New(store, commander, pause.WithClock(c))
//	reconciler.NotifyStateChanged()
//	c.WaitForTimers(1)              // the debounce timer is armed
//	c.Advance(500 * time.Millisecond) // and now it fires
//
// # Timers that are abandoned
//
// A caller that waits on a deadline and may give up early (because a
// response arrived, or its context was cancelled) should use NewTimer
// and Stop it on the way out. Channels from After cannot be
// cancelled, so on a FakeClock they stay pending until time passes
// their deadline and are counted by WaitForTimers. Code whose timers
// are counted by tests uses NewTimer; After is fine for loops that
// always consume the value.
package clock
