// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rcon

import (
	"sync"
	"time"

	"github.com/bureau-foundation/steward/lib/clock"
)

// BreakerState is the externally visible breaker position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// Breaker counts consecutive failures. At threshold it opens and
// rejects calls until cooldown has passed since the last failure; then
// one trial call is allowed. A successful trial closes the breaker, a
// failed one re-opens it for another cooldown.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	clock     clock.Clock

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	open        bool
	trial       bool
}

// NewBreaker returns a closed breaker.
func NewBreaker(threshold int, cooldown time.Duration, clk clock.Clock) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, clock: clk}
}

// Allow returns nil if a call may proceed. When it returns nil for a
// half-open breaker the caller holds the single trial and must report
// the outcome with Success, Failure or Abandon.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}
	if b.trial || b.clock.Now().Sub(b.lastFailure) < b.cooldown {
		return ErrCircuitOpen
	}
	b.trial = true
	return nil
}

// Success closes the breaker and clears the failure count.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
	b.trial = false
}

// Failure records a failed call and reports whether the breaker is now
// open.
func (b *Breaker) Failure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.clock.Now()
	b.trial = false
	if b.failures >= b.threshold {
		b.open = true
	}
	return b.open
}

// Abandon releases a trial whose call ended without a verdict, such as
// a cancelled context.
func (b *Breaker) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false
}

// State reports the breaker position as of now.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case !b.open:
		return BreakerClosed
	case b.clock.Now().Sub(b.lastFailure) >= b.cooldown:
		return BreakerHalfOpen
	default:
		return BreakerOpen
	}
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
