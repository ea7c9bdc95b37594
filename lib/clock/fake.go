// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"container/heap"
	"sync"
	"time"
)

// Fake returns a FakeClock that starts at initial and moves only when
// Advance is called.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests. Pending timers live in
// a deadline-ordered queue; Advance pops and fires them in order.
//
// AfterFunc callbacks run synchronously inside Advance with the clock
// unlocked, and Now reports the firing timer's deadline while the
// callback runs. Callbacks may schedule further timers; ones that fall
// inside the advanced window fire during the same Advance. Callbacks
// must not call Advance.
type FakeClock struct {
	mu       sync.Mutex
	current  time.Time
	queue    waiterQueue
	sequence uint64
	changed  *sync.Cond
}

type fakeWaiter struct {
	deadline time.Time

	// sequence breaks deadline ties in registration order.
	sequence uint64

	// index is the waiter's position in the queue, or -1 when it is
	// not pending.
	index int

	channel  chan time.Time
	callback func()

	// interval is non-zero for tickers, which are re-queued after
	// each fire.
	interval time.Duration
}

type waiterQueue []*fakeWaiter

func (q waiterQueue) Len() int { return len(q) }

func (q waiterQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].sequence < q[j].sequence
	}
	return q[i].deadline.Before(q[j].deadline)
}

func (q waiterQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waiterQueue) Push(x any) {
	waiter := x.(*fakeWaiter)
	waiter.index = len(*q)
	*q = append(*q, waiter)
}

func (q *waiterQueue) Pop() any {
	old := *q
	last := len(old) - 1
	waiter := old[last]
	old[last] = nil
	waiter.index = -1
	*q = old[:last]
	return waiter
}

// scheduleLocked queues waiter to fire d from now. Caller holds c.mu.
func (c *FakeClock) scheduleLocked(waiter *fakeWaiter, d time.Duration) {
	c.sequence++
	waiter.sequence = c.sequence
	waiter.deadline = c.current.Add(d)
	heap.Push(&c.queue, waiter)
	c.changed.Broadcast()
}

// cancelLocked removes waiter from the queue and reports whether it
// was pending. Caller holds c.mu.
func (c *FakeClock) cancelLocked(waiter *fakeWaiter) bool {
	if waiter.index < 0 {
		return false
	}
	heap.Remove(&c.queue, waiter.index)
	c.changed.Broadcast()
	return true
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock has advanced by
// d. A non-positive d yields a channel that is already ready.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	return c.NewTimer(d).C
}

// NewTimer returns a stoppable timer. A stopped timer no longer counts
// toward WaitForTimers.
func (c *FakeClock) NewTimer(d time.Duration) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	waiter := &fakeWaiter{index: -1, channel: channel}
	if d <= 0 {
		channel <- c.current
	} else {
		c.scheduleLocked(waiter, d)
	}
	return c.timerFor(waiter)
}

// AfterFunc schedules f to run during the Advance that crosses d. A
// non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	waiter := &fakeWaiter{index: -1, callback: f}
	if d <= 0 {
		f()
		return c.timerFor(waiter)
	}

	c.mu.Lock()
	c.scheduleLocked(waiter, d)
	c.mu.Unlock()
	return c.timerFor(waiter)
}

func (c *FakeClock) timerFor(waiter *fakeWaiter) *Timer {
	return &Timer{
		C: waiter.channel,
		stop: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.cancelLocked(waiter)
		},
		reset: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			wasPending := c.cancelLocked(waiter)
			c.scheduleLocked(waiter, d)
			return wasPending
		},
	}
}

// NewTicker returns a Ticker firing every d. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	waiter := &fakeWaiter{index: -1, channel: channel, interval: d}
	c.scheduleLocked(waiter, d)

	return &Ticker{
		C: channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.cancelLocked(waiter)
		},
		reset: func(d time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.cancelLocked(waiter)
			waiter.interval = d
			c.scheduleLocked(waiter, d)
		},
	}
}

// Sleep blocks until the clock has advanced by d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d, firing every timer whose
// deadline falls inside the window in deadline order. Channel sends
// never block; a tick into a full channel is dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)

	for len(c.queue) > 0 && !c.queue[0].deadline.After(target) {
		waiter := heap.Pop(&c.queue).(*fakeWaiter)
		if waiter.deadline.After(c.current) {
			c.current = waiter.deadline
		}
		fired := waiter.deadline
		if waiter.interval > 0 {
			c.sequence++
			waiter.sequence = c.sequence
			waiter.deadline = waiter.deadline.Add(waiter.interval)
			heap.Push(&c.queue, waiter)
		}
		c.changed.Broadcast()

		c.mu.Unlock()
		if waiter.callback != nil {
			waiter.callback()
		} else {
			select {
			case waiter.channel <- fired:
			default:
			}
		}
		c.mu.Lock()
	}

	c.current = target
	c.mu.Unlock()
}

// WaitForTimers blocks until at least n timers, tickers or sleeps are
// pending. Tests call it before Advance so that a goroutine's timer
// registration cannot race with the advance.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of pending timers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
