// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lrucache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/bureau-foundation/steward/lib/clock"
)

type entry[V any] struct {
	value  V
	stored time.Time
}

// Cache maps keys to values that expire ttl after they were last
// stored. When full, storing a new key evicts the least recently used
// entry. Cache is safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu    sync.Mutex
	lru   *simplelru.LRU[K, entry[V]]
	ttl   time.Duration
	clock clock.Clock
}

// New creates a cache holding at most capacity entries, each valid for
// ttl.
func New[K comparable, V any](capacity int, ttl time.Duration, clk clock.Clock) (*Cache[K, V], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lrucache: ttl must be positive, got %v", ttl)
	}
	lru, err := simplelru.NewLRU[K, entry[V]](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("lrucache: %w", err)
	}
	return &Cache[K, V]{lru: lru, ttl: ttl, clock: clk}, nil
}

func (c *Cache[K, V]) expired(e entry[V], now time.Time) bool {
	return now.Sub(e.stored) >= c.ttl
}

// Get returns the value stored under key if it has not expired, and
// marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(e, c.clock.Now()) {
		c.lru.Remove(key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, restarting its TTL. It reports whether
// another entry was evicted to make room.
func (c *Cache[K, V]) Set(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Add(key, entry[V]{value: value, stored: c.clock.Now()})
}

// Update applies fn to the current value under key (the zero value and
// false when absent or expired) and stores the result, all under one
// lock so concurrent updates to the same key do not lose writes.
func (c *Cache[K, V]) Update(key K, fn func(current V, ok bool) V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	if ok && c.expired(e, c.clock.Now()) {
		ok = false
		e = entry[V]{}
	}
	c.lru.Add(key, entry[V]{value: fn(e.value, ok), stored: c.clock.Now()})
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Items returns a copy of every unexpired entry. Expired entries met
// along the way are removed.
func (c *Cache[K, V]) Items() map[K]V {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	items := make(map[K]V, c.lru.Len())
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if c.expired(e, now) {
			c.lru.Remove(key)
			continue
		}
		items[key] = e.value
	}
	return items
}

// CleanupExpired removes every expired entry and returns how many were
// removed.
func (c *Cache[K, V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && c.expired(e, now) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// Clear removes every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len returns the number of stored entries, including expired ones not
// yet collected.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
