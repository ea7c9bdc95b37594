// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lrucache is a size-bounded, time-bounded key/value cache.
//
// Recency ordering and capacity eviction come from hashicorp's
// simplelru; this package adds a fixed per-entry TTL measured against
// an injected clock.Clock, and a mutex so that the push-notification
// handler and the refresh path can write while chat commands and the
// monitor read. Expired entries are dropped lazily on Get and Items
// and eagerly by CleanupExpired, which the steward runs on a timer.
package lrucache
