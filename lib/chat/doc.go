// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat handles player-facing chat: the !commands players type,
// the greeting new players receive, and the rate-limited outbox every
// server message goes through.
//
// Nothing in this package blocks the caller on the network. [Outbox]
// queues lines and a single goroutine sends them no faster than the
// server accepts. [Router.Handle] may issue console commands and so
// must be called off the packet pump.
package chat
