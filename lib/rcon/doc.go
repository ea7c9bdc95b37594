// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rcon turns the admin port's asynchronous console channel into
// blocking command calls.
//
// The admin protocol lets a client send one console command and then
// delivers the output as a stream of RCON packets closed by an
// RCON_END packet. Nothing in the stream identifies which command it
// belongs to, so a [Gateway] allows exactly one command in flight and
// attributes every line that arrives while the slot is held to that
// command. After the end marker the gateway waits a short grace period
// before handing back the buffer, because the server sometimes flushes
// a final line after the marker.
//
// Every attempt goes through a [Breaker]: after a run of attempts that
// timed out or could not be written, attempts are rejected with
// [ErrCircuitOpen] without touching the connection until a cooldown
// has passed, then a single trial attempt is let through.
//
// # Pumping
//
// Inbound packets reach the gateway through [Gateway.HandleLine] and
// [Gateway.HandleEnd], called by whichever goroutine is draining the
// connection. A caller that is itself that goroutine (a packet handler
// issuing a command, or startup code running before the read loop)
// must keep draining while it waits, or its response would never be
// read. Such callers attach a [Pump] to their context with [WithPump];
// every other caller waits passively for the draining goroutine to
// deliver the response.
package rcon
