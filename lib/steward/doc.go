// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package steward runs the automation for one game server connection.
//
// A [Bot] owns one admin connection and everything built on it: the
// console command gateway, the company and client store, the pause
// reconciler, the round lifecycle, abandoned company cleanup, the
// reset handshake and chat. [Bot.Run] drives it until the connection
// drops or the context ends; the daemon reconnects by building a new
// Bot.
//
// Exactly one goroutine drains the connection: before the background
// loops start, the startup sequence drains it while waiting for its
// own console responses; afterwards the pump loop does. Packet
// handlers only update state and schedule work. Anything that issues
// a console command runs on its own goroutine, because its response
// can only arrive through the pump it would otherwise be blocking.
package steward
