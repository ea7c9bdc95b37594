// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package control is the steward daemon's local control socket.
//
// The protocol is one CBOR request and one CBOR response per Unix
// socket connection. A request is a map with an "action" field plus
// action-specific fields; the response is a [Response] envelope whose
// Data holds the action's result. [Server] handles the socket side,
// [Register] installs the steward actions on a server, and [Client] is
// what the steward CLI uses to call them.
//
// Actions:
//
//	status     every server, or the one named by "server"
//	companies  cached companies of "server"
//	clients    cached clients of "server"
//	rcon       run "command" on "server" and return its output
package control
