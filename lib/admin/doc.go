// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package admin speaks the OpenTTD admin port protocol.
//
// The protocol is a TCP stream of packets. Each packet is a 3-byte
// header (uint16 little-endian total size including the header, then
// a uint8 packet type) followed by a payload of little-endian integers
// and NUL-terminated UTF-8 strings.
//
// [Dial] connects and logs in; the returned [Conn] reads packets on a
// background goroutine into a queue. The owner drains the queue with
// [Conn.Drain] whenever [Conn.Ready] fires and hands each packet to a
// [Dispatcher], which decodes it and calls the matching handler.
// Company numbers are converted to the 1-based numbering the server
// console uses before any handler sees them.
package admin
