// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the timeout safety valve
// (select with a time.After fallback) so individual tests never call
// time.After themselves. They are the only place tests wait on the
// wall clock; everything else runs on lib/clock's fake.
//
// [RequireEmpty] asserts that nothing is waiting on a channel without
// blocking, for checks made at a known quiet point.
//
// [SocketDir] creates a short directory for Unix sockets, whose paths
// are limited to 108 bytes.
//
// All helpers call t.Fatalf on failure.
package testutil
