// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cleanup removes companies that have been abandoned.
//
// A company is abandoned when it has existed for at least MaxAge game
// years and is still worth less than MinValue. Companies founded in or
// before the base year are never eligible: the server reports that
// year for slots that were never really started.
//
// Each abandoned company is cleaned on its own goroutine, with at most
// Concurrency cleanups talking to the server at once. A company being
// cleaned is marked in progress so a second monitor pass that overlaps
// the first skips it. Cleanup does not roll back: if moving a client
// out fails, the reset is still attempted, and whatever is left over
// is picked up again on the next pass.
//
// The monitor also removes companies that still carry the server's
// placeholder name and have no players, which is what a company left
// behind by a player who quit right after founding looks like.
package cleanup
