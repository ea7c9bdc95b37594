// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gamestate holds the steward's view of one game server: the
// companies that exist and the clients connected to it.
//
// The view is fed from two directions. Push notifications from the
// admin port (client joined, company renamed, company removed) update
// single records as they arrive. Pull refreshes run the "companies"
// and "clients" console commands and replace every record the output
// mentions. The two sources can disagree for a moment; the later write
// wins, and code about to do something destructive re-reads first.
//
// Company identifiers are the 1-based numbers players see in game and
// in console output. The admin protocol numbers companies from zero;
// [CompanyFromProtocol] converts at the boundary and keeps the
// spectator sentinel (255) as is. Any other number past the last slot
// becomes [InvalidCompany], which the admin decoder rejects.
package gamestate
