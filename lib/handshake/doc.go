// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package handshake implements the two-step confirmation a player goes
// through to delete their own company.
//
// A player asks for a reset with !reset while playing for a company;
// the request remembers that company and expires after a timeout. The
// player then confirms with !yes or, when implicit confirmation is
// enabled, by moving to spectators. Either way the player's company
// is checked again immediately before anything is deleted: if it no
// longer matches the request, the request is cancelled and the player
// is told why. Leaving the server, switching to another company, or
// the company disappearing for any other reason cancels the request.
package handshake
