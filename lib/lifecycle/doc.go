// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle tracks where a game is in its round: waiting for
// players, being played, won, or being reset to a fresh map.
//
// [Machine] holds the phase and enforces the allowed edges. The
// [Referee] watches company values for the goal, claims the win
// exactly once, and runs the countdown and map reload.
package lifecycle
