// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pause keeps the game paused while nobody is playing.
//
// The [Reconciler] compares the desired state (paused exactly when no
// company is active) with the state it last commanded and issues
// "pause" or "unpause" when they differ. Change notifications are
// debounced, the pause edge waits out a grace period so a player
// switching companies does not flap the game, and the unpause edge is
// rate limited.
package pause
