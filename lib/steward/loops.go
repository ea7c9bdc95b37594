// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package steward

import (
	"context"
	"time"

	"github.com/bureau-foundation/steward/lib/lifecycle"
	"github.com/bureau-foundation/steward/lib/pause"
)

// monitorLoop runs a monitor tick, then sleeps for as long as the tick
// asks: less as the leading company nears the goal.
func (b *Bot) monitorLoop(ctx context.Context) error {
	for {
		interval := b.monitorTick(ctx)
		b.mu.Lock()
		b.nextMonitor = b.clock.Now().Add(interval)
		b.mu.Unlock()

		timer := b.clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// monitorTick refreshes the view of the game, checks the win
// condition, cleans up abandoned companies and reconciles the pause
// state.
func (b *Bot) monitorTick(ctx context.Context) time.Duration {
	b.cleanUnnamed(ctx)

	active := b.store.Snapshot(ctx, true).Active()
	if len(active) == 0 {
		b.reconciler.Evaluate(ctx)
		return b.config.Referee.EmptyInterval
	}

	interval := b.referee.CheckGoal(ctx, active)
	if b.machine.Phase() == lifecycle.Active {
		result := b.monitor.Sweep(ctx, active)
		if len(result.Candidates) > 0 {
			b.logger.Info("abandoned company sweep",
				"year", result.Year,
				"cleaned", len(result.Cleaned),
				"skipped", len(result.Skipped),
				"failed", len(result.Failed),
			)
		}
		b.mu.Lock()
		b.lastSweep = result
		b.mu.Unlock()
	}
	b.reconciler.Evaluate(ctx)
	return interval
}

// every calls fn each interval until ctx is done.
func (b *Bot) every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return nil
	}
	ticker := b.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// refreshCompanies keeps company values current while a round is in
// play. A paused game does not change, so it is left alone.
func (b *Bot) refreshCompanies(ctx context.Context) {
	if b.machine.Phase() != lifecycle.Active || b.reconciler.State() == pause.Paused {
		return
	}
	b.store.RefreshCompanies(ctx)
}

func (b *Bot) sweepCaches(context.Context) {
	if expired := b.store.CleanupExpired(); expired > 0 {
		b.logger.Debug("expired cache records dropped", "count", expired)
	}
}

// maintain drops state that should have been released already: reset
// requests whose timer never fired, idle chat cooldowns, and cleanup
// markers held far longer than any cleanup takes.
func (b *Bot) maintain(context.Context) {
	requests := b.handshake.Sweep()
	cooldowns := b.router.SweepCooldowns(b.config.CooldownRetention)
	markers := b.monitor.ReleaseStale()
	if requests+cooldowns+markers > 0 {
		b.logger.Debug("maintenance sweep", "reset_requests", requests, "cooldowns", cooldowns, "cleanup_markers", markers)
	}
}
