// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/steward/lib/clock"
	"github.com/bureau-foundation/steward/lib/gamestate"
)

// Commander executes a mutating console command.
type Commander interface {
	Execute(ctx context.Context, name string, args ...string) (string, error)
}

// Broadcaster sends a message to every client.
type Broadcaster interface {
	Broadcast(message string)
}

// RefereeConfig holds the win condition and the round-reset tuning.
type RefereeConfig struct {
	// Goal is the company value that wins the round.
	Goal int64

	// Scenario is loaded with load_scenario to start the next round.
	Scenario string

	// Countdown is the delay between the win announcement and the
	// reload. Checkpoints are the remaining times, in descending
	// order, at which a reminder is broadcast.
	Countdown   time.Duration
	Checkpoints []time.Duration

	// Monitor intervals returned by CheckGoal.
	DefaultInterval time.Duration
	NearInterval    time.Duration // top company at 90% of the goal
	CloseInterval   time.Duration // top company at 95% of the goal
	EmptyInterval   time.Duration // no active companies
}

// DefaultRefereeConfig returns the production tuning.
func DefaultRefereeConfig() RefereeConfig {
	return RefereeConfig{
		Goal:            100_000_000_000,
		Scenario:        "flat2048prodboost.scn",
		Countdown:       20 * time.Second,
		Checkpoints:     []time.Duration{10 * time.Second, 5 * time.Second},
		DefaultInterval: 30 * time.Minute,
		NearInterval:    10 * time.Minute,
		CloseInterval:   3 * time.Minute,
		EmptyInterval:   5 * time.Minute,
	}
}

// Referee decides when a round is won and resets the map.
type Referee struct {
	machine     *Machine
	commander   Commander
	broadcaster Broadcaster
	config      RefereeConfig
	clock       clock.Clock
	logger      *slog.Logger

	// onLoaded runs after a successful scenario load, before the
	// machine returns to Waiting.
	onLoaded func(ctx context.Context)

	countdowns sync.WaitGroup
}

// NewReferee creates a referee driving machine. onLoaded may be nil.
func NewReferee(machine *Machine, commander Commander, broadcaster Broadcaster, config RefereeConfig,
	clk clock.Clock, logger *slog.Logger, onLoaded func(ctx context.Context)) *Referee {
	return &Referee{
		machine:     machine,
		commander:   commander,
		broadcaster: broadcaster,
		config:      config,
		clock:       clk,
		logger:      logger,
		onLoaded:    onLoaded,
	}
}

// Leader returns the most valuable company, breaking ties by lower id.
func Leader(companies map[gamestate.CompanyID]gamestate.Company) (gamestate.Company, bool) {
	ranked := Ranking(companies)
	if len(ranked) == 0 {
		return gamestate.Company{}, false
	}
	return ranked[0], true
}

// Ranking returns companies ordered by value, highest first.
func Ranking(companies map[gamestate.CompanyID]gamestate.Company) []gamestate.Company {
	ranked := make([]gamestate.Company, 0, len(companies))
	for _, company := range companies {
		ranked = append(ranked, company)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Value != ranked[j].Value {
			return ranked[i].Value > ranked[j].Value
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

// CheckGoal inspects the active companies and returns how long the
// monitor should wait before the next check. When the leader has
// reached the goal and the round is Active, the win is claimed and the
// reset countdown starts in the background under ctx.
func (r *Referee) CheckGoal(ctx context.Context, active map[gamestate.CompanyID]gamestate.Company) time.Duration {
	leader, ok := Leader(active)
	if !ok {
		return r.config.EmptyInterval
	}

	if leader.Value >= r.config.Goal {
		if r.machine.ClaimGoal() {
			r.logger.Info("goal reached", "company", leader.ID, "name", leader.Name, "value", leader.Value)
			r.countdowns.Add(1)
			go func() {
				defer r.countdowns.Done()
				r.runReset(ctx, leader)
			}()
		}
		return r.config.DefaultInterval
	}

	ratio := float64(leader.Value) / float64(r.config.Goal)
	switch {
	case ratio >= 0.95:
		return r.config.CloseInterval
	case ratio >= 0.9:
		return r.config.NearInterval
	default:
		return r.config.DefaultInterval
	}
}

// Wait blocks until any running countdown has finished.
func (r *Referee) Wait() { r.countdowns.Wait() }

func (r *Referee) runReset(ctx context.Context, winner gamestate.Company) {
	r.broadcaster.Broadcast(fmt.Sprintf("=== GOAL ACHIEVED ===\nWinner: %s\nGoal: $%s\nMap restart in %ds...",
		winner.Name, gamestate.FormatMoney(r.config.Goal), int(r.config.Countdown/time.Second)))

	remaining := r.config.Countdown
	for _, checkpoint := range r.config.Checkpoints {
		if checkpoint >= remaining || checkpoint <= 0 {
			continue
		}
		if !r.sleep(ctx, remaining-checkpoint) {
			r.logger.Info("reset countdown aborted")
			return
		}
		remaining = checkpoint
		r.broadcaster.Broadcast(fmt.Sprintf("Map reset in %ds...", int(checkpoint/time.Second)))
	}
	if !r.sleep(ctx, remaining) {
		r.logger.Info("reset countdown aborted")
		return
	}

	if err := r.loadScenario(ctx); err != nil {
		r.logger.Error("map reset failed", "scenario", r.config.Scenario, "error", err)
		r.broadcaster.Broadcast("Map reset failed!")
		if err := r.machine.Transition(Active); err != nil {
			r.logger.Warn("could not return to active after failed reset", "error", err)
		}
		return
	}

	if r.onLoaded != nil {
		r.onLoaded(ctx)
	}
	r.broadcaster.Broadcast("New map loaded")
	if err := r.machine.Transition(Waiting); err != nil {
		r.logger.Warn("could not return to waiting after reset", "error", err)
	}
}

func (r *Referee) loadScenario(ctx context.Context) error {
	r.logger.Info("loading scenario", "scenario", r.config.Scenario)
	response, err := r.commander.Execute(ctx, "load_scenario", r.config.Scenario)
	if err != nil {
		return err
	}
	if strings.Contains(strings.ToLower(response), "cannot be found") {
		return fmt.Errorf("scenario %q not found", r.config.Scenario)
	}
	return nil
}

func (r *Referee) sleep(ctx context.Context, d time.Duration) bool {
	timer := r.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
