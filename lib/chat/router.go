// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/steward/lib/clock"
	"github.com/bureau-foundation/steward/lib/gamestate"
	"github.com/bureau-foundation/steward/lib/handshake"
	"github.com/bureau-foundation/steward/lib/lifecycle"
)

// Messenger sends a private message to one client.
type Messenger interface {
	Tell(client gamestate.ClientID, message string)
}

// Resetter is the reset handshake.
type Resetter interface {
	Request(ctx context.Context, actor gamestate.ClientID) error
	Confirm(ctx context.Context, actor gamestate.ClientID) error
}

// Standings supplies the company list for !cv.
type Standings interface {
	Snapshot(ctx context.Context, fresh bool) gamestate.Snapshot
}

// RouterConfig holds the values the help texts quote.
type RouterConfig struct {
	ServerName  string
	Goal        int64
	DeadAge     int
	DeadValue   int64
	Cooldown    time.Duration
	RankingSize int
}

// DefaultRouterConfig returns the production texts and cooldown.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		ServerName:  "South-East-Asia OpenTTD Server",
		Goal:        100_000_000_000,
		DeadAge:     5,
		DeadValue:   5_000_000,
		Cooldown:    500 * time.Millisecond,
		RankingSize: 10,
	}
}

type cooldown struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type command func(ctx context.Context, client gamestate.ClientID) error

// Router answers chat commands.
type Router struct {
	messenger Messenger
	resetter  Resetter
	standings Standings
	config    RouterConfig
	clock     clock.Clock
	logger    *slog.Logger
	commands  map[string]command

	mu        sync.Mutex
	cooldowns map[gamestate.ClientID]*cooldown
}

// NewRouter creates a router.
func NewRouter(messenger Messenger, resetter Resetter, standings Standings, config RouterConfig,
	clk clock.Clock, logger *slog.Logger) *Router {
	r := &Router{
		messenger: messenger,
		resetter:  resetter,
		standings: standings,
		config:    config,
		clock:     clk,
		logger:    logger,
		cooldowns: make(map[gamestate.ClientID]*cooldown),
	}
	r.commands = map[string]command{
		"help":  r.help,
		"info":  r.info,
		"rules": r.rules,
		"cv":    r.companyValues,
		"reset": r.reset,
		"yes":   r.confirm,
	}
	return r
}

// IsCommand reports whether message is addressed to the router.
func IsCommand(message string) bool {
	return strings.HasPrefix(strings.TrimSpace(message), "!")
}

// Handle runs the command in message on behalf of client. Messages
// that are not commands, unknown commands and repeats inside the
// cooldown are ignored. It reports whether a command ran.
func (r *Router) Handle(ctx context.Context, client gamestate.ClientID, message string) bool {
	message = strings.TrimSpace(message)
	if !strings.HasPrefix(message, "!") {
		return false
	}
	fields := strings.Fields(message[1:])
	if len(fields) == 0 {
		return false
	}
	name := strings.ToLower(fields[0])
	run, ok := r.commands[name]
	if !ok {
		return false
	}
	if !r.allow(client) {
		r.logger.Debug("chat command in cooldown", "client", client, "command", name)
		return false
	}

	r.logger.Info("chat command", "client", client, "command", name)
	if err := run(ctx, client); err != nil {
		r.logger.Error("chat command failed", "client", client, "command", name, "error", err)
		r.messenger.Tell(client, "Command failed")
	}
	return true
}

func (r *Router) allow(client gamestate.ClientID) bool {
	if r.config.Cooldown <= 0 {
		return true
	}
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cooldowns[client]
	if !ok {
		entry = &cooldown{limiter: rate.NewLimiter(rate.Every(r.config.Cooldown), 1)}
		r.cooldowns[client] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// SweepCooldowns forgets clients that have not used a command for
// olderThan and returns how many were forgotten.
func (r *Router) SweepCooldowns(olderThan time.Duration) int {
	cutoff := r.clock.Now().Add(-olderThan)
	r.mu.Lock()
	defer r.mu.Unlock()
	swept := 0
	for client, entry := range r.cooldowns {
		if entry.lastSeen.Before(cutoff) {
			delete(r.cooldowns, client)
			swept++
		}
	}
	return swept
}

// Forget drops the cooldown of a client that left.
func (r *Router) Forget(client gamestate.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cooldowns, client)
}

func (r *Router) help(_ context.Context, client gamestate.ClientID) error {
	r.messenger.Tell(client, "Commands: !info, !rules, !cv, !reset")
	return nil
}

func (r *Router) info(_ context.Context, client gamestate.ClientID) error {
	r.messenger.Tell(client, strings.Join([]string{
		"=== Server Info ===",
		r.config.ServerName,
		"Gamescript: Production Booster on primary industries",
		"Transport >70% boosts production, <50% reduces",
		fmt.Sprintf("Goal: First company value $%s wins", gamestate.FormatMoney(r.config.Goal)),
	}, "\n"))
	return nil
}

func (r *Router) rules(_ context.Context, client gamestate.ClientID) error {
	r.messenger.Tell(client, strings.Join([]string{
		"=== Rules ===",
		"1. No griefing/sabotage",
		"2. No blocking players",
		"3. No cheating/exploits",
		"4. Be respectful",
		fmt.Sprintf("5. Inactive >%dy & <$%s auto-reset", r.config.DeadAge, gamestate.FormatMoney(r.config.DeadValue)),
		"6. Admin decisions final",
	}, "\n"))
	return nil
}

func (r *Router) companyValues(ctx context.Context, client gamestate.ClientID) error {
	ranking := lifecycle.Ranking(r.standings.Snapshot(ctx, true).Active())
	if len(ranking) == 0 {
		r.messenger.Tell(client, "No companies")
		return nil
	}
	if len(ranking) > r.config.RankingSize {
		ranking = ranking[:r.config.RankingSize]
	}
	lines := []string{"=== Company Value Rankings ==="}
	for i, company := range ranking {
		percent := 0.0
		if r.config.Goal > 0 {
			percent = float64(company.Value) / float64(r.config.Goal) * 100
		}
		lines = append(lines, fmt.Sprintf("%d. %s (#%s): $%s (%.1f%%)",
			i+1, company.Name, company.ID, gamestate.FormatMoney(company.Value), percent))
	}
	r.messenger.Tell(client, strings.Join(lines, "\n"))
	return nil
}

func (r *Router) reset(ctx context.Context, client gamestate.ClientID) error {
	err := r.resetter.Request(ctx, client)
	switch {
	case errors.Is(err, handshake.ErrAlreadyPending):
		r.messenger.Tell(client, "Reset already pending. Type !yes to confirm or wait for timeout.")
	case errors.Is(err, handshake.ErrNotInCompany):
		r.messenger.Tell(client, "Must be in company to reset")
	default:
		return err
	}
	return nil
}

func (r *Router) confirm(ctx context.Context, client gamestate.ClientID) error {
	err := r.resetter.Confirm(ctx, client)
	switch {
	case err == nil:
	case errors.Is(err, handshake.ErrNoPending):
		r.messenger.Tell(client, "No pending reset. Use !reset first")
	case errors.Is(err, handshake.ErrMismatchCancelled), errors.Is(err, handshake.ErrTargetGone):
		// The handshake has already explained the cancellation.
		r.logger.Info("reset confirmation cancelled", "client", client, "reason", err)
	default:
		// Failures past verification have been reported by the
		// handshake too.
		r.logger.Warn("reset confirmation failed", "client", client, "error", err)
	}
	return nil
}
