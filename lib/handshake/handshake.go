// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bureau-foundation/steward/lib/clock"
	"github.com/bureau-foundation/steward/lib/gamestate"
)

var (
	ErrAlreadyPending = errors.New("handshake: reset already pending")
	ErrNotInCompany   = errors.New("handshake: client is not playing for a company")
	ErrNoPending      = errors.New("handshake: no pending reset")

	// ErrMismatchCancelled is the kind of every *StaleActorError.
	ErrMismatchCancelled = errors.New("handshake: reset cancelled, company changed")

	ErrTargetGone = errors.New("handshake: company no longer exists")
)

// StaleActorError reports that the actor's company at execution time
// did not match what the confirmation expected.
type StaleActorError struct {
	Actor    gamestate.ClientID
	Expected gamestate.CompanyID
	Actual   gamestate.CompanyID
}

func (e *StaleActorError) Error() string {
	return fmt.Sprintf("client %s expected in company %s, found in %s", e.Actor, e.Expected, e.Actual)
}

func (e *StaleActorError) Unwrap() error { return ErrMismatchCancelled }

// Commander executes a mutating console command.
type Commander interface {
	Execute(ctx context.Context, name string, args ...string) (string, error)
}

// Messenger sends a private message to one client without blocking.
type Messenger interface {
	Tell(client gamestate.ClientID, message string)
}

// State is the part of the game state store the handshake reads and
// updates.
type State interface {
	LookupClient(ctx context.Context, id gamestate.ClientID) (gamestate.Client, bool)
	RefreshClients(ctx context.Context)
	RefreshCompanies(ctx context.Context)
	Company(id gamestate.CompanyID) (gamestate.Company, bool)
	RemoveCompany(id gamestate.CompanyID)
}

// Config tunes the handshake.
type Config struct {
	// Timeout is how long a request waits for confirmation.
	Timeout time.Duration

	// ImplicitConfirm treats moving from the requested company to
	// spectators as confirmation.
	ImplicitConfirm bool

	// SettleDelay separates moving the player out and resetting the
	// company.
	SettleDelay time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		SettleDelay: 200 * time.Millisecond,
	}
}

// Pending describes one live request.
type Pending struct {
	Actor   gamestate.ClientID  `json:"actor"`
	Company gamestate.CompanyID `json:"company"`
	Created time.Time           `json:"created"`
}

type request struct {
	Pending
	timer *clock.Timer
}

// Handshake tracks reset requests for one server.
type Handshake struct {
	state     State
	commander Commander
	messenger Messenger
	config    Config
	clock     clock.Clock
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	work   sync.WaitGroup

	mu      sync.Mutex
	pending map[gamestate.ClientID]*request
}

// New creates a handshake with no pending requests.
func New(state State, commander Commander, messenger Messenger, config Config, clk clock.Clock, logger *slog.Logger) *Handshake {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handshake{
		state:     state,
		commander: commander,
		messenger: messenger,
		config:    config,
		clock:     clk,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		pending:   make(map[gamestate.ClientID]*request),
	}
}

// Request opens a reset request for the company actor is playing for.
// A second request while one is pending is rejected and leaves the
// first untouched.
func (h *Handshake) Request(ctx context.Context, actor gamestate.ClientID) error {
	h.mu.Lock()
	_, exists := h.pending[actor]
	h.mu.Unlock()
	if exists {
		return ErrAlreadyPending
	}

	client, ok := h.state.LookupClient(ctx, actor)
	if !ok || !client.Company.Valid() {
		return ErrNotInCompany
	}

	h.mu.Lock()
	if _, exists := h.pending[actor]; exists {
		h.mu.Unlock()
		return ErrAlreadyPending
	}
	req := &request{Pending: Pending{Actor: actor, Company: client.Company, Created: h.clock.Now()}}
	req.timer = h.clock.AfterFunc(h.config.Timeout, func() { h.expire(req) })
	h.pending[actor] = req
	h.mu.Unlock()

	h.logger.Info("reset requested", "client", actor, "company", client.Company)
	how := "Type !yes to confirm"
	if h.config.ImplicitConfirm {
		how = "Type !yes or move to spectators to confirm"
	}
	h.messenger.Tell(actor, fmt.Sprintf("=== Reset Company %s ===\nThis DELETES your company!\n%s (%ds timeout)",
		client.Company, how, int(h.config.Timeout/time.Second)))
	return nil
}

// Confirm executes actor's pending request, provided actor is still
// playing for the requested company.
func (h *Handshake) Confirm(ctx context.Context, actor gamestate.ClientID) error {
	req := h.take(actor)
	if req == nil {
		return ErrNoPending
	}
	return h.execute(ctx, req, req.Company)
}

// ActorMoved reacts to a client changing company. With implicit
// confirmation enabled, a move from the requested company to
// spectators confirms the request; any other move cancels it.
func (h *Handshake) ActorMoved(actor gamestate.ClientID, from, to gamestate.CompanyID) {
	h.mu.Lock()
	req, ok := h.pending[actor]
	if !ok {
		h.mu.Unlock()
		return
	}
	h.removeLocked(req)
	h.mu.Unlock()

	if h.config.ImplicitConfirm && from == req.Company && to == gamestate.Spectator {
		h.work.Add(1)
		go func() {
			defer h.work.Done()
			if err := h.execute(h.ctx, req, gamestate.Spectator); err != nil {
				h.logger.Warn("implicit reset confirmation failed", "client", actor, "error", err)
			}
		}()
		return
	}

	h.logger.Info("reset cancelled, client switched company", "client", actor, "from", from, "to", to)
	h.messenger.Tell(actor, "Reset cancelled: you switched companies")
}

// ActorLeft cancels the request of a client that disconnected.
func (h *Handshake) ActorLeft(actor gamestate.ClientID) {
	if req := h.take(actor); req != nil {
		h.logger.Info("reset cancelled, client left", "client", actor, "company", req.Company)
	}
}

// CompanyRemoved cancels every request targeting company.
func (h *Handshake) CompanyRemoved(company gamestate.CompanyID) {
	h.mu.Lock()
	var cancelled []*request
	for _, req := range h.pending {
		if req.Company == company {
			cancelled = append(cancelled, req)
		}
	}
	for _, req := range cancelled {
		h.removeLocked(req)
	}
	h.mu.Unlock()

	for _, req := range cancelled {
		h.logger.Info("reset cancelled, company removed", "client", req.Actor, "company", company)
		h.messenger.Tell(req.Actor, fmt.Sprintf("Reset cancelled: company %s was removed", company))
	}
}

// Sweep drops requests older than the timeout whose timer never fired
// and returns how many were dropped.
func (h *Handshake) Sweep() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	cutoff := h.clock.Now().Add(-h.config.Timeout)
	dropped := 0
	for _, req := range h.pending {
		if !req.Created.After(cutoff) {
			h.removeLocked(req)
			dropped++
		}
	}
	return dropped
}

// Pending lists live requests ordered by actor.
func (h *Handshake) Pending() []Pending {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := make([]Pending, 0, len(h.pending))
	for _, req := range h.pending {
		list = append(list, req.Pending)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Actor < list[j].Actor })
	return list
}

// Close cancels every request and waits for confirmations already
// executing.
func (h *Handshake) Close() {
	h.mu.Lock()
	for _, req := range h.pending {
		h.removeLocked(req)
	}
	h.mu.Unlock()
	h.cancel()
	h.work.Wait()
}

func (h *Handshake) take(actor gamestate.ClientID) *request {
	h.mu.Lock()
	defer h.mu.Unlock()
	req, ok := h.pending[actor]
	if !ok {
		return nil
	}
	h.removeLocked(req)
	return req
}

func (h *Handshake) removeLocked(req *request) {
	if h.pending[req.Actor] == req {
		delete(h.pending, req.Actor)
	}
	req.timer.Stop()
}

func (h *Handshake) expire(req *request) {
	h.mu.Lock()
	if h.pending[req.Actor] != req {
		h.mu.Unlock()
		return
	}
	delete(h.pending, req.Actor)
	h.mu.Unlock()

	h.logger.Info("reset request expired", "client", req.Actor, "company", req.Company)
	h.messenger.Tell(req.Actor, "Reset request expired. Use !reset to start again")
}

// execute re-verifies the actor's company and then deletes the
// requested one. expect is where the actor should be right now: the
// requested company for !yes, spectators for an implicit confirmation.
func (h *Handshake) execute(ctx context.Context, req *request, expect gamestate.CompanyID) error {
	if err := h.verifyActor(ctx, req, expect); err != nil {
		return err
	}

	h.state.RefreshCompanies(ctx)
	if _, ok := h.state.Company(req.Company); !ok {
		h.messenger.Tell(req.Actor, fmt.Sprintf("Company %s no longer exists.", req.Company))
		return ErrTargetGone
	}

	// The refresh above may have taken long enough for the actor to
	// move again.
	h.state.RefreshClients(ctx)
	if err := h.verifyActor(ctx, req, expect); err != nil {
		return err
	}

	h.logger.Info("reset confirmed", "client", req.Actor, "company", req.Company)
	if expect != gamestate.Spectator {
		if _, err := h.commander.Execute(ctx, "move", req.Actor.String(), strconv.Itoa(int(gamestate.Spectator))); err != nil {
			h.messenger.Tell(req.Actor, "Reset failed: could not move you to spectators")
			return fmt.Errorf("moving client %s to spectators: %w", req.Actor, err)
		}
		h.settle(ctx)
	}

	if _, err := h.commander.Execute(ctx, "reset_company", req.Company.String()); err != nil {
		h.messenger.Tell(req.Actor, fmt.Sprintf("Reset of company %s failed", req.Company))
		return fmt.Errorf("resetting company %s: %w", req.Company, err)
	}
	h.state.RemoveCompany(req.Company)
	h.messenger.Tell(req.Actor, fmt.Sprintf("Company %s reset", req.Company))
	h.logger.Info("company reset by owner", "client", req.Actor, "company", req.Company)
	return nil
}

func (h *Handshake) verifyActor(ctx context.Context, req *request, expect gamestate.CompanyID) error {
	client, ok := h.state.LookupClient(ctx, req.Actor)
	actual := gamestate.Spectator
	if ok {
		actual = client.Company
	}
	if ok && actual == expect {
		return nil
	}

	stale := &StaleActorError{Actor: req.Actor, Expected: expect, Actual: actual}
	h.logger.Info("reset cancelled, company mismatch", "client", req.Actor, "expected", expect, "actual", actual)
	where := "company " + actual.String()
	if actual == gamestate.Spectator {
		where = "spectators"
	}
	h.messenger.Tell(req.Actor, fmt.Sprintf("Reset cancelled: you requested a reset of company %s but are now in %s. "+
		"Run !reset again from the company you want to delete.", req.Company, where))
	return stale
}

func (h *Handshake) settle(ctx context.Context) {
	if h.config.SettleDelay <= 0 {
		return
	}
	timer := h.clock.NewTimer(h.config.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
