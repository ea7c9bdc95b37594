// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package steward

import (
	"time"

	"github.com/bureau-foundation/steward/lib/gamestate"
	"github.com/bureau-foundation/steward/lib/handshake"
)

// Status is a point-in-time summary of one bot.
type Status struct {
	Server          string                `json:"server"`
	Phase           string                `json:"phase"`
	Pause           string                `json:"pause"`
	Breaker         string                `json:"breaker"`
	BreakerFailures int                   `json:"breaker_failures"`
	InFlight        string                `json:"in_flight,omitempty"`
	Companies       int                   `json:"companies"`
	ActiveCompanies int                   `json:"active_companies"`
	Clients         int                   `json:"clients"`
	PendingResets   []handshake.Pending   `json:"pending_resets,omitempty"`
	Cleaning        []gamestate.CompanyID `json:"cleaning,omitempty"`
	Started         time.Time             `json:"started"`
	GameDate        time.Time             `json:"game_date,omitzero"`
	NextMonitor     time.Time             `json:"next_monitor,omitzero"`
	LastRefresh     time.Time             `json:"last_refresh,omitzero"`
}

// Status summarizes the bot without touching the server.
func (b *Bot) Status() Status {
	snapshot := b.store.Peek()
	inFlight, _ := b.gateway.InFlight()
	companiesRefreshed, _ := b.store.LastRefresh()
	breaker := b.gateway.Breaker()

	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		Server:          b.config.Name,
		Phase:           string(b.machine.Phase()),
		Pause:           string(b.reconciler.State()),
		Breaker:         string(breaker.State()),
		BreakerFailures: breaker.Failures(),
		InFlight:        inFlight,
		Companies:       len(snapshot.Companies),
		ActiveCompanies: len(snapshot.Active()),
		Clients:         len(snapshot.Clients),
		PendingResets:   b.handshake.Pending(),
		Cleaning:        b.monitor.InProgress(),
		Started:         b.started,
		GameDate:        b.gameDate,
		NextMonitor:     b.nextMonitor,
		LastRefresh:     companiesRefreshed,
	}
}
