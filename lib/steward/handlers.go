// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package steward

import (
	"context"
	"time"

	"github.com/bureau-foundation/steward/lib/admin"
	"github.com/bureau-foundation/steward/lib/chat"
	"github.com/bureau-foundation/steward/lib/gamestate"
)

func (b *Bot) newDispatcher() *admin.Dispatcher {
	return &admin.Dispatcher{
		OnNewGame:  b.newGame,
		OnShutdown: func() { b.logger.Warn("server shutting down") },
		OnDate: func(date time.Time) {
			b.mu.Lock()
			b.gameDate = date
			b.mu.Unlock()
		},
		OnClientJoin: func(id gamestate.ClientID) {
			b.logger.Info("client joined", "client", id)
			if err := b.link.Poll(admin.UpdateClientInfo, uint32(id)); err != nil {
				b.logger.Warn("client info poll failed", "client", id, "error", err)
			}
			b.greeter.Greet(id)
			b.spawn(b.cleanUnnamed)
		},
		OnClientInfo:   func(info admin.ClientInfo) { b.store.PutClient(info.Client) },
		OnClientUpdate: func(update admin.ClientUpdate) { b.store.PutClientUpdate(update.ID, update.Name, update.Company) },
		OnClientQuit:   b.clientGone,
		OnClientError: func(clientError admin.ClientError) {
			b.logger.Info("client dropped with error", "client", clientError.ID, "code", clientError.Code)
			b.clientGone(clientError.ID)
		},
		OnCompanyNew: func(id gamestate.CompanyID) {
			b.logger.Info("company founded", "company", id)
			raw, ok := id.Protocol()
			if !ok {
				return
			}
			if err := b.link.Poll(admin.UpdateCompanyInfo, uint32(raw)); err != nil {
				b.logger.Warn("company info poll failed", "company", id, "error", err)
			}
		},
		OnCompanyInfo:   func(info admin.CompanyInfo) { b.store.PutCompanyInfo(info.Company) },
		OnCompanyUpdate: func(update admin.CompanyUpdate) { b.store.PutCompanyName(update.ID, update.Name) },
		OnCompanyRemove: func(removal admin.CompanyRemoval) {
			b.logger.Info("company removed by server", "company", removal.ID, "reason", removal.Reason)
			b.store.RemoveCompany(removal.ID)
		},
		OnCompanyEconomy: func(economy admin.CompanyEconomy) {
			b.store.PutCompanyEconomy(economy.ID, economy.Money, economy.Loan)
		},
		OnChat:    b.chat,
		OnRcon:    func(_ uint16, line string) { b.gateway.HandleLine(line) },
		OnRconEnd: b.gateway.HandleEnd,
		OnConsole: func(console admin.Console) {
			b.logger.Debug("server console", "origin", console.Origin, "text", console.Text)
		},
	}
}

func (b *Bot) chat(message admin.Chat) {
	switch message.Action {
	case admin.ActionChat, admin.ActionChatCompany, admin.ActionChatClient:
	default:
		return
	}
	if message.Client == gamestate.ServerClient || !chat.IsCommand(message.Message) {
		return
	}
	b.spawn(func(ctx context.Context) {
		b.router.Handle(ctx, message.Client, message.Message)
	})
}

func (b *Bot) clientGone(id gamestate.ClientID) {
	b.logger.Info("client left", "client", id)
	b.greeter.Forget(id)
	b.router.Forget(id)
	b.store.RemoveClient(id)
}

// newGame handles the server starting a new map, whether or not the
// steward asked for it.
func (b *Bot) newGame() {
	b.logger.Info("new game started")
	b.store.Clear()
	b.reconciler.Forget()
	b.spawn(b.cleanUnnamed)
}

func (b *Bot) cleanUnnamed(ctx context.Context) {
	if id, ok := b.monitor.CleanUnnamed(ctx); ok {
		b.logger.Info("removed unnamed company", "company", id)
	}
}

// stateChanged fans store changes out to the reconciler and the
// handshake. It runs on whichever goroutine changed the store and must
// not block.
func (b *Bot) stateChanged(change gamestate.Change) {
	b.reconciler.NotifyStateChanged()
	switch change.Kind {
	case gamestate.ClientMoved:
		b.handshake.ActorMoved(change.Client, change.Previous, change.Company)
	case gamestate.ClientLeft:
		b.handshake.ActorLeft(change.Client)
	case gamestate.CompanyRemoved:
		b.handshake.CompanyRemoved(change.Company)
	}
}

// scenarioLoaded runs after the referee loaded the next map.
func (b *Bot) scenarioLoaded(ctx context.Context) {
	b.store.Clear()
	b.reconciler.Forget()
	b.cleanUnnamed(ctx)
	b.reconciler.NotifyStateChanged()
}
