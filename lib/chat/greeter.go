// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/steward/lib/clock"
	"github.com/bureau-foundation/steward/lib/gamestate"
)

// Names resolves a client's display name.
type Names interface {
	LookupClient(ctx context.Context, id gamestate.ClientID) (gamestate.Client, bool)
}

// Greeter welcomes clients shortly after they join.
type Greeter struct {
	messenger Messenger
	names     Names
	delay     time.Duration
	clock     clock.Clock
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	work   sync.WaitGroup

	mu      sync.Mutex
	pending map[gamestate.ClientID]*clock.Timer
}

// NewGreeter creates a greeter that waits delay before greeting.
func NewGreeter(messenger Messenger, names Names, delay time.Duration, clk clock.Clock, logger *slog.Logger) *Greeter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Greeter{
		messenger: messenger,
		names:     names,
		delay:     delay,
		clock:     clk,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		pending:   make(map[gamestate.ClientID]*clock.Timer),
	}
}

// Greet schedules a welcome for client. A greeting already scheduled
// for the same client is replaced.
func (g *Greeter) Greet(client gamestate.ClientID) {
	if client == gamestate.ServerClient {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx.Err() != nil {
		return
	}
	if timer, ok := g.pending[client]; ok {
		timer.Stop()
		delete(g.pending, client)
	}
	if g.delay <= 0 {
		g.work.Add(1)
		go func() {
			defer g.work.Done()
			g.send(client)
		}()
		return
	}
	var timer *clock.Timer
	timer = g.clock.AfterFunc(g.delay, func() {
		g.mu.Lock()
		if g.pending[client] != timer {
			g.mu.Unlock()
			return
		}
		delete(g.pending, client)
		g.work.Add(1)
		g.mu.Unlock()
		defer g.work.Done()
		g.send(client)
	})
	g.pending[client] = timer
}

// Forget cancels the greeting of a client that left.
func (g *Greeter) Forget(client gamestate.ClientID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if timer, ok := g.pending[client]; ok {
		timer.Stop()
		delete(g.pending, client)
	}
}

// Close cancels every scheduled greeting and waits for greetings
// being sent.
func (g *Greeter) Close() {
	g.mu.Lock()
	g.cancel()
	for client, timer := range g.pending {
		timer.Stop()
		delete(g.pending, client)
	}
	g.mu.Unlock()
	g.work.Wait()
}

func (g *Greeter) send(client gamestate.ClientID) {
	name := "C" + client.String()
	if record, ok := g.names.LookupClient(g.ctx, client); ok && record.Name != "" {
		name = record.Name
	}
	g.logger.Info("greeting client", "client", client, "name", name)
	g.messenger.Tell(client, "Welcome "+name+"! Type !help for commands")
}
