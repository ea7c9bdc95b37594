// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/steward/lib/gamestate"
)

// Sender delivers one chat line.
type Sender interface {
	Broadcast(line string) error
	Whisper(client uint32, line string) error
}

// outboxCapacity bounds queued lines. Lines beyond it are dropped.
const outboxCapacity = 256

type outgoing struct {
	client gamestate.ClientID
	line   string
}

// Outbox queues server messages and sends them one line at a time.
type Outbox struct {
	sender  Sender
	limiter *rate.Limiter
	logger  *slog.Logger
	queue   chan outgoing

	mu      sync.Mutex
	dropped int
}

// NewOutbox creates an outbox sending at most one line per interval.
// A zero interval disables the limit.
func NewOutbox(sender Sender, interval time.Duration, logger *slog.Logger) *Outbox {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Outbox{
		sender:  sender,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		queue:   make(chan outgoing, outboxCapacity),
	}
}

// Broadcast queues message for every client.
func (o *Outbox) Broadcast(message string) { o.enqueue(0, message) }

// Tell queues message for one client.
func (o *Outbox) Tell(client gamestate.ClientID, message string) { o.enqueue(client, message) }

func (o *Outbox) enqueue(client gamestate.ClientID, message string) {
	for _, line := range strings.Split(message, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		select {
		case o.queue <- outgoing{client: client, line: line}:
		default:
			o.mu.Lock()
			o.dropped++
			o.mu.Unlock()
			o.logger.Warn("chat outbox full, dropping line", "client", client, "line", line)
		}
	}
}

// Dropped returns how many lines were discarded because the queue was
// full.
func (o *Outbox) Dropped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// Run sends queued lines until ctx is done.
func (o *Outbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-o.queue:
			if err := o.limiter.Wait(ctx); err != nil {
				return
			}
			var err error
			if message.client == 0 {
				err = o.sender.Broadcast(message.line)
			} else {
				err = o.sender.Whisper(uint32(message.client), message.line)
			}
			if err != nil {
				o.logger.Warn("chat send failed", "client", message.client, "error", err)
			}
		}
	}
}
