// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rcon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/steward/lib/clock"
)

// Sender writes one console command to the admin connection.
type Sender interface {
	SendRcon(command string) error
}

// Config tunes a Gateway. Start from DefaultConfig; zero durations and
// counts fall back to the defaults, except Grace and RetryDelay, where
// zero is meaningful.
type Config struct {
	// DefaultTimeout bounds commands without an entry in Timeouts.
	DefaultTimeout time.Duration

	// Timeouts maps a command name to its deadline. The deadline
	// covers both waiting for the slot and waiting for the response.
	Timeouts map[string]time.Duration

	// Attempts is the total number of tries for timeouts, rejected
	// responses and attempts refused by an open breaker.
	Attempts int

	// RetryDelay is the base backoff; attempt n waits n*RetryDelay.
	RetryDelay time.Duration

	// Grace is how long after the end marker late lines are still
	// accepted.
	Grace time.Duration

	// BufferLimit caps collected response lines.
	BufferLimit int

	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 5 * time.Second,
		Timeouts: map[string]time.Duration{
			"companies":     3 * time.Second,
			"clients":       3 * time.Second,
			"get_date":      2 * time.Second,
			"reset_company": 5 * time.Second,
			"pause":         2 * time.Second,
			"unpause":       2 * time.Second,
			"load_scenario": 10 * time.Second,
			"move":          2 * time.Second,
		},
		Attempts:         3,
		RetryDelay:       500 * time.Millisecond,
		Grace:            150 * time.Millisecond,
		BufferLimit:      1000,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaults.DefaultTimeout
	}
	if c.Timeouts == nil {
		c.Timeouts = defaults.Timeouts
	}
	if c.Attempts < 1 {
		c.Attempts = defaults.Attempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.Grace < 0 {
		c.Grace = 0
	}
	if c.BufferLimit <= 0 {
		c.BufferLimit = defaults.BufferLimit
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = defaults.BreakerThreshold
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = defaults.BreakerCooldown
	}
	return c
}

// Request is one command invocation.
type Request struct {
	Name string
	Args []string

	// Raw sends Args without escaping.
	Raw bool

	// Timeout overrides the per-name deadline when positive.
	Timeout time.Duration
}

// Gateway serializes console commands over a single admin connection.
type Gateway struct {
	sender  Sender
	config  Config
	breaker *Breaker
	clock   clock.Clock
	logger  *slog.Logger

	mu sync.Mutex

	// busy is held from send until the caller has collected the
	// response (or given up), not merely until the end marker.
	busy bool

	// generation increments whenever the slot changes hands, so a
	// caller whose slot was force-cleared can tell.
	generation uint64

	current        string
	holderDeadline time.Time
	awaitingEnd    bool
	endedAt        time.Time
	lines          []string
	dropped        int

	// changed is closed and replaced on every state change that a
	// waiter might care about.
	changed chan struct{}
}

// NewGateway creates a gateway writing through sender.
func NewGateway(sender Sender, config Config, clk clock.Clock, logger *slog.Logger) *Gateway {
	config = config.withDefaults()
	return &Gateway{
		sender:  sender,
		config:  config,
		breaker: NewBreaker(config.BreakerThreshold, config.BreakerCooldown, clk),
		clock:   clk,
		logger:  logger,
		changed: make(chan struct{}),
	}
}

// Breaker exposes the gateway's circuit breaker for status reporting.
func (g *Gateway) Breaker() *Breaker { return g.breaker }

// Execute runs a mutating command and returns its response text.
// Failures are returned as *CommandError.
func (g *Gateway) Execute(ctx context.Context, name string, args ...string) (string, error) {
	return g.Do(ctx, Request{Name: name, Args: args})
}

// Query runs an idempotent read. A final failure is logged and yields
// an empty string, leaving callers to fall back on cached state.
func (g *Gateway) Query(ctx context.Context, name string, args ...string) string {
	text, err := g.Do(ctx, Request{Name: name, Args: args})
	if err != nil {
		g.logger.Warn("rcon query failed", "command", name, "error", err)
		return ""
	}
	return text
}

// Do runs request through the breaker with retries.
func (g *Gateway) Do(ctx context.Context, request Request) (string, error) {
	command := BuildCommand(request.Name, request.Args, request.Raw)
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = g.timeoutFor(request.Name)
	}

	var lastErr *CommandError
	for attempt := 1; attempt <= g.config.Attempts; attempt++ {
		if attempt > 1 {
			if err := g.backoff(ctx, attempt-1); err != nil {
				return "", err
			}
		}

		// Every attempt goes through the breaker on its own, so a
		// rejected attempt is retried after the backoff like any
		// other and never reaches the connection.
		if err := g.breaker.Allow(); err != nil {
			lastErr = &CommandError{Command: command, Kind: ErrCircuitOpen, Attempts: attempt}
			continue
		}

		text, err := g.roundTrip(ctx, command, timeout)
		switch {
		case err == nil && LooksLikeError(text):
			// A server that answers, even with an error, is
			// reachable; the breaker only counts silence.
			g.breaker.Abandon()
			g.logger.Warn("rcon command rejected",
				"command", command,
				"attempt", attempt,
				"response", truncate(text, 200),
			)
			lastErr = &CommandError{Command: command, Kind: ErrValidation, Response: text, Attempts: attempt}
			continue
		case err == nil:
			g.breaker.Success()
			return text, nil
		case errors.Is(err, ErrTransport):
			g.breaker.Failure()
			return "", &CommandError{Command: command, Kind: ErrTransport, Cause: err, Attempts: attempt}
		case ctx.Err() != nil:
			g.breaker.Abandon()
			return "", ctx.Err()
		}
		if g.breaker.Failure() {
			g.logger.Warn("rcon circuit breaker open", "command", command, "failures", g.breaker.Failures())
		}
		g.logger.Debug("rcon attempt failed", "command", command, "attempt", attempt, "error", err)
		lastErr = &CommandError{Command: command, Kind: ErrTimeout, Attempts: attempt}
	}
	return "", lastErr
}

func (g *Gateway) timeoutFor(name string) time.Duration {
	if timeout, ok := g.config.Timeouts[name]; ok {
		return timeout
	}
	return g.config.DefaultTimeout
}

func (g *Gateway) backoff(ctx context.Context, step int) error {
	delay := g.config.RetryDelay * time.Duration(step)
	if delay <= 0 {
		return nil
	}
	timer := g.clock.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errDeadline = errors.New("deadline")

// roundTrip acquires the slot, sends command and collects the
// response. The slot is always released before it returns.
func (g *Gateway) roundTrip(ctx context.Context, command string, timeout time.Duration) (string, error) {
	deadline := g.clock.NewTimer(timeout)
	defer deadline.Stop()
	pump := PumpFrom(ctx)

	g.mu.Lock()
	for g.busy {
		changed := g.changed
		g.mu.Unlock()

		err := g.wait(ctx, changed, deadline.C, nil, pump)
		if err == errDeadline {
			g.mu.Lock()
			if g.busy && !g.clock.Now().Before(g.holderDeadline) {
				g.logger.Warn("rcon slot stuck, force-clearing",
					"command", command,
					"stuck_on", g.current,
				)
				g.releaseLocked()
			}
			g.mu.Unlock()
			return "", ErrTimeout
		}
		if err != nil {
			return "", err
		}
		g.mu.Lock()
	}

	g.busy = true
	g.generation++
	generation := g.generation
	g.current = command
	g.holderDeadline = g.clock.Now().Add(timeout)
	g.awaitingEnd = true
	g.endedAt = time.Time{}
	g.lines = g.lines[:0]
	g.dropped = 0
	g.mu.Unlock()

	if err := g.sender.SendRcon(command); err != nil {
		g.release(generation)
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}

	var grace *clock.Timer
	defer func() {
		if grace != nil {
			grace.Stop()
		}
	}()

	for {
		g.mu.Lock()
		if !g.busy || g.generation != generation {
			g.mu.Unlock()
			return "", ErrTimeout
		}
		var graceC <-chan time.Time
		if !g.awaitingEnd {
			remaining := g.endedAt.Add(g.config.Grace).Sub(g.clock.Now())
			if remaining <= 0 {
				text := strings.Join(g.lines, "\n")
				if g.dropped > 0 {
					g.logger.Warn("rcon response truncated", "command", command, "dropped_lines", g.dropped)
				}
				g.releaseLocked()
				g.mu.Unlock()
				return text, nil
			}
			if grace == nil {
				grace = g.clock.NewTimer(remaining)
			}
			graceC = grace.C
		}
		// The deadline bounds the wait for the end marker; once it
		// has arrived only the grace period is left.
		deadlineC := deadline.C
		if !g.awaitingEnd {
			deadlineC = nil
		}
		changed := g.changed
		g.mu.Unlock()

		err := g.wait(ctx, changed, deadlineC, graceC, pump)
		if err != nil {
			g.release(generation)
			if err == errDeadline {
				return "", ErrTimeout
			}
			return "", err
		}
	}
}

// wait blocks until something a waiter cares about happens. A pump
// holder drains the connection whenever packets are ready.
func (g *Gateway) wait(ctx context.Context, changed <-chan struct{}, deadline, grace <-chan time.Time, pump Pump) error {
	var ready <-chan struct{}
	if pump != nil {
		ready = pump.Ready()
	}
	select {
	case <-changed:
		return nil
	case <-grace:
		return nil
	case <-ready:
		if err := pump.PumpOnce(); err != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return nil
	case <-deadline:
		return errDeadline
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) release(generation uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy && g.generation == generation {
		g.releaseLocked()
	}
}

func (g *Gateway) releaseLocked() {
	g.busy = false
	g.generation++
	g.current = ""
	g.awaitingEnd = false
	g.lines = g.lines[:0]
	g.broadcastLocked()
}

func (g *Gateway) broadcastLocked() {
	close(g.changed)
	g.changed = make(chan struct{})
}

// HandleLine appends one line of console output to the in-flight
// response. Lines arriving while no command is in flight are dropped.
func (g *Gateway) HandleLine(line string) {
	if line == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.busy {
		g.logger.Debug("rcon line without command in flight", "line", truncate(line, 120))
		return
	}
	if len(g.lines) >= g.config.BufferLimit {
		g.dropped++
		return
	}
	g.lines = append(g.lines, line)
	g.broadcastLocked()
}

// HandleEnd marks the in-flight response complete. command is the
// command text the server echoes in the end marker; an end marker for
// a different command (left over from a force-cleared slot) is
// ignored. An empty command matches whatever is in flight.
func (g *Gateway) HandleEnd(command string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.busy || !g.awaitingEnd {
		return
	}
	if command != "" && strings.TrimSpace(command) != strings.TrimSpace(g.current) {
		g.logger.Debug("rcon end marker for another command", "got", command, "in_flight", g.current)
		return
	}
	g.awaitingEnd = false
	g.endedAt = g.clock.Now()
	if collected := g.endedAt.Add(g.config.Grace); collected.After(g.holderDeadline) {
		g.holderDeadline = collected
	}
	g.broadcastLocked()
}

// InFlight returns the command currently holding the slot, if any.
func (g *Gateway) InFlight() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current, g.busy
}
