// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pause

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/steward/lib/clock"
	"github.com/bureau-foundation/steward/lib/gamestate"
)

const (
	// DefaultDebounce coalesces bursts of change notifications.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultPauseDelay is how long the server must stay empty
	// before it is paused.
	DefaultPauseDelay = 5 * time.Second

	// DefaultUnpauseInterval is the minimum spacing of unpause
	// commands.
	DefaultUnpauseInterval = time.Second
)

// State is the pause state the reconciler last commanded.
type State string

const (
	Unknown State = "unknown"
	Paused  State = "paused"
	Running State = "running"
)

// Source provides the game state to reconcile against.
type Source interface {
	Snapshot(ctx context.Context, fresh bool) gamestate.Snapshot
	Initialized() bool
}

// Commander executes a mutating console command.
type Commander interface {
	Execute(ctx context.Context, name string, args ...string) (string, error)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock sets the time source. Tests pass a fake clock.
func WithClock(c clock.Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(r *Reconciler) { r.debounce = d }
}

// WithPauseDelay overrides DefaultPauseDelay.
func WithPauseDelay(d time.Duration) Option {
	return func(r *Reconciler) { r.pauseDelay = d }
}

// WithUnpauseInterval overrides DefaultUnpauseInterval.
func WithUnpauseInterval(d time.Duration) Option {
	return func(r *Reconciler) { r.unpauseInterval = d }
}

// WithActiveHook registers fn to run whenever an evaluation finds at
// least one active company, whether or not a command was needed.
func WithActiveHook(fn func()) Option {
	return func(r *Reconciler) { r.onActive = fn }
}

// Reconciler drives the server's pause state.
type Reconciler struct {
	source    Source
	commander Commander
	logger    *slog.Logger

	clock           clock.Clock
	debounce        time.Duration
	pauseDelay      time.Duration
	unpauseInterval time.Duration
	onActive        func()

	ctx    context.Context
	cancel context.CancelFunc

	// evaluating serializes evaluations and pause commands.
	evaluating sync.Mutex

	mu              sync.Mutex
	closed          bool
	generation      uint64
	debounceTimer   *clock.Timer
	pauseGeneration uint64
	pauseTimer      *clock.Timer
	retryTimer      *clock.Timer
	commanded       State
	unpauseLimiter  *rate.Limiter
	evaluations     int
}

// New creates a reconciler. Call Close to stop its timers and cancel
// any command it has in flight.
func New(source Source, commander Commander, logger *slog.Logger, options ...Option) *Reconciler {
	r := &Reconciler{
		source:          source,
		commander:       commander,
		logger:          logger,
		clock:           clock.Real(),
		debounce:        DefaultDebounce,
		pauseDelay:      DefaultPauseDelay,
		unpauseInterval: DefaultUnpauseInterval,
		commanded:       Unknown,
	}
	for _, option := range options {
		option(r)
	}
	r.unpauseLimiter = rate.NewLimiter(rate.Every(r.unpauseInterval), 1)
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// NotifyStateChanged schedules an evaluation after the debounce
// interval, replacing any evaluation already scheduled.
func (r *Reconciler) NotifyStateChanged() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.generation++
	generation := r.generation
	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
	}
	r.debounceTimer = r.clock.AfterFunc(r.debounce, func() {
		r.mu.Lock()
		if r.closed || generation != r.generation {
			r.mu.Unlock()
			return
		}
		r.debounceTimer = nil
		r.mu.Unlock()
		r.Evaluate(r.ctx)
	})
}

// Evaluate compares desired and commanded state now. The monitor's
// periodic tick calls it directly.
func (r *Reconciler) Evaluate(ctx context.Context) {
	r.evaluating.Lock()
	defer r.evaluating.Unlock()

	r.mu.Lock()
	r.evaluations++
	r.mu.Unlock()

	snapshot := r.source.Snapshot(ctx, true)
	if !r.source.Initialized() && len(snapshot.Companies) == 0 && len(snapshot.Clients) == 0 {
		r.logger.Debug("pause check skipped, no game state yet")
		return
	}

	active := snapshot.Active()
	if len(active) == 0 {
		r.schedulePause()
		return
	}

	r.cancelPause()
	if r.onActive != nil {
		r.onActive()
	}
	r.unpause(ctx, len(active))
}

func (r *Reconciler) schedulePause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.commanded == Paused || r.pauseTimer != nil {
		return
	}
	r.pauseGeneration++
	generation := r.pauseGeneration
	r.pauseTimer = r.clock.AfterFunc(r.pauseDelay, func() { r.firePause(generation) })
	r.logger.Debug("no active companies, pause scheduled", "delay", r.pauseDelay)
}

func (r *Reconciler) cancelPause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pauseTimer == nil {
		return
	}
	r.pauseTimer.Stop()
	r.pauseTimer = nil
	r.pauseGeneration++
	r.logger.Debug("scheduled pause cancelled")
}

func (r *Reconciler) firePause(generation uint64) {
	r.evaluating.Lock()
	defer r.evaluating.Unlock()

	r.mu.Lock()
	if r.closed || generation != r.pauseGeneration {
		r.mu.Unlock()
		return
	}
	r.pauseTimer = nil
	if r.commanded == Paused {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	// The grace period may have ended just before the debounced
	// evaluation that would have cancelled it.
	if active := r.source.Snapshot(r.ctx, false).Active(); len(active) > 0 {
		r.logger.Debug("pause skipped, companies became active", "active", len(active))
		return
	}

	if _, err := r.commander.Execute(r.ctx, "pause"); err != nil {
		r.logger.Warn("pause failed", "error", err)
		return
	}
	r.mu.Lock()
	r.commanded = Paused
	r.mu.Unlock()
	r.logger.Info("game paused, no active companies")
}

func (r *Reconciler) unpause(ctx context.Context, active int) {
	r.mu.Lock()
	if r.closed || r.commanded == Running {
		r.mu.Unlock()
		return
	}
	if !r.unpauseLimiter.AllowN(r.clock.Now(), 1) {
		if r.retryTimer == nil {
			r.retryTimer = r.clock.AfterFunc(r.unpauseInterval, func() {
				r.mu.Lock()
				r.retryTimer = nil
				r.mu.Unlock()
				r.NotifyStateChanged()
			})
		}
		r.mu.Unlock()
		r.logger.Debug("unpause rate limited")
		return
	}
	r.mu.Unlock()

	if _, err := r.commander.Execute(ctx, "unpause"); err != nil {
		r.logger.Warn("unpause failed", "error", err)
		return
	}
	r.mu.Lock()
	r.commanded = Running
	r.mu.Unlock()
	r.logger.Info("game unpaused", "active_companies", active)
}

// Forget discards the commanded state, so the next evaluation issues
// whichever command the game needs. Used after a map load, which
// leaves the server's pause state unknown.
func (r *Reconciler) Forget() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commanded = Unknown
}

// State returns the last commanded state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commanded
}

// Evaluations returns how many evaluations have run.
func (r *Reconciler) Evaluations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evaluations
}

// Close stops all timers and cancels in-flight commands. Timers that
// fire afterwards do nothing.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.closed = true
	for _, timer := range []*clock.Timer{r.debounceTimer, r.pauseTimer, r.retryTimer} {
		if timer != nil {
			timer.Stop()
		}
	}
	r.debounceTimer, r.pauseTimer, r.retryTimer = nil, nil, nil
	r.mu.Unlock()
	r.cancel()
}
