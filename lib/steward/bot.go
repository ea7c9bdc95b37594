// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package steward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/steward/lib/admin"
	"github.com/bureau-foundation/steward/lib/chat"
	"github.com/bureau-foundation/steward/lib/cleanup"
	"github.com/bureau-foundation/steward/lib/clock"
	"github.com/bureau-foundation/steward/lib/gamestate"
	"github.com/bureau-foundation/steward/lib/handshake"
	"github.com/bureau-foundation/steward/lib/lifecycle"
	"github.com/bureau-foundation/steward/lib/pause"
	"github.com/bureau-foundation/steward/lib/rcon"
)

// Link is the admin connection a Bot runs on. *admin.Conn implements
// it.
type Link interface {
	SendRcon(command string) error
	Broadcast(message string) error
	Whisper(client uint32, message string) error
	Subscribe(updateType admin.UpdateType, frequency admin.Frequency) error
	Poll(updateType admin.UpdateType, data uint32) error
	Ready() <-chan struct{}
	Drain() ([]admin.Packet, error)
	Done() <-chan struct{}
}

// Config gathers the tuning of every component.
type Config struct {
	// Name labels the server in logs and status.
	Name string

	Gateway   rcon.Config
	State     gamestate.Config
	Referee   lifecycle.RefereeConfig
	Cleanup   cleanup.Config
	Handshake handshake.Config
	Router    chat.RouterConfig

	PauseDebounce   time.Duration
	PauseDelay      time.Duration
	UnpauseInterval time.Duration

	GreetingDelay time.Duration
	ChatInterval  time.Duration

	// CompanyRefreshInterval paces the company refresh while a round
	// is running and the game is not paused.
	CompanyRefreshInterval time.Duration

	// CacheSweepInterval paces eviction of expired cache records.
	CacheSweepInterval time.Duration

	// MaintenanceInterval paces the sweep of stale reset requests,
	// chat cooldowns and cleanup markers. CooldownRetention is how
	// long an idle chat cooldown is kept.
	MaintenanceInterval time.Duration
	CooldownRetention   time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Gateway:                rcon.DefaultConfig(),
		State:                  gamestate.DefaultConfig(),
		Referee:                lifecycle.DefaultRefereeConfig(),
		Cleanup:                cleanup.DefaultConfig(),
		Handshake:              handshake.DefaultConfig(),
		Router:                 chat.DefaultRouterConfig(),
		PauseDebounce:          pause.DefaultDebounce,
		PauseDelay:             pause.DefaultPauseDelay,
		UnpauseInterval:        pause.DefaultUnpauseInterval,
		GreetingDelay:          3 * time.Second,
		ChatInterval:           50 * time.Millisecond,
		CompanyRefreshInterval: time.Minute,
		CacheSweepInterval:     time.Minute,
		MaintenanceInterval:    5 * time.Minute,
		CooldownRetention:      time.Minute,
	}
}

// Bot automates one server.
type Bot struct {
	link   Link
	config Config
	clock  clock.Clock
	logger *slog.Logger

	gateway    *rcon.Gateway
	store      *gamestate.Store
	reconciler *pause.Reconciler
	machine    *lifecycle.Machine
	referee    *lifecycle.Referee
	monitor    *cleanup.Monitor
	handshake  *handshake.Handshake
	outbox     *chat.Outbox
	router     *chat.Router
	greeter    *chat.Greeter
	dispatcher *admin.Dispatcher

	// pumpMu makes sure one goroutine dispatches at a time.
	pumpMu sync.Mutex

	// ctx is the Run context, used by work started from handlers.
	ctx  context.Context
	work sync.WaitGroup

	mu          sync.Mutex
	started     time.Time
	gameDate    time.Time
	nextMonitor time.Time
	lastSweep   cleanup.Result
}

// New builds the components for one connection. Nothing runs until
// Run.
func New(link Link, config Config, clk clock.Clock, logger *slog.Logger) (*Bot, error) {
	b := &Bot{
		link:   link,
		config: config,
		clock:  clk,
		logger: logger,
		ctx:    context.Background(),
	}

	b.gateway = rcon.NewGateway(link, config.Gateway, clk, logger.With("component", "rcon"))
	store, err := gamestate.NewStore(b.gateway, config.State, clk, logger.With("component", "state"))
	if err != nil {
		return nil, err
	}
	b.store = store
	b.outbox = chat.NewOutbox(link, config.ChatInterval, logger.With("component", "chat"))
	b.machine = lifecycle.NewMachine(logger.With("component", "lifecycle"))
	b.reconciler = pause.New(store, b.gateway, logger.With("component", "pause"),
		pause.WithClock(clk),
		pause.WithDebounce(config.PauseDebounce),
		pause.WithPauseDelay(config.PauseDelay),
		pause.WithUnpauseInterval(config.UnpauseInterval),
		pause.WithActiveHook(func() { b.machine.Advance(lifecycle.Waiting, lifecycle.Active) }),
	)
	b.referee = lifecycle.NewReferee(b.machine, b.gateway, b.outbox, config.Referee, clk,
		logger.With("component", "referee"), b.scenarioLoaded)
	b.monitor = cleanup.New(store, b.gateway, b.outbox, config.Cleanup, clk, logger.With("component", "cleanup"))
	b.handshake = handshake.New(store, b.gateway, b.outbox, config.Handshake, clk, logger.With("component", "handshake"))
	b.router = chat.NewRouter(b.outbox, b.handshake, store, config.Router, clk, logger.With("component", "chat"))
	b.greeter = chat.NewGreeter(b.outbox, store, config.GreetingDelay, clk, logger.With("component", "chat"))

	store.Subscribe(b.stateChanged)
	b.machine.Subscribe(func(t lifecycle.Transition) {
		b.logger.Info("round phase changed", "from", t.From, "to", t.To)
	})
	b.dispatcher = b.newDispatcher()
	return b, nil
}

// Run starts the bot and blocks until the connection fails or ctx is
// done. The returned error is the connection failure, or ctx.Err().
func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)
	b.mu.Lock()
	b.ctx = ctx
	b.started = b.clock.Now()
	b.mu.Unlock()

	defer b.shutdown()

	group.Go(func() error {
		b.outbox.Run(ctx)
		return nil
	})

	if err := b.startup(rcon.WithPump(ctx, b)); err != nil {
		cancel()
		group.Wait()
		return err
	}

	group.Go(func() error { return b.pumpLoop(ctx) })
	group.Go(func() error { return b.monitorLoop(ctx) })
	group.Go(func() error {
		return b.every(ctx, b.config.CompanyRefreshInterval, b.refreshCompanies)
	})
	group.Go(func() error {
		return b.every(ctx, b.config.CacheSweepInterval, b.sweepCaches)
	})
	group.Go(func() error {
		return b.every(ctx, b.config.MaintenanceInterval, b.maintain)
	})
	return group.Wait()
}

func (b *Bot) shutdown() {
	b.reconciler.Close()
	b.greeter.Close()
	b.handshake.Close()
	b.referee.Wait()
	b.work.Wait()
}

// startup subscribes to updates and builds the initial view. ctx
// carries the bot as pump, so console responses are drained while it
// waits.
func (b *Bot) startup(ctx context.Context) error {
	subscriptions := []struct {
		updateType admin.UpdateType
		frequency  admin.Frequency
	}{
		{admin.UpdateChat, admin.FrequencyAutomatic},
		{admin.UpdateClientInfo, admin.FrequencyAutomatic},
		{admin.UpdateCompanyInfo, admin.FrequencyAutomatic},
		{admin.UpdateCompanyEconomy, admin.FrequencyWeekly},
		{admin.UpdateDate, admin.FrequencyDaily},
	}
	for _, sub := range subscriptions {
		if err := b.link.Subscribe(sub.updateType, sub.frequency); err != nil {
			return fmt.Errorf("subscribing to update %d: %w", sub.updateType, err)
		}
	}
	for _, updateType := range []admin.UpdateType{admin.UpdateClientInfo, admin.UpdateCompanyInfo} {
		if err := b.link.Poll(updateType, admin.PollAll); err != nil {
			return fmt.Errorf("polling update %d: %w", updateType, err)
		}
	}

	b.store.RefreshCompanies(ctx)
	b.store.RefreshClients(ctx)
	if id, ok := b.monitor.CleanUnnamed(ctx); ok {
		b.logger.Info("removed unnamed company at startup", "company", id)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	snapshot := b.store.Peek()
	b.logger.Info("connected", "companies", len(snapshot.Companies), "clients", len(snapshot.Clients))
	b.outbox.Broadcast("Admin connected")
	return nil
}

// Ready and PumpOnce make the bot the rcon.Pump for its own
// connection.
func (b *Bot) Ready() <-chan struct{} { return b.link.Ready() }

// PumpOnce dispatches every waiting packet.
func (b *Bot) PumpOnce() error {
	b.pumpMu.Lock()
	defer b.pumpMu.Unlock()
	packets, err := b.link.Drain()
	if err != nil {
		return err
	}
	for _, packet := range packets {
		if err := b.dispatcher.Dispatch(packet); err != nil {
			b.logger.Warn("dropping malformed packet", "type", packet.Type, "error", err)
		}
	}
	return nil
}

func (b *Bot) pumpLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.link.Ready():
			if err := b.PumpOnce(); err != nil {
				return fmt.Errorf("admin connection lost: %w", err)
			}
		case <-b.link.Done():
			// Dispatch what the reader queued before it stopped,
			// then report why it stopped.
			for {
				if err := b.PumpOnce(); err != nil {
					return fmt.Errorf("admin connection lost: %w", err)
				}
			}
		}
	}
}

// spawn runs fn on its own goroutine under the Run context.
func (b *Bot) spawn(fn func(ctx context.Context)) {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	b.work.Add(1)
	go func() {
		defer b.work.Done()
		fn(ctx)
	}()
}

// Execute runs an operator-supplied console command line without
// escaping its arguments.
func (b *Bot) Execute(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", errors.New("empty command")
	}
	return b.gateway.Do(ctx, rcon.Request{Name: fields[0], Args: fields[1:], Raw: true})
}

// Snapshot returns the cached companies and clients without
// refreshing.
func (b *Bot) Snapshot() gamestate.Snapshot { return b.store.Peek() }

// Phase returns the round phase.
func (b *Bot) Phase() lifecycle.Phase { return b.machine.Phase() }
