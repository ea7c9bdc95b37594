// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bureau-foundation/steward/lib/clock"
	"github.com/bureau-foundation/steward/lib/gamestate"
)

// ErrInProgress is returned by Clean when another cleanup of the same
// company has not finished.
var ErrInProgress = errors.New("cleanup: company already being cleaned")

// State is the part of the game state store the monitor uses.
type State interface {
	Peek() gamestate.Snapshot
	RefreshClients(ctx context.Context)
	RefreshCompanies(ctx context.Context)
	RemoveCompany(id gamestate.CompanyID)
}

// Commander runs console commands.
type Commander interface {
	Execute(ctx context.Context, name string, args ...string) (string, error)
	Query(ctx context.Context, name string, args ...string) string
}

// Broadcaster announces a message to everyone on the server.
type Broadcaster interface {
	Broadcast(message string)
}

// Config sets the abandonment thresholds.
type Config struct {
	// MaxAge is the age in game years from which a company can be
	// considered abandoned.
	MaxAge int

	// MinValue is the company value below which an old company is
	// abandoned.
	MinValue int64

	// Concurrency bounds simultaneous cleanups.
	Concurrency int64

	// BaseYear is the founding year reported for placeholder slots.
	// It is also the current year when nothing better is known.
	BaseYear int

	// MoveDelay separates consecutive client moves.
	MoveDelay time.Duration

	// StaleMarker is how long an in-progress marker may be held
	// before ReleaseStale drops it.
	StaleMarker time.Duration
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MaxAge:      5,
		MinValue:    5_000_000,
		Concurrency: 3,
		BaseYear:    1950,
		MoveDelay:   20 * time.Millisecond,
		StaleMarker: 10 * time.Minute,
	}
}

// Result summarizes one Sweep.
type Result struct {
	Year       int
	Candidates []gamestate.CompanyID
	Cleaned    []gamestate.CompanyID
	Skipped    []gamestate.CompanyID
	Failed     []gamestate.CompanyID
}

// Monitor finds and removes abandoned companies.
type Monitor struct {
	state       State
	commander   Commander
	broadcaster Broadcaster
	config      Config
	clock       clock.Clock
	logger      *slog.Logger
	limiter     *semaphore.Weighted

	mu         sync.Mutex
	claims     uint64
	inProgress map[gamestate.CompanyID]marker
}

// marker records who holds a company's cleanup and since when.
type marker struct {
	claim   uint64
	claimed time.Time
}

// New creates a monitor.
func New(state State, commander Commander, broadcaster Broadcaster, config Config, clk clock.Clock, logger *slog.Logger) *Monitor {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &Monitor{
		state:       state,
		commander:   commander,
		broadcaster: broadcaster,
		config:      config,
		clock:       clk,
		logger:      logger,
		limiter:     semaphore.NewWeighted(config.Concurrency),
		inProgress:  make(map[gamestate.CompanyID]marker),
	}
}

// CurrentYear asks the server for the in-game date. If that fails it
// falls back to the latest founding year among companies, then to the
// base year.
func (m *Monitor) CurrentYear(ctx context.Context, companies map[gamestate.CompanyID]gamestate.Company) int {
	if year, ok := gamestate.ParseYear(m.commander.Query(ctx, "get_date")); ok {
		return year
	}
	year := 0
	for _, company := range companies {
		year = max(year, company.Founded)
	}
	if year == 0 {
		return m.config.BaseYear
	}
	return year
}

// Candidates returns the abandoned companies among companies as of
// year, ordered by id.
func (m *Monitor) Candidates(year int, companies map[gamestate.CompanyID]gamestate.Company) []gamestate.Company {
	var candidates []gamestate.Company
	for _, company := range companies {
		if company.Founded <= m.config.BaseYear {
			continue
		}
		if year-company.Founded >= m.config.MaxAge && company.Value < m.config.MinValue {
			candidates = append(candidates, company)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates
}

// Sweep cleans every abandoned company among companies and waits for
// all cleanups to finish.
func (m *Monitor) Sweep(ctx context.Context, companies map[gamestate.CompanyID]gamestate.Company) Result {
	result := Result{Year: m.CurrentYear(ctx, companies)}
	candidates := m.Candidates(result.Year, companies)
	if len(candidates) == 0 {
		return result
	}

	var (
		group errgroup.Group
		mu    sync.Mutex
	)
	for _, company := range candidates {
		company := company
		result.Candidates = append(result.Candidates, company.ID)
		group.Go(func() error {
			err := m.Clean(ctx, company)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Cleaned = append(result.Cleaned, company.ID)
			case errors.Is(err, ErrInProgress):
				result.Skipped = append(result.Skipped, company.ID)
				return nil
			default:
				result.Failed = append(result.Failed, company.ID)
			}
			return err
		})
	}
	if err := group.Wait(); err != nil {
		m.logger.Warn("abandoned company cleanup incomplete", "failed", len(result.Failed), "error", err)
	}
	for _, list := range [][]gamestate.CompanyID{result.Cleaned, result.Skipped, result.Failed} {
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	}
	return result
}

// Clean removes one company: every client playing for it is moved to
// spectators, the company is reset, evicted from the cache, and the
// removal is announced. A failed client move does not stop the reset.
func (m *Monitor) Clean(ctx context.Context, company gamestate.Company) error {
	claim, ok := m.claim(company.ID)
	if !ok {
		m.logger.Debug("cleanup already in progress", "company", company.ID)
		return ErrInProgress
	}
	defer m.release(company.ID, claim)

	if err := m.limiter.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.limiter.Release(1)

	m.state.RefreshClients(ctx)
	clients := m.state.Peek().ClientsOf(company.ID)
	name := displayName(company)
	m.logger.Info("cleaning abandoned company", "company", company.ID, "name", name,
		"founded", company.Founded, "value", company.Value, "clients", len(clients))

	var moveErrors []error
	for i, client := range clients {
		if i > 0 {
			m.sleep(ctx, m.config.MoveDelay)
		}
		if _, err := m.commander.Execute(ctx, "move", client.ID.String(), strconv.Itoa(int(gamestate.Spectator))); err != nil {
			moveErrors = append(moveErrors, fmt.Errorf("moving client %s: %w", client.ID, err))
		}
	}
	if len(moveErrors) > 0 {
		m.logger.Warn("some clients could not be moved out", "company", company.ID, "error", errors.Join(moveErrors...))
	}

	if _, err := m.commander.Execute(ctx, "reset_company", company.ID.String()); err != nil {
		return fmt.Errorf("resetting company %s: %w", company.ID, err)
	}
	m.state.RemoveCompany(company.ID)
	m.broadcaster.Broadcast("Dead company cleanup: " + name)
	m.logger.Info("abandoned company removed", "company", company.ID)
	return nil
}

// CleanUnnamed refreshes the company list and resets the first company
// that still has the placeholder name and no players. It reports which
// company, if any, was removed.
func (m *Monitor) CleanUnnamed(ctx context.Context) (gamestate.CompanyID, bool) {
	m.state.RefreshCompanies(ctx)
	snapshot := m.state.Peek()

	ids := make([]gamestate.CompanyID, 0, len(snapshot.Companies))
	for id := range snapshot.Companies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if !snapshot.Companies[id].Unnamed() || len(snapshot.ClientsOf(id)) > 0 {
			continue
		}
		claim, ok := m.claim(id)
		if !ok {
			return 0, false
		}
		m.logger.Info("removing unnamed company", "company", id)
		_, err := m.commander.Execute(ctx, "reset_company", id.String())
		if err == nil {
			m.state.RemoveCompany(id)
		}
		m.release(id, claim)
		if err != nil {
			m.logger.Warn("unnamed company removal failed", "company", id, "error", err)
			return 0, false
		}
		return id, true
	}
	return 0, false
}

// InProgress lists companies currently being cleaned.
func (m *Monitor) InProgress() []gamestate.CompanyID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]gamestate.CompanyID, 0, len(m.inProgress))
	for id := range m.inProgress {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReleaseStale drops in-progress markers held for longer than
// StaleMarker and returns how many it dropped. Markers are normally
// released by the cleanup that set them; this recovers from a cleanup
// that never returned without opening a window for a second cleanup
// of a company whose first one is still running.
func (m *Monitor) ReleaseStale() int {
	if m.config.StaleMarker <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	dropped := 0
	for id, held := range m.inProgress {
		if now.Sub(held.claimed) >= m.config.StaleMarker {
			m.logger.Warn("dropping stale cleanup marker", "company", id, "held", now.Sub(held.claimed))
			delete(m.inProgress, id)
			dropped++
		}
	}
	return dropped
}

// claim marks id in progress. The returned claim identifies this
// marker to release.
func (m *Monitor) claim(id gamestate.CompanyID) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inProgress[id]; busy {
		return 0, false
	}
	m.claims++
	m.inProgress[id] = marker{claim: m.claims, claimed: m.clock.Now()}
	return m.claims, true
}

// release drops the marker for id if it is still the one claim set.
func (m *Monitor) release(id gamestate.CompanyID, claim uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if held, ok := m.inProgress[id]; ok && held.claim == claim {
		delete(m.inProgress, id)
	}
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := m.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func displayName(company gamestate.Company) string {
	if company.Name == "" {
		return "Co " + company.ID.String()
	}
	return company.Name
}
