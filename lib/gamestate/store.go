// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gamestate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/steward/lib/clock"
	"github.com/bureau-foundation/steward/lib/lrucache"
)

// Querier runs an idempotent console command, returning an empty
// string when it fails. *rcon.Gateway satisfies it.
type Querier interface {
	Query(ctx context.Context, name string, args ...string) string
}

// ChangeKind classifies a Change.
type ChangeKind int

const (
	CompanyAdded ChangeKind = iota
	CompanyUpdated
	CompanyRemoved
	ClientJoined
	ClientUpdated
	ClientMoved
	ClientLeft

	// Refreshed means a pull refresh added records or reassigned a
	// client.
	Refreshed

	// Cleared means both caches were emptied for a new game.
	Cleared
)

var changeKindNames = [...]string{
	CompanyAdded:   "company_added",
	CompanyUpdated: "company_updated",
	CompanyRemoved: "company_removed",
	ClientJoined:   "client_joined",
	ClientUpdated:  "client_updated",
	ClientMoved:    "client_moved",
	ClientLeft:     "client_left",
	Refreshed:      "refreshed",
	Cleared:        "cleared",
}

func (k ChangeKind) String() string {
	if int(k) < len(changeKindNames) {
		return changeKindNames[k]
	}
	return fmt.Sprintf("change(%d)", int(k))
}

// Change describes one mutation. Previous is the client's company
// before a ClientMoved or ClientLeft.
type Change struct {
	Kind     ChangeKind
	Company  CompanyID
	Client   ClientID
	Previous CompanyID
}

// Config sizes the caches.
type Config struct {
	// Capacity bounds each cache.
	Capacity int

	// EntryTTL is how long a record survives without being written.
	EntryTTL time.Duration

	// RefreshTTL is how long a pull refresh keeps a cache fresh.
	RefreshTTL time.Duration
}

// DefaultConfig returns the production sizing.
func DefaultConfig() Config {
	return Config{
		Capacity:   500,
		EntryTTL:   30 * time.Second,
		RefreshTTL: 10 * time.Second,
	}
}

// Store is the company and client cache for one server.
type Store struct {
	companies *lrucache.Cache[CompanyID, Company]
	clients   *lrucache.Cache[ClientID, Client]
	querier   Querier
	config    Config
	clock     clock.Clock
	logger    *slog.Logger

	refreshes singleflight.Group

	mu            sync.Mutex
	lastCompanies time.Time
	lastClients   time.Time
	initialized   bool
	subscribers   []func(Change)
}

// NewStore creates an empty store that refreshes through querier.
func NewStore(querier Querier, config Config, clk clock.Clock, logger *slog.Logger) (*Store, error) {
	companies, err := lrucache.New[CompanyID, Company](config.Capacity, config.EntryTTL, clk)
	if err != nil {
		return nil, fmt.Errorf("company cache: %w", err)
	}
	clients, err := lrucache.New[ClientID, Client](config.Capacity, config.EntryTTL, clk)
	if err != nil {
		return nil, fmt.Errorf("client cache: %w", err)
	}
	return &Store{
		companies: companies,
		clients:   clients,
		querier:   querier,
		config:    config,
		clock:     clk,
		logger:    logger,
	}, nil
}

// Subscribe registers fn to be called after every change. Subscribers
// run synchronously on the mutating goroutine, in registration order,
// with no store lock held.
func (s *Store) Subscribe(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Store) notify(change Change) {
	s.mu.Lock()
	subscribers := s.subscribers
	s.mu.Unlock()
	for _, fn := range subscribers {
		fn(change)
	}
}

// PutCompanyInfo records a company info notification. Figures the
// notification does not carry are kept from the cached record.
func (s *Store) PutCompanyInfo(info Company) {
	existed := false
	s.companies.Update(info.ID, func(current Company, ok bool) Company {
		existed = ok
		info.Value, info.Money, info.Loan = current.Value, current.Money, current.Loan
		return info
	})
	kind := CompanyUpdated
	if !existed {
		kind = CompanyAdded
	}
	s.notify(Change{Kind: kind, Company: info.ID})
}

// PutCompanyName records a company update notification.
func (s *Store) PutCompanyName(id CompanyID, name string) {
	existed := false
	s.companies.Update(id, func(current Company, ok bool) Company {
		existed = ok
		current.ID = id
		current.Name = name
		return current
	})
	kind := CompanyUpdated
	if !existed {
		kind = CompanyAdded
	}
	s.notify(Change{Kind: kind, Company: id})
}

// PutCompanyEconomy records the money and loan from an economy
// notification.
func (s *Store) PutCompanyEconomy(id CompanyID, money, loan int64) {
	s.companies.Update(id, func(current Company, ok bool) Company {
		current.ID = id
		current.Money = money
		current.Loan = loan
		return current
	})
}

// RemoveCompany evicts a company, whether the server removed it or the
// steward just reset it.
func (s *Store) RemoveCompany(id CompanyID) {
	s.companies.Delete(id)
	s.notify(Change{Kind: CompanyRemoved, Company: id})
}

// PutClient records a client info notification.
func (s *Store) PutClient(client Client) {
	var previous Client
	existed := false
	s.clients.Update(client.ID, func(current Client, ok bool) Client {
		previous, existed = current, ok
		return client
	})
	switch {
	case !existed:
		s.notify(Change{Kind: ClientJoined, Client: client.ID, Company: client.Company})
	case previous.Company != client.Company:
		s.notify(Change{Kind: ClientMoved, Client: client.ID, Company: client.Company, Previous: previous.Company})
	default:
		s.notify(Change{Kind: ClientUpdated, Client: client.ID, Company: client.Company})
	}
}

// PutClientUpdate records a client update notification, which carries
// the name and company but not the address.
func (s *Store) PutClientUpdate(id ClientID, name string, company CompanyID) {
	var previous Client
	existed := false
	s.clients.Update(id, func(current Client, ok bool) Client {
		previous, existed = current, ok
		current.ID = id
		current.Name = name
		current.Company = company
		return current
	})
	if existed && previous.Company != company {
		s.notify(Change{Kind: ClientMoved, Client: id, Company: company, Previous: previous.Company})
		return
	}
	s.notify(Change{Kind: ClientUpdated, Client: id, Company: company})
}

// RemoveClient evicts a client that quit or errored out.
func (s *Store) RemoveClient(id ClientID) {
	previous, _ := s.clients.Get(id)
	s.clients.Delete(id)
	s.notify(Change{Kind: ClientLeft, Client: id, Previous: previous.Company})
}

// Clear empties both caches and forgets refresh history.
func (s *Store) Clear() {
	s.companies.Clear()
	s.clients.Clear()
	s.mu.Lock()
	s.lastCompanies = time.Time{}
	s.lastClients = time.Time{}
	s.initialized = false
	s.mu.Unlock()
	s.notify(Change{Kind: Cleared})
}

// RefreshCompanies runs "companies" and replaces every company record
// in its output. Concurrent calls share one command.
func (s *Store) RefreshCompanies(ctx context.Context) {
	s.refreshes.Do("companies", func() (any, error) {
		output := s.querier.Query(ctx, "companies")
		parsed := ParseCompanies(output)
		if len(parsed) == 0 {
			return nil, nil
		}

		added := false
		for _, company := range parsed {
			if _, ok := s.companies.Get(company.ID); !ok {
				added = true
			}
			s.companies.Set(company.ID, company)
		}

		s.mu.Lock()
		s.lastCompanies = s.clock.Now()
		s.initialized = true
		s.mu.Unlock()

		s.logger.Debug("companies refreshed", "count", len(parsed))
		if added {
			s.notify(Change{Kind: Refreshed})
		}
		return nil, nil
	})
}

// RefreshClients runs "clients" and replaces every client record in
// its output. Concurrent calls share one command.
func (s *Store) RefreshClients(ctx context.Context) {
	s.refreshes.Do("clients", func() (any, error) {
		output := s.querier.Query(ctx, "clients")
		if output == "" {
			return nil, nil
		}
		parsed := ParseClients(output)

		changed := false
		for _, client := range parsed {
			if current, ok := s.clients.Get(client.ID); !ok || current.Company != client.Company {
				changed = true
			}
			s.clients.Set(client.ID, client)
		}

		s.mu.Lock()
		s.lastClients = s.clock.Now()
		s.mu.Unlock()

		s.logger.Debug("clients refreshed", "count", len(parsed))
		if changed {
			s.notify(Change{Kind: Refreshed})
		}
		return nil, nil
	})
}

// Refresh brings whichever cache is stale up to date.
func (s *Store) Refresh(ctx context.Context) {
	companiesStale, clientsStale := s.stale()
	if companiesStale {
		s.RefreshCompanies(ctx)
	}
	if clientsStale {
		s.RefreshClients(ctx)
	}
}

func (s *Store) stale() (companies, clients bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	return now.Sub(s.lastCompanies) >= s.config.RefreshTTL,
		now.Sub(s.lastClients) >= s.config.RefreshTTL
}

// Snapshot returns both caches. With fresh set, stale caches are
// refreshed first, and an empty company cache is refreshed again when
// clients claim to be playing for some company.
func (s *Store) Snapshot(ctx context.Context, fresh bool) Snapshot {
	if fresh {
		s.Refresh(ctx)
	}
	snapshot := s.Peek()
	if fresh && len(snapshot.Companies) == 0 && snapshot.HasCompanyClients() {
		s.RefreshCompanies(ctx)
		snapshot.Companies = s.companies.Items()
	}
	return snapshot
}

// Peek returns both caches without refreshing.
func (s *Store) Peek() Snapshot {
	return Snapshot{
		Companies: s.companies.Items(),
		Clients:   s.clients.Items(),
	}
}

// Company returns the cached record for id.
func (s *Store) Company(id CompanyID) (Company, bool) {
	return s.companies.Get(id)
}

// Client returns the cached record for id.
func (s *Store) Client(id ClientID) (Client, bool) {
	return s.clients.Get(id)
}

// LookupClient returns the record for id, refreshing the client cache
// once if it is not cached.
func (s *Store) LookupClient(ctx context.Context, id ClientID) (Client, bool) {
	if client, ok := s.clients.Get(id); ok {
		return client, true
	}
	s.RefreshClients(ctx)
	return s.clients.Get(id)
}

// Initialized reports whether a company refresh has succeeded since
// the store was created or last cleared.
func (s *Store) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// LastRefresh returns when each cache was last refreshed.
func (s *Store) LastRefresh() (companies, clients time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCompanies, s.lastClients
}

// CleanupExpired sweeps both caches and returns the number of records
// dropped.
func (s *Store) CleanupExpired() int {
	return s.companies.CleanupExpired() + s.clients.CleanupExpired()
}
