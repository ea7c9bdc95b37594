// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/steward/lib/clock"
	"github.com/bureau-foundation/steward/lib/gamestate"
	"github.com/bureau-foundation/steward/lib/testutil"
)

type fakeState struct {
	mu       sync.Mutex
	snapshot gamestate.Snapshot
	removed  []gamestate.CompanyID
}

func newFakeState(companies []gamestate.Company, clients []gamestate.Client) *fakeState {
	s := &fakeState{snapshot: gamestate.Snapshot{
		Companies: make(map[gamestate.CompanyID]gamestate.Company),
		Clients:   make(map[gamestate.ClientID]gamestate.Client),
	}}
	for _, company := range companies {
		s.snapshot.Companies[company.ID] = company
	}
	for _, client := range clients {
		s.snapshot.Clients[client.ID] = client
	}
	return s
}

func (s *fakeState) Peek() gamestate.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *fakeState) RefreshClients(context.Context)   {}
func (s *fakeState) RefreshCompanies(context.Context) {}

func (s *fakeState) RemoveCompany(id gamestate.CompanyID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshot.Companies, id)
	s.removed = append(s.removed, id)
}

type fakeCommander struct {
	mu       sync.Mutex
	commands []string
	date     string
	failOn   map[string]bool

	// When gate is set, reset_company reports on entered and blocks
	// until gate is closed.
	gate    chan struct{}
	entered chan gamestate.CompanyID
	running int
	peak    int
}

func (c *fakeCommander) Execute(_ context.Context, name string, args ...string) (string, error) {
	command := strings.Join(append([]string{name}, args...), " ")
	c.mu.Lock()
	c.commands = append(c.commands, command)
	fail := c.failOn[command]
	gate := c.gate
	if name == "reset_company" {
		c.running++
		c.peak = max(c.peak, c.running)
	}
	c.mu.Unlock()

	if name == "reset_company" {
		if gate != nil {
			id := args[0]
			c.entered <- gamestate.CompanyID(id[0] - '0')
			<-gate
		}
		c.mu.Lock()
		c.running--
		c.mu.Unlock()
	}
	if fail {
		return "", errors.New("rcon: command timed out")
	}
	return "", nil
}

func (c *fakeCommander) Query(_ context.Context, name string, _ ...string) string {
	if name == "get_date" {
		return c.date
	}
	return ""
}

func (c *fakeCommander) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages []string
}

func (b *fakeBroadcaster) Broadcast(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message)
}

func newTestMonitor(state *fakeState, commander *fakeCommander, broadcaster *fakeBroadcaster) *Monitor {
	config := DefaultConfig()
	config.MoveDelay = 0
	return New(state, commander, broadcaster, config,
		clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCurrentYearFallbacks(t *testing.T) {
	commander := &fakeCommander{date: "Date: 1968-04-02"}
	m := newTestMonitor(newFakeState(nil, nil), commander, &fakeBroadcaster{})
	companies := map[gamestate.CompanyID]gamestate.Company{
		1: {ID: 1, Founded: 1955},
		2: {ID: 2, Founded: 1961},
	}

	if year := m.CurrentYear(context.Background(), companies); year != 1968 {
		t.Errorf("year from get_date = %d, want 1968", year)
	}
	commander.date = ""
	if year := m.CurrentYear(context.Background(), companies); year != 1961 {
		t.Errorf("year from founding dates = %d, want 1961", year)
	}
	if year := m.CurrentYear(context.Background(), nil); year != 1950 {
		t.Errorf("year with nothing known = %d, want 1950", year)
	}
}

func TestCandidates(t *testing.T) {
	m := newTestMonitor(newFakeState(nil, nil), &fakeCommander{}, &fakeBroadcaster{})
	companies := map[gamestate.CompanyID]gamestate.Company{
		1: {ID: 1, Founded: 1955, Value: 1_000_000}, // old and poor
		2: {ID: 2, Founded: 1955, Value: 9_000_000}, // old but rich
		3: {ID: 3, Founded: 1958, Value: 0},         // too young
		4: {ID: 4, Founded: 1950, Value: 0},         // placeholder year
		5: {ID: 5, Founded: 1957, Value: 4_999_999}, // exactly MaxAge
	}
	candidates := m.Candidates(1962, companies)
	var ids []gamestate.CompanyID
	for _, company := range candidates {
		ids = append(ids, company.ID)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 5 {
		t.Errorf("candidates = %v, want [1 5]", ids)
	}
}

func TestCleanMovesClientsThenResets(t *testing.T) {
	state := newFakeState(
		[]gamestate.Company{{ID: 3, Name: "Old Rail", Founded: 1955}},
		[]gamestate.Client{
			{ID: 7, Company: 3},
			{ID: 9, Company: gamestate.Spectator},
		},
	)
	commander := &fakeCommander{}
	broadcaster := &fakeBroadcaster{}
	m := newTestMonitor(state, commander, broadcaster)

	if err := m.Clean(context.Background(), state.snapshot.Companies[3]); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	want := "move 7 255|reset_company 3"
	if got := strings.Join(commander.sent(), "|"); got != want {
		t.Errorf("commands = %q, want %q", got, want)
	}
	if len(state.removed) != 1 || state.removed[0] != 3 {
		t.Errorf("removed = %v", state.removed)
	}
	if len(broadcaster.messages) != 1 || broadcaster.messages[0] != "Dead company cleanup: Old Rail" {
		t.Errorf("broadcasts = %v", broadcaster.messages)
	}
	if len(m.InProgress()) != 0 {
		t.Errorf("in-progress marker left behind: %v", m.InProgress())
	}
}

func TestCleanContinuesAfterFailedMove(t *testing.T) {
	state := newFakeState(
		[]gamestate.Company{{ID: 3, Founded: 1955}},
		[]gamestate.Client{{ID: 7, Company: 3}, {ID: 8, Company: 3}},
	)
	commander := &fakeCommander{failOn: map[string]bool{"move 7 255": true, "move 8 255": true}}
	broadcaster := &fakeBroadcaster{}
	m := newTestMonitor(state, commander, broadcaster)

	if err := m.Clean(context.Background(), state.snapshot.Companies[3]); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	sent := commander.sent()
	if sent[len(sent)-1] != "reset_company 3" {
		t.Errorf("reset not attempted after failed moves: %v", sent)
	}
	if len(broadcaster.messages) != 1 || broadcaster.messages[0] != "Dead company cleanup: Co 3" {
		t.Errorf("broadcasts = %v", broadcaster.messages)
	}
}

func TestCleanFailedResetKeepsCompany(t *testing.T) {
	state := newFakeState([]gamestate.Company{{ID: 3, Founded: 1955}}, nil)
	commander := &fakeCommander{failOn: map[string]bool{"reset_company 3": true}}
	broadcaster := &fakeBroadcaster{}
	m := newTestMonitor(state, commander, broadcaster)

	if err := m.Clean(context.Background(), state.snapshot.Companies[3]); err == nil {
		t.Fatal("Clean succeeded with failing reset_company")
	}
	if len(state.removed) != 0 || len(broadcaster.messages) != 0 {
		t.Errorf("removed = %v, broadcasts = %v, want neither", state.removed, broadcaster.messages)
	}
}

func TestCleanSkipsCompanyInProgress(t *testing.T) {
	state := newFakeState([]gamestate.Company{{ID: 3, Founded: 1955}}, nil)
	commander := &fakeCommander{}
	m := newTestMonitor(state, commander, &fakeBroadcaster{})

	if _, ok := m.claim(3); !ok {
		t.Fatal("claim failed on idle monitor")
	}
	if err := m.Clean(context.Background(), state.snapshot.Companies[3]); !errors.Is(err, ErrInProgress) {
		t.Fatalf("Clean = %v, want ErrInProgress", err)
	}
	if len(commander.sent()) != 0 {
		t.Errorf("commands sent for a company in progress: %v", commander.sent())
	}
	if got := m.InProgress(); len(got) != 1 || got[0] != 3 {
		t.Errorf("InProgress = %v, want [3]", got)
	}
}

func TestReleaseStaleKeepsRunningCleanups(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	config := DefaultConfig()
	config.StaleMarker = 10 * time.Minute
	m := New(newFakeState(nil, nil), &fakeCommander{}, &fakeBroadcaster{}, config, fake,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	stuck, _ := m.claim(3)
	fake.Advance(6 * time.Minute)
	running, _ := m.claim(4)
	fake.Advance(5 * time.Minute)

	// Company 3 has been held for 11 minutes, company 4 for 5.
	if n := m.ReleaseStale(); n != 1 {
		t.Fatalf("ReleaseStale dropped %d markers, want 1", n)
	}
	if got := m.InProgress(); len(got) != 1 || got[0] != 4 {
		t.Fatalf("InProgress = %v, want [4]", got)
	}
	if _, ok := m.claim(4); ok {
		t.Fatal("second cleanup claimed a company whose cleanup is still running")
	}

	// A new cleanup of company 3 is not undone when the stuck one
	// finally returns.
	fresh, ok := m.claim(3)
	if !ok {
		t.Fatal("company 3 still blocked after its stale marker was dropped")
	}
	m.release(3, stuck)
	if got := m.InProgress(); len(got) != 2 {
		t.Fatalf("InProgress = %v after the stale release, want [3 4]", got)
	}
	m.release(3, fresh)
	m.release(4, running)
	if got := m.InProgress(); len(got) != 0 {
		t.Fatalf("InProgress = %v after both cleanups released, want none", got)
	}
}

func TestSweepBoundsConcurrency(t *testing.T) {
	var companies []gamestate.Company
	for id := gamestate.CompanyID(1); id <= 5; id++ {
		companies = append(companies, gamestate.Company{ID: id, Founded: 1955})
	}
	state := newFakeState(companies, nil)
	commander := &fakeCommander{
		date:    "Date: 1970-01-01",
		gate:    make(chan struct{}),
		entered: make(chan gamestate.CompanyID, 5),
	}
	m := newTestMonitor(state, commander, &fakeBroadcaster{})

	done := make(chan Result, 1)
	go func() { done <- m.Sweep(context.Background(), state.Peek().Companies) }()

	for i := 0; i < 3; i++ {
		testutil.RequireReceive(t, commander.entered, 5*time.Second, "waiting for cleanups to start")
	}
	if m.limiter.TryAcquire(1) {
		t.Fatal("limiter has room while three cleanups run")
	}
	close(commander.gate)

	result := testutil.RequireReceive(t, done, 5*time.Second, "waiting for sweep")
	if result.Year != 1970 {
		t.Errorf("year = %d, want 1970", result.Year)
	}
	if len(result.Cleaned) != 5 || len(result.Failed) != 0 {
		t.Errorf("result = %+v, want all five cleaned", result)
	}
	if commander.peak > 3 {
		t.Errorf("peak concurrent resets = %d, want at most 3", commander.peak)
	}
}

func TestCleanUnnamed(t *testing.T) {
	state := newFakeState(
		[]gamestate.Company{
			{ID: 1, Name: "Unnamed"},
			{ID: 2, Name: "Unnamed"},
			{ID: 4, Name: "Fast Freight"},
		},
		[]gamestate.Client{{ID: 7, Company: 1}},
	)
	commander := &fakeCommander{}
	m := newTestMonitor(state, commander, &fakeBroadcaster{})

	id, ok := m.CleanUnnamed(context.Background())
	if !ok || id != 2 {
		t.Fatalf("CleanUnnamed = %v, %v; want company 2", id, ok)
	}
	if _, ok := m.CleanUnnamed(context.Background()); ok {
		t.Error("second CleanUnnamed removed an occupied or named company")
	}
	if sent := commander.sent(); len(sent) != 1 || sent[0] != "reset_company 2" {
		t.Errorf("commands = %v", sent)
	}
}
