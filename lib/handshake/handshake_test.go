// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handshake

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

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeState struct {
	mu        sync.Mutex
	clients   map[gamestate.ClientID]gamestate.Client
	companies map[gamestate.CompanyID]gamestate.Company
	removed   []gamestate.CompanyID
}

func newFakeState() *fakeState {
	return &fakeState{
		clients:   make(map[gamestate.ClientID]gamestate.Client),
		companies: make(map[gamestate.CompanyID]gamestate.Company),
	}
}

func (s *fakeState) join(id gamestate.ClientID, company gamestate.CompanyID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[id] = gamestate.Client{ID: id, Name: "player", Company: company}
	if company.Valid() {
		if _, ok := s.companies[company]; !ok {
			s.companies[company] = gamestate.Company{ID: company, Name: "Railways"}
		}
	}
}

func (s *fakeState) LookupClient(_ context.Context, id gamestate.ClientID) (gamestate.Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	client, ok := s.clients[id]
	return client, ok
}

func (s *fakeState) RefreshClients(context.Context)   {}
func (s *fakeState) RefreshCompanies(context.Context) {}

func (s *fakeState) Company(id gamestate.CompanyID) (gamestate.Company, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	company, ok := s.companies[id]
	return company, ok
}

func (s *fakeState) RemoveCompany(id gamestate.CompanyID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.companies, id)
	s.removed = append(s.removed, id)
}

type fakeCommander struct {
	mu       sync.Mutex
	commands []string
	fail     string
}

func (c *fakeCommander) Execute(_ context.Context, name string, args ...string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, strings.Join(append([]string{name}, args...), " "))
	if name == c.fail {
		return "", errors.New("rcon: command timed out")
	}
	return "", nil
}

func (c *fakeCommander) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

type fakeMessenger struct {
	messages chan string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{messages: make(chan string, 32)}
}

func (m *fakeMessenger) Tell(client gamestate.ClientID, message string) {
	m.messages <- client.String() + ": " + message
}

func (m *fakeMessenger) next(t *testing.T) string {
	t.Helper()
	return testutil.RequireReceive(t, m.messages, 5*time.Second, "waiting for message")
}

func (m *fakeMessenger) drain() []string {
	var out []string
	for {
		select {
		case message := <-m.messages:
			out = append(out, message)
		default:
			return out
		}
	}
}

type fixture struct {
	clock     *clock.FakeClock
	state     *fakeState
	commander *fakeCommander
	messenger *fakeMessenger
	handshake *Handshake
}

func newFixture(t *testing.T, implicit bool) *fixture {
	t.Helper()
	f := &fixture{
		clock:     clock.Fake(epoch),
		state:     newFakeState(),
		commander: &fakeCommander{},
		messenger: newFakeMessenger(),
	}
	config := DefaultConfig()
	config.ImplicitConfirm = implicit
	config.SettleDelay = 0
	f.handshake = New(f.state, f.commander, f.messenger, config, f.clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(f.handshake.Close)
	return f
}

func TestRequestAndConfirm(t *testing.T) {
	f := newFixture(t, false)
	f.state.join(7, 3)
	ctx := context.Background()

	if err := f.handshake.Request(ctx, 7); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if prompt := f.messenger.next(t); !strings.Contains(prompt, "=== Reset Company 3 ===") {
		t.Errorf("prompt = %q", prompt)
	}
	if err := f.handshake.Confirm(ctx, 7); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	want := []string{"move 7 255", "reset_company 3"}
	got := f.commander.sent()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("commands = %v, want %v", got, want)
	}
	if done := f.messenger.next(t); done != "7: Company 3 reset" {
		t.Errorf("final message = %q", done)
	}
	if len(f.state.removed) != 1 || f.state.removed[0] != 3 {
		t.Errorf("removed = %v, want [3]", f.state.removed)
	}
	if pending := f.handshake.Pending(); len(pending) != 0 {
		t.Errorf("pending after confirm = %v", pending)
	}
}

func TestSecondRequestRejected(t *testing.T) {
	f := newFixture(t, false)
	f.state.join(7, 3)
	ctx := context.Background()

	if err := f.handshake.Request(ctx, 7); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := f.handshake.Request(ctx, 7); !errors.Is(err, ErrAlreadyPending) {
		t.Fatalf("second Request = %v, want ErrAlreadyPending", err)
	}
	pending := f.handshake.Pending()
	if len(pending) != 1 || pending[0].Company != 3 || !pending[0].Created.Equal(epoch) {
		t.Errorf("pending = %+v, want the original request", pending)
	}
}

func TestRequestFromSpectatorRejected(t *testing.T) {
	f := newFixture(t, false)
	f.state.join(7, gamestate.Spectator)

	if err := f.handshake.Request(context.Background(), 7); !errors.Is(err, ErrNotInCompany) {
		t.Fatalf("Request = %v, want ErrNotInCompany", err)
	}
	if err := f.handshake.Request(context.Background(), 99); !errors.Is(err, ErrNotInCompany) {
		t.Fatalf("Request for unknown client = %v, want ErrNotInCompany", err)
	}
}

func TestConfirmWithoutRequest(t *testing.T) {
	f := newFixture(t, false)
	if err := f.handshake.Confirm(context.Background(), 7); !errors.Is(err, ErrNoPending) {
		t.Fatalf("Confirm = %v, want ErrNoPending", err)
	}
}

func TestConfirmAfterCompanyChangeCancels(t *testing.T) {
	f := newFixture(t, false)
	f.state.join(7, 3)
	f.state.join(8, 5)
	ctx := context.Background()

	if err := f.handshake.Request(ctx, 7); err != nil {
		t.Fatalf("Request: %v", err)
	}
	f.messenger.next(t)

	// The move shows up in the state without a move notification.
	f.state.join(7, 5)

	err := f.handshake.Confirm(ctx, 7)
	if !errors.Is(err, ErrMismatchCancelled) {
		t.Fatalf("Confirm = %v, want ErrMismatchCancelled", err)
	}
	var stale *StaleActorError
	if !errors.As(err, &stale) || stale.Expected != 3 || stale.Actual != 5 {
		t.Errorf("stale error = %+v", stale)
	}
	if sent := f.commander.sent(); len(sent) != 0 {
		t.Errorf("destructive commands issued: %v", sent)
	}
	if notice := f.messenger.next(t); !strings.Contains(notice, "now in company 5") {
		t.Errorf("notice = %q", notice)
	}
	if err := f.handshake.Confirm(ctx, 7); !errors.Is(err, ErrNoPending) {
		t.Errorf("request still pending after cancellation: %v", err)
	}
}

func TestConfirmTargetGone(t *testing.T) {
	f := newFixture(t, false)
	f.state.join(7, 3)
	ctx := context.Background()

	if err := f.handshake.Request(ctx, 7); err != nil {
		t.Fatalf("Request: %v", err)
	}
	f.messenger.next(t)
	f.state.mu.Lock()
	delete(f.state.companies, 3)
	f.state.mu.Unlock()

	if err := f.handshake.Confirm(ctx, 7); !errors.Is(err, ErrTargetGone) {
		t.Fatalf("Confirm = %v, want ErrTargetGone", err)
	}
	if notice := f.messenger.next(t); notice != "7: Company 3 no longer exists." {
		t.Errorf("notice = %q", notice)
	}
	if sent := f.commander.sent(); len(sent) != 0 {
		t.Errorf("destructive commands issued: %v", sent)
	}
}

func TestRequestExpires(t *testing.T) {
	f := newFixture(t, false)
	f.state.join(7, 3)
	ctx := context.Background()

	if err := f.handshake.Request(ctx, 7); err != nil {
		t.Fatalf("Request: %v", err)
	}
	f.messenger.next(t)

	f.clock.Advance(29 * time.Second)
	if len(f.handshake.Pending()) != 1 {
		t.Fatal("request expired early")
	}
	f.clock.Advance(time.Second)
	if len(f.handshake.Pending()) != 0 {
		t.Fatal("request did not expire")
	}
	if notice := f.messenger.next(t); !strings.Contains(notice, "expired") {
		t.Errorf("notice = %q", notice)
	}
	if err := f.handshake.Confirm(ctx, 7); !errors.Is(err, ErrNoPending) {
		t.Errorf("Confirm after expiry = %v, want ErrNoPending", err)
	}
}

func TestMoveCancelsExplicitRequest(t *testing.T) {
	f := newFixture(t, false)
	f.state.join(7, 3)

	if err := f.handshake.Request(context.Background(), 7); err != nil {
		t.Fatalf("Request: %v", err)
	}
	f.messenger.next(t)

	f.handshake.ActorMoved(7, 3, gamestate.Spectator)
	if notice := f.messenger.next(t); notice != "7: Reset cancelled: you switched companies" {
		t.Errorf("notice = %q", notice)
	}
	if len(f.handshake.Pending()) != 0 {
		t.Error("request survived a company switch")
	}
	if f.clock.PendingCount() != 0 {
		t.Errorf("expiry timer left armed: %d pending", f.clock.PendingCount())
	}
}

func TestImplicitConfirmation(t *testing.T) {
	f := newFixture(t, true)
	f.state.join(7, 3)

	if err := f.handshake.Request(context.Background(), 7); err != nil {
		t.Fatalf("Request: %v", err)
	}
	f.messenger.next(t)

	f.state.join(7, gamestate.Spectator)
	f.handshake.ActorMoved(7, 3, gamestate.Spectator)

	if done := f.messenger.next(t); done != "7: Company 3 reset" {
		t.Fatalf("final message = %q", done)
	}
	sent := f.commander.sent()
	if len(sent) != 1 || sent[0] != "reset_company 3" {
		t.Errorf("commands = %v, want only reset_company 3", sent)
	}
}

func TestImplicitConfirmationRechecksActor(t *testing.T) {
	f := newFixture(t, true)
	f.state.join(7, 3)
	f.state.join(8, 4)

	if err := f.handshake.Request(context.Background(), 7); err != nil {
		t.Fatalf("Request: %v", err)
	}
	f.messenger.next(t)

	// The client passed through spectators and is already in another
	// company by the time the confirmation runs.
	f.state.join(7, 4)
	f.handshake.ActorMoved(7, 3, gamestate.Spectator)

	if notice := f.messenger.next(t); !strings.Contains(notice, "Reset cancelled") {
		t.Fatalf("notice = %q", notice)
	}
	f.handshake.Close()
	if sent := f.commander.sent(); len(sent) != 0 {
		t.Errorf("destructive commands issued: %v", sent)
	}
}

func TestActorLeftAndCompanyRemoved(t *testing.T) {
	f := newFixture(t, false)
	f.state.join(7, 3)
	f.state.join(8, 3)
	f.state.join(9, 4)
	ctx := context.Background()

	for _, id := range []gamestate.ClientID{7, 8, 9} {
		if err := f.handshake.Request(ctx, id); err != nil {
			t.Fatalf("Request(%d): %v", id, err)
		}
	}
	f.messenger.drain()

	f.handshake.ActorLeft(9)
	f.handshake.CompanyRemoved(3)

	if pending := f.handshake.Pending(); len(pending) != 0 {
		t.Errorf("pending = %+v, want none", pending)
	}
	notices := f.messenger.drain()
	if len(notices) != 2 {
		t.Fatalf("notices = %v, want two company-removed notices", notices)
	}
	for _, notice := range notices {
		if !strings.Contains(notice, "company 3 was removed") {
			t.Errorf("notice = %q", notice)
		}
	}
}

func TestResetFailureReported(t *testing.T) {
	f := newFixture(t, false)
	f.state.join(7, 3)
	f.commander.fail = "reset_company"
	ctx := context.Background()

	if err := f.handshake.Request(ctx, 7); err != nil {
		t.Fatalf("Request: %v", err)
	}
	f.messenger.next(t)
	if err := f.handshake.Confirm(ctx, 7); err == nil {
		t.Fatal("Confirm succeeded with failing reset_company")
	}
	if notice := f.messenger.next(t); notice != "7: Reset of company 3 failed" {
		t.Errorf("notice = %q", notice)
	}
	if len(f.state.removed) != 0 {
		t.Errorf("company removed from cache after failed reset: %v", f.state.removed)
	}
}

func TestSweepDropsStaleRequests(t *testing.T) {
	f := newFixture(t, false)
	f.state.join(7, 3)
	if err := f.handshake.Request(context.Background(), 7); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if dropped := f.handshake.Sweep(); dropped != 0 {
		t.Fatalf("Sweep dropped %d fresh requests", dropped)
	}
	f.handshake.mu.Lock()
	f.handshake.pending[7].Created = epoch.Add(-time.Minute)
	f.handshake.mu.Unlock()
	if dropped := f.handshake.Sweep(); dropped != 1 {
		t.Fatalf("Sweep dropped %d, want 1", dropped)
	}
}
