// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gamestate

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/steward/lib/clock"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// scriptedQuerier answers each command name with queued outputs,
// repeating the last one once the queue is down to it.
type scriptedQuerier struct {
	mu      sync.Mutex
	outputs map[string][]string
	calls   map[string]int
}

func newScriptedQuerier() *scriptedQuerier {
	return &scriptedQuerier{outputs: map[string][]string{}, calls: map[string]int{}}
}

func (q *scriptedQuerier) script(name string, outputs ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.outputs[name] = outputs
}

func (q *scriptedQuerier) Query(_ context.Context, name string, _ ...string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls[name]++
	queue := q.outputs[name]
	if len(queue) == 0 {
		return ""
	}
	output := queue[0]
	if len(queue) > 1 {
		q.outputs[name] = queue[1:]
	}
	return output
}

func (q *scriptedQuerier) count(name string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls[name]
}

func newTestStore(t *testing.T) (*Store, *scriptedQuerier, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(epoch)
	querier := newScriptedQuerier()
	store, err := NewStore(querier, DefaultConfig(), fake, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, querier, fake
}

func TestRefreshReplacesMentionedOnly(t *testing.T) {
	store, querier, _ := newTestStore(t)
	store.PutCompanyInfo(Company{ID: 9, Name: "Pushed Only", Founded: 1970})
	store.PutCompanyInfo(Company{ID: 1, Name: "Old Name", Founded: 1950})
	store.PutCompanyEconomy(1, 99, 99)

	querier.script("companies", companiesOutput)
	store.RefreshCompanies(context.Background())

	acme, ok := store.Company(1)
	if !ok || acme.Name != "Acme Transport" || acme.Money != 1234567 {
		t.Fatalf("company 1 = %+v, want wholesale replacement", acme)
	}
	if _, ok := store.Company(9); !ok {
		t.Fatal("company absent from refresh output was evicted")
	}
	if !store.Initialized() {
		t.Fatal("store not initialized after a successful refresh")
	}
}

func TestSnapshotRefreshesOnlyWhenStale(t *testing.T) {
	store, querier, fake := newTestStore(t)
	querier.script("companies", companiesOutput)
	querier.script("clients", "Client #4  name: 'alice'  company: 1")

	ctx := context.Background()
	store.Snapshot(ctx, true)
	fake.Advance(5 * time.Second)
	store.Snapshot(ctx, true)
	if querier.count("companies") != 1 || querier.count("clients") != 1 {
		t.Fatalf("queries within refresh TTL: companies=%d clients=%d",
			querier.count("companies"), querier.count("clients"))
	}

	fake.Advance(5 * time.Second)
	snapshot := store.Snapshot(ctx, true)
	if querier.count("companies") != 2 || querier.count("clients") != 2 {
		t.Fatalf("queries after refresh TTL: companies=%d clients=%d",
			querier.count("companies"), querier.count("clients"))
	}
	if len(snapshot.Active()) != 2 {
		t.Fatalf("Active() = %v", snapshot.Active())
	}
}

func TestSnapshotRetriesCompaniesWhenClientsDisagree(t *testing.T) {
	store, querier, _ := newTestStore(t)
	querier.script("companies", "", companiesOutput)
	querier.script("clients", "Client #4  name: 'alice'  company: 3")

	snapshot := store.Snapshot(context.Background(), true)
	if len(snapshot.Companies) != 3 {
		t.Fatalf("Snapshot companies = %d, want refresh after client hint", len(snapshot.Companies))
	}
}

func TestStaleReadSkipsRefreshWhenNotRequested(t *testing.T) {
	store, querier, _ := newTestStore(t)
	store.Snapshot(context.Background(), false)
	if querier.count("companies") != 0 {
		t.Fatal("non-fresh snapshot issued a command")
	}
}

func TestClientChangesNotify(t *testing.T) {
	store, _, _ := newTestStore(t)
	var changes []Change
	store.Subscribe(func(change Change) { changes = append(changes, change) })

	store.PutClient(Client{ID: 5, Name: "alice", Company: 2, Address: "198.51.100.1"})
	store.PutClientUpdate(5, "alice", 2)
	store.PutClientUpdate(5, "alice", Spectator)
	store.RemoveClient(5)

	want := []Change{
		{Kind: ClientJoined, Client: 5, Company: 2},
		{Kind: ClientUpdated, Client: 5, Company: 2},
		{Kind: ClientMoved, Client: 5, Company: Spectator, Previous: 2},
		{Kind: ClientLeft, Client: 5, Previous: Spectator},
	}
	if len(changes) != len(want) {
		t.Fatalf("changes = %+v, want %+v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %+v, want %+v", i, changes[i], want[i])
		}
	}
}

func TestClientUpdateKeepsAddress(t *testing.T) {
	store, _, _ := newTestStore(t)
	store.PutClient(Client{ID: 5, Name: "alice", Company: 2, Address: "198.51.100.1"})
	store.PutClientUpdate(5, "alice2", 3)
	client, _ := store.Client(5)
	if client.Address != "198.51.100.1" || client.Name != "alice2" || client.Company != 3 {
		t.Fatalf("client = %+v", client)
	}
}

func TestClearResetsInitialized(t *testing.T) {
	store, querier, _ := newTestStore(t)
	querier.script("companies", companiesOutput)
	store.RefreshCompanies(context.Background())
	store.PutClient(Client{ID: 2, Company: 1})

	store.Clear()

	snapshot := store.Peek()
	if len(snapshot.Companies) != 0 || len(snapshot.Clients) != 0 {
		t.Fatalf("snapshot after Clear = %+v", snapshot)
	}
	if store.Initialized() {
		t.Fatal("Initialized() true after Clear")
	}
}

func TestEntriesExpireWithoutRefresh(t *testing.T) {
	store, _, fake := newTestStore(t)
	store.PutClient(Client{ID: 2, Company: 1})
	fake.Advance(30 * time.Second)
	if _, ok := store.Client(2); ok {
		t.Fatal("client survived its TTL")
	}
	store.PutClient(Client{ID: 3, Company: 1})
	fake.Advance(30 * time.Second)
	if removed := store.CleanupExpired(); removed != 1 {
		t.Fatalf("CleanupExpired() = %d, want 1", removed)
	}
}

// blockingQuerier holds every query until release is closed and
// tracks how many run at once.
type blockingQuerier struct {
	release chan struct{}

	mu         sync.Mutex
	calls      map[string]int
	running    int
	maxRunning int
}

func (q *blockingQuerier) Query(_ context.Context, name string, _ ...string) string {
	q.mu.Lock()
	q.calls[name]++
	q.running++
	q.maxRunning = max(q.maxRunning, q.running)
	q.mu.Unlock()

	<-q.release

	q.mu.Lock()
	q.running--
	q.mu.Unlock()
	if name == "companies" {
		return companiesOutput
	}
	return ""
}

// waitForGoroutinesIn polls the goroutine dump until n goroutines have
// frame in their stack.
func waitForGoroutinesIn(t *testing.T, frame string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second) //nolint:realclock test hang prevention
	buffer := make([]byte, 1<<16)
	for {
		size := runtime.Stack(buffer, true)
		if size == len(buffer) {
			buffer = make([]byte, 2*len(buffer))
			continue
		}
		found := 0
		for _, stack := range bytes.Split(buffer[:size], []byte("\n\n")) {
			if bytes.Contains(stack, []byte(frame)) {
				found++
			}
		}
		if found >= n {
			return
		}
		if time.Now().After(deadline) { //nolint:realclock test hang prevention
			t.Fatalf("%d goroutines in %s, want %d", found, frame, n)
		}
		runtime.Gosched()
	}
}

func TestConcurrentRefreshesShareOneQuery(t *testing.T) {
	querier := &blockingQuerier{release: make(chan struct{}), calls: map[string]int{}}
	store, err := NewStore(querier, DefaultConfig(), clock.Fake(epoch), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	const callers = 8
	var wait sync.WaitGroup
	for i := 0; i < callers; i++ {
		wait.Add(1)
		go func() {
			defer wait.Done()
			store.RefreshCompanies(context.Background())
		}()
	}

	// Every caller is either running the query or waiting on the one
	// that is.
	waitForGoroutinesIn(t, "singleflight.(*Group).Do", callers)
	close(querier.release)
	wait.Wait()

	querier.mu.Lock()
	calls, maxRunning := querier.calls["companies"], querier.maxRunning
	querier.mu.Unlock()
	if calls != 1 {
		t.Fatalf("companies queried %d times by %d concurrent refreshes, want 1", calls, callers)
	}
	if maxRunning != 1 {
		t.Fatalf("%d queries ran at once, want 1", maxRunning)
	}
	if _, ok := store.Company(1); !ok {
		t.Fatal("shared refresh did not populate the cache")
	}
	if !store.Initialized() {
		t.Fatal("store not initialized after the shared refresh")
	}
}
