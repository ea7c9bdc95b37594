// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/steward/lib/clock"
	"github.com/bureau-foundation/steward/lib/gamestate"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeCommander struct {
	mu       sync.Mutex
	commands []string
	response string
	err      error
}

func (c *fakeCommander) Execute(_ context.Context, name string, args ...string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, strings.Join(append([]string{name}, args...), " "))
	return c.response, c.err
}

func (c *fakeCommander) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []string
}

func (b *recordingBroadcaster) Broadcast(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message)
}

func (b *recordingBroadcaster) all() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.messages...)
}

func testReferee(commander Commander, onLoaded func(context.Context)) (*Referee, *Machine, *recordingBroadcaster, *clock.FakeClock) {
	fake := clock.Fake(epoch)
	machine := NewMachine(discardLogger())
	broadcaster := &recordingBroadcaster{}
	config := DefaultRefereeConfig()
	config.Goal = 1_000_000
	referee := NewReferee(machine, commander, broadcaster, config, fake, discardLogger(), onLoaded)
	return referee, machine, broadcaster, fake
}

func companies(values ...int64) map[gamestate.CompanyID]gamestate.Company {
	result := make(map[gamestate.CompanyID]gamestate.Company)
	for i, value := range values {
		id := gamestate.CompanyID(i + 1)
		result[id] = gamestate.Company{ID: id, Name: "Co " + id.String(), Value: value}
	}
	return result
}

func TestCheckGoalIntervals(t *testing.T) {
	referee, _, _, _ := testReferee(&fakeCommander{}, nil)
	tests := []struct {
		name   string
		active map[gamestate.CompanyID]gamestate.Company
		want   time.Duration
	}{
		{"no companies", companies(), 5 * time.Minute},
		{"far from goal", companies(10, 500_000), 30 * time.Minute},
		{"ninety percent", companies(900_000), 10 * time.Minute},
		{"ninety five percent", companies(100, 960_000), 3 * time.Minute},
	}
	for _, test := range tests {
		if got := referee.CheckGoal(context.Background(), test.active); got != test.want {
			t.Errorf("%s: CheckGoal = %v, want %v", test.name, got, test.want)
		}
	}
}

func TestGoalResetsMapOnce(t *testing.T) {
	commander := &fakeCommander{response: "Loading scenario..."}
	loaded := make(chan struct{}, 2)
	referee, machine, broadcaster, fake := testReferee(commander, func(context.Context) { loaded <- struct{}{} })
	machine.Transition(Active)

	ctx := context.Background()
	referee.CheckGoal(ctx, companies(2_000_000, 1_500_000))
	referee.CheckGoal(ctx, companies(2_000_000, 1_500_000))
	if machine.Phase() != Resetting {
		t.Fatalf("phase = %s, want resetting", machine.Phase())
	}

	fake.WaitForTimers(1)
	fake.Advance(10 * time.Second)
	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)
	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)
	referee.Wait()

	if got := commander.sent(); len(got) != 1 || got[0] != "load_scenario flat2048prodboost.scn" {
		t.Fatalf("commands = %q, want a single load_scenario", got)
	}
	if len(loaded) != 1 {
		t.Fatalf("onLoaded ran %d times, want 1", len(loaded))
	}
	if machine.Phase() != Waiting {
		t.Fatalf("phase = %s after reset, want waiting", machine.Phase())
	}

	messages := broadcaster.all()
	want := []string{"=== GOAL ACHIEVED ===", "Map reset in 10s...", "Map reset in 5s...", "New map loaded"}
	if len(messages) != len(want) {
		t.Fatalf("broadcasts = %q", messages)
	}
	for i := range want {
		if !strings.HasPrefix(messages[i], want[i]) {
			t.Errorf("broadcast %d = %q, want prefix %q", i, messages[i], want[i])
		}
	}
	if !strings.Contains(messages[0], "Winner: Co 1") {
		t.Errorf("announcement %q does not name the leader", messages[0])
	}
}

func TestFailedLoadReturnsToActive(t *testing.T) {
	commander := &fakeCommander{response: "File 'flat2048prodboost.scn' cannot be found"}
	referee, machine, broadcaster, fake := testReferee(commander, nil)
	machine.Transition(Active)

	referee.CheckGoal(context.Background(), companies(5_000_000))
	for i := 0; i < 3; i++ {
		fake.WaitForTimers(1)
		fake.Advance(10 * time.Second)
	}
	referee.Wait()

	if machine.Phase() != Active {
		t.Fatalf("phase = %s after failed reset, want active", machine.Phase())
	}
	messages := broadcaster.all()
	if messages[len(messages)-1] != "Map reset failed!" {
		t.Fatalf("last broadcast = %q", messages[len(messages)-1])
	}
}

func TestGoalIgnoredOutsideActive(t *testing.T) {
	commander := &fakeCommander{}
	referee, machine, _, _ := testReferee(commander, nil)

	referee.CheckGoal(context.Background(), companies(5_000_000))
	referee.Wait()
	if machine.Phase() != Waiting || len(commander.sent()) != 0 {
		t.Fatalf("goal claimed while waiting: phase %s commands %q", machine.Phase(), commander.sent())
	}
}

func TestCountdownAbortsOnCancel(t *testing.T) {
	commander := &fakeCommander{}
	referee, machine, _, fake := testReferee(commander, nil)
	machine.Transition(Active)

	ctx, cancel := context.WithCancel(context.Background())
	referee.CheckGoal(ctx, companies(5_000_000))
	fake.WaitForTimers(1)
	cancel()
	referee.Wait()

	if len(commander.sent()) != 0 {
		t.Fatalf("scenario loaded after cancellation: %q", commander.sent())
	}
}
