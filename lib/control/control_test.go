// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/steward/lib/gamestate"
	"github.com/bureau-foundation/steward/lib/steward"
	"github.com/bureau-foundation/steward/lib/testutil"
)

type fakeTarget struct {
	status   steward.Status
	snapshot gamestate.Snapshot

	mu       sync.Mutex
	executed []string
}

func (f *fakeTarget) Status() steward.Status       { return f.status }
func (f *fakeTarget) Snapshot() gamestate.Snapshot { return f.snapshot }
func (f *fakeTarget) Execute(_ context.Context, line string) (string, error) {
	f.mu.Lock()
	f.executed = append(f.executed, line)
	f.mu.Unlock()
	if line == "fail" {
		return "", errors.New("command rejected")
	}
	return "output of " + line, nil
}

type fakeDirectory struct {
	names   []string
	targets map[string]Target
}

func (d fakeDirectory) Names() []string { return d.names }

func (d fakeDirectory) Target(name string) (Target, bool) {
	target, ok := d.targets[name]
	return target, ok
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	for {
		if _, err := os.Stat(path); err == nil {
			return
		}
		if context.Background().Err() != nil {
			t.Fatalf("socket %s did not appear before test context expired", path)
		}
		runtime.Gosched()
	}
}

// startServer serves directory on a fresh socket and returns a client
// for it.
func startServer(t *testing.T, directory Directory) *Client {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	server := NewServer(socketPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	Register(server, directory)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, done, 5*time.Second, "waiting for server to stop")
	})
	waitForSocket(t, socketPath)
	return NewClient(socketPath)
}

func testDirectory() (fakeDirectory, *fakeTarget) {
	asia := &fakeTarget{
		status: steward.Status{Server: "asia", Phase: "active", Companies: 2},
		snapshot: gamestate.Snapshot{
			Companies: map[gamestate.CompanyID]gamestate.Company{
				2: {ID: 2, Name: "Beta Freight", Value: 10},
				1: {ID: 1, Name: "Acme Transport", Value: 5_000},
			},
			Clients: map[gamestate.ClientID]gamestate.Client{
				7: {ID: 7, Name: "bob", Company: gamestate.Spectator},
				4: {ID: 4, Name: "alice", Company: 1},
			},
		},
	}
	return fakeDirectory{
		names:   []string{"asia", "europe"},
		targets: map[string]Target{"asia": asia},
	}, asia
}

func TestStatus(t *testing.T) {
	directory, _ := testDirectory()
	client := startServer(t, directory)

	statuses, err := client.Status(context.Background(), "")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	if !statuses[0].Connected || statuses[0].Status == nil || statuses[0].Status.Companies != 2 {
		t.Errorf("asia = %+v", statuses[0])
	}
	if statuses[1].Name != "europe" || statuses[1].Connected || statuses[1].Status != nil {
		t.Errorf("europe = %+v", statuses[1])
	}

	statuses, err = client.Status(context.Background(), "europe")
	if err != nil || len(statuses) != 1 {
		t.Fatalf("Status(europe) = %+v, %v", statuses, err)
	}
}

func TestCompaniesAndClients(t *testing.T) {
	directory, _ := testDirectory()
	client := startServer(t, directory)

	rows, err := client.Companies(context.Background(), "asia")
	if err != nil {
		t.Fatalf("Companies: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != 1 || rows[1].ID != 2 {
		t.Fatalf("rows = %+v, want sorted by id", rows)
	}
	if rows[0].Clients != 1 || !rows[0].Active {
		t.Errorf("company 1 = %+v, want one client and active", rows[0])
	}
	if rows[1].Clients != 0 {
		t.Errorf("company 2 = %+v", rows[1])
	}

	clients, err := client.Clients(context.Background(), "asia")
	if err != nil {
		t.Fatalf("Clients: %v", err)
	}
	if len(clients) != 2 || clients[0].ID != 4 || clients[1].Company != gamestate.Spectator {
		t.Errorf("clients = %+v", clients)
	}
}

func TestRcon(t *testing.T) {
	directory, asia := testDirectory()
	client := startServer(t, directory)

	output, err := client.Rcon(context.Background(), "asia", "companies")
	if err != nil {
		t.Fatalf("Rcon: %v", err)
	}
	if output != "output of companies" {
		t.Errorf("output = %q", output)
	}

	_, err = client.Rcon(context.Background(), "asia", "fail")
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Message != "command rejected" {
		t.Errorf("failing command error = %v", err)
	}
	asia.mu.Lock()
	defer asia.mu.Unlock()
	if len(asia.executed) != 2 {
		t.Errorf("executed = %v", asia.executed)
	}
}

func TestServerResolution(t *testing.T) {
	directory, _ := testDirectory()
	client := startServer(t, directory)

	tests := []struct {
		name   string
		server string
	}{
		{"ambiguous", ""},
		{"unknown", "mars"},
		{"disconnected", "europe"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := client.Companies(context.Background(), test.server)
			var remote *RemoteError
			if !errors.As(err, &remote) {
				t.Fatalf("err = %v, want *RemoteError", err)
			}
		})
	}
}

func TestSingleServerDefault(t *testing.T) {
	directory, _ := testDirectory()
	directory.names = []string{"asia"}
	client := startServer(t, directory)

	rows, err := client.Companies(context.Background(), "")
	if err != nil || len(rows) != 2 {
		t.Fatalf("Companies = %+v, %v", rows, err)
	}
}

func TestUnknownAction(t *testing.T) {
	directory, _ := testDirectory()
	client := startServer(t, directory)

	err := client.Call(context.Background(), "shutdown", nil, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Message != `unknown action "shutdown"` {
		t.Errorf("err = %v", err)
	}
}
