// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package steward

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/steward/lib/admin"
	"github.com/bureau-foundation/steward/lib/clock"
	"github.com/bureau-foundation/steward/lib/gamestate"
	"github.com/bureau-foundation/steward/lib/lifecycle"
	"github.com/bureau-foundation/steward/lib/testutil"
)

// fakeLink plays a server that answers console commands from a table.
type fakeLink struct {
	mu        sync.Mutex
	queue     []admin.Packet
	err       error
	responses map[string]string
	polls     []admin.UpdateType
	subscribe []admin.UpdateType

	ready      chan struct{}
	done       chan struct{}
	commands   chan string
	broadcasts chan string
	whispers   chan string
}

func newFakeLink(responses map[string]string) *fakeLink {
	return &fakeLink{
		responses:  responses,
		ready:      make(chan struct{}, 1),
		done:       make(chan struct{}),
		commands:   make(chan string, 256),
		broadcasts: make(chan string, 256),
		whispers:   make(chan string, 256),
	}
}

func (l *fakeLink) inject(packets ...admin.Packet) {
	l.mu.Lock()
	l.queue = append(l.queue, packets...)
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *fakeLink) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	close(l.done)
}

func (l *fakeLink) SendRcon(command string) error {
	l.commands <- command
	l.mu.Lock()
	output := l.responses[strings.Fields(command)[0]]
	l.mu.Unlock()
	var packets []admin.Packet
	for _, line := range strings.Split(output, "\n") {
		if line != "" {
			packets = append(packets, rconLine(line))
		}
	}
	l.inject(append(packets, rconEnd(command))...)
	return nil
}

func (l *fakeLink) Broadcast(message string) error {
	l.broadcasts <- message
	return nil
}

func (l *fakeLink) Whisper(client uint32, message string) error {
	l.whispers <- fmt.Sprintf("%d: %s", client, message)
	return nil
}

func (l *fakeLink) Subscribe(updateType admin.UpdateType, _ admin.Frequency) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribe = append(l.subscribe, updateType)
	return nil
}

func (l *fakeLink) Poll(updateType admin.UpdateType, _ uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.polls = append(l.polls, updateType)
	return nil
}

func (l *fakeLink) Ready() <-chan struct{} { return l.ready }
func (l *fakeLink) Done() <-chan struct{}  { return l.done }

func (l *fakeLink) Drain() ([]admin.Packet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	packets := l.queue
	l.queue = nil
	if len(packets) == 0 && l.err != nil {
		return nil, l.err
	}
	return packets, nil
}

func cstring(s string) []byte { return append([]byte(s), 0) }

func rconLine(line string) admin.Packet {
	payload := binary.LittleEndian.AppendUint16(nil, 1)
	return admin.Packet{Type: admin.ServerRcon, Payload: append(payload, cstring(line)...)}
}

func rconEnd(command string) admin.Packet {
	return admin.Packet{Type: admin.ServerRconEnd, Payload: cstring(command)}
}

func chatPacket(client gamestate.ClientID, message string) admin.Packet {
	payload := []byte{byte(admin.ActionChat), byte(admin.DestBroadcast)}
	payload = binary.LittleEndian.AppendUint32(payload, uint32(client))
	payload = append(payload, cstring(message)...)
	payload = binary.LittleEndian.AppendUint64(payload, 0)
	return admin.Packet{Type: admin.ServerChat, Payload: payload}
}

const (
	testCompanies = `#:1(Orange) Company Name: 'Acme Transport'  Year Founded: 1955  Money: $1,000  Loan: $0  Value: $12,000,000  (T:1, R:0, P:0, S:0) unprotected`
	testClients   = "Client #1  name: 'Server'  company: 255  IP: server\n" +
		"Client #4  name: 'alice'  company: 1  IP: 203.0.113.9"
)

func newTestBot(t *testing.T) (*Bot, *fakeLink, *clock.FakeClock) {
	t.Helper()
	link := newFakeLink(map[string]string{
		"companies": testCompanies,
		"clients":   testClients,
		"get_date":  "Date: 1958-01-01",
	})
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	config := DefaultConfig()
	config.Name = "test"
	config.Gateway.Grace = 0
	config.Gateway.Attempts = 1
	config.Handshake.SettleDelay = 0
	config.Cleanup.MoveDelay = 0
	config.ChatInterval = 0
	bot, err := New(link, config, fake, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return bot, link, fake
}

func runBot(t *testing.T, bot *Bot) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		result <- bot.Run(ctx)
		close(finished)
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, finished, 5*time.Second, "waiting for bot to stop")
	})
	return result
}

// awaitCommand reads sent console commands until want shows up.
func awaitCommand(t *testing.T, link *fakeLink, want string) []string {
	t.Helper()
	var seen []string
	for {
		command := testutil.RequireReceive(t, link.commands, 5*time.Second, "waiting for %q after %v", want, seen)
		seen = append(seen, command)
		if command == want {
			return seen
		}
	}
}

func awaitMessage(t *testing.T, messages <-chan string, want string) {
	t.Helper()
	for {
		message := testutil.RequireReceive(t, messages, 5*time.Second, "waiting for %q", want)
		if message == want {
			return
		}
	}
}

func TestStartupBuildsViewAndUnpauses(t *testing.T) {
	bot, link, _ := newTestBot(t)
	runBot(t, bot)

	awaitMessage(t, link.broadcasts, "Admin connected")
	seen := awaitCommand(t, link, "unpause")
	if seen[0] != "companies" || seen[1] != "clients" {
		t.Errorf("startup commands = %v, want companies then clients first", seen)
	}

	snapshot := bot.Snapshot()
	if len(snapshot.Companies) != 1 || snapshot.Companies[1].Name != "Acme Transport" {
		t.Errorf("companies = %+v", snapshot.Companies)
	}
	if client, ok := snapshot.Clients[4]; !ok || client.Company != 1 {
		t.Errorf("clients = %+v", snapshot.Clients)
	}
	if bot.Phase() != lifecycle.Active {
		t.Errorf("phase = %s, want active", bot.Phase())
	}

	link.mu.Lock()
	subscriptions, polls := len(link.subscribe), len(link.polls)
	link.mu.Unlock()
	if subscriptions != 5 || polls != 2 {
		t.Errorf("subscriptions = %d, polls = %d", subscriptions, polls)
	}
}

func TestChatResetFlow(t *testing.T) {
	bot, link, fake := newTestBot(t)
	runBot(t, bot)
	awaitCommand(t, link, "unpause")

	link.inject(chatPacket(4, "!reset"))
	awaitMessage(t, link.whispers, "4: === Reset Company 1 ===")
	if pending := bot.Status().PendingResets; len(pending) != 1 || pending[0].Company != 1 {
		t.Fatalf("pending resets = %+v", pending)
	}

	fake.Advance(time.Second)
	link.inject(chatPacket(4, "!yes"))
	awaitCommand(t, link, "move 4 255")
	awaitCommand(t, link, "reset_company 1")
	awaitMessage(t, link.whispers, "4: Company 1 reset")

	if _, ok := bot.Snapshot().Companies[1]; ok {
		t.Error("reset company still cached")
	}
}

func TestServerChatIgnored(t *testing.T) {
	bot, link, _ := newTestBot(t)
	runBot(t, bot)
	awaitCommand(t, link, "unpause")

	link.inject(chatPacket(gamestate.ServerClient, "!help"), chatPacket(4, "!help"))
	awaitMessage(t, link.whispers, "4: Commands: !info, !rules, !cv, !reset")
	select {
	case message := <-link.whispers:
		t.Errorf("unexpected whisper %q", message)
	default:
	}
}

func TestConnectionLossStopsRun(t *testing.T) {
	bot, link, _ := newTestBot(t)
	result := runBot(t, bot)
	awaitCommand(t, link, "unpause")

	link.fail(io.ErrUnexpectedEOF)
	err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for Run to return")
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Run = %v, want the connection error", err)
	}
}
