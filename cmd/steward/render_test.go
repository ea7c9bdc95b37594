// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/steward/lib/control"
	"github.com/bureau-foundation/steward/lib/gamestate"
	"github.com/bureau-foundation/steward/lib/steward"
)

func TestMoney(t *testing.T) {
	tests := []struct {
		value int64
		want  string
	}{
		{0, "$0"},
		{999, "$999"},
		{12_345_678, "$12,345,678"},
		{-50_000, "-$50,000"},
	}
	for _, test := range tests {
		if got := money(test.value); got != test.want {
			t.Errorf("money(%d) = %q, want %q", test.value, got, test.want)
		}
	}
}

func TestRenderStatus(t *testing.T) {
	statuses := []control.ServerStatus{
		{
			Name:      "server1",
			Connected: true,
			Status: &steward.Status{
				Phase:           "active",
				Pause:           "running",
				Breaker:         "closed",
				Companies:       4,
				ActiveCompanies: 3,
				Clients:         6,
				InFlight:        "companies",
				GameDate:        time.Date(1968, 4, 2, 0, 0, 0, 0, time.UTC),
			},
		},
		{Name: "server2"},
	}

	var buffer bytes.Buffer
	if err := renderStatus(&buffer, statuses); err != nil {
		t.Fatalf("renderStatus: %v", err)
	}
	output := buffer.String()
	for _, want := range []string{"SERVER", "server1", "active", "3/4", "1968-04-02", "server2", "disconnected", `running "companies"`} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestRenderCompanies(t *testing.T) {
	rows := []control.CompanyRow{
		{ID: 1, Name: "Acme Transport", Founded: 1950, Value: 12_345_678, Money: 1_000, Clients: 2, Active: true},
		{ID: 12, Name: "Beta", Founded: 1961, Loan: 300_000},
	}
	var buffer bytes.Buffer
	if err := renderCompanies(&buffer, rows); err != nil {
		t.Fatalf("renderCompanies: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buffer.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buffer.String())
	}
	if !strings.Contains(lines[1], "$12,345,678") || !strings.Contains(lines[1], "yes") {
		t.Errorf("row 1 = %q", lines[1])
	}
	// Columns line up: the value column starts at the same offset.
	if strings.Index(lines[1], "$12,345,678") != strings.Index(lines[2], "$0") {
		t.Errorf("columns misaligned:\n%s", buffer.String())
	}

	buffer.Reset()
	if err := renderCompanies(&buffer, nil); err != nil || buffer.String() != "No companies\n" {
		t.Errorf("empty output = %q, %v", buffer.String(), err)
	}
}

func TestRenderClients(t *testing.T) {
	clients := []gamestate.Client{
		{ID: 4, Name: "alice", Company: 1, Address: "203.0.113.9"},
		{ID: 7, Name: "bob", Company: gamestate.Spectator},
	}
	var buffer bytes.Buffer
	if err := renderClients(&buffer, clients); err != nil {
		t.Fatalf("renderClients: %v", err)
	}
	output := buffer.String()
	for _, want := range []string{"alice", "203.0.113.9", "spectator", "bob"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestRootCommandListsSubcommands(t *testing.T) {
	var buffer bytes.Buffer
	rootCommand().PrintHelp(&buffer)
	for _, name := range []string{"status", "companies", "clients", "rcon", "version"} {
		if !strings.Contains(buffer.String(), name) {
			t.Errorf("help missing %q", name)
		}
	}
}
