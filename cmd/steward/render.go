// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/steward/lib/control"
	"github.com/bureau-foundation/steward/lib/gamestate"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	noteStyle   = lipgloss.NewStyle().Faint(true)
)

// table collects tab-separated rows and writes them aligned, with the
// header row styled. Styling is applied after alignment so escape
// sequences do not count toward column widths.
type table struct {
	buffer bytes.Buffer
	writer *tabwriter.Writer
}

func newTable(columns ...string) *table {
	t := &table{}
	t.writer = tabwriter.NewWriter(&t.buffer, 0, 0, 2, ' ', 0)
	t.row(columns...)
	return t
}

func (t *table) row(cells ...string) {
	fmt.Fprintln(t.writer, strings.Join(cells, "\t"))
}

func (t *table) render(w io.Writer) error {
	if err := t.writer.Flush(); err != nil {
		return err
	}
	header, rest, _ := strings.Cut(t.buffer.String(), "\n")
	_, err := fmt.Fprintf(w, "%s\n%s", headerStyle.Render(strings.TrimRight(header, " ")), rest)
	return err
}

func money(value int64) string {
	if value < 0 {
		return "-$" + humanize.Comma(-value)
	}
	return "$" + humanize.Comma(value)
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func renderStatus(w io.Writer, statuses []control.ServerStatus) error {
	t := newTable("SERVER", "PHASE", "PAUSE", "COMPANIES", "CLIENTS", "RESETS", "BREAKER", "GAME DATE", "UP SINCE")
	var notes []string
	for _, entry := range statuses {
		if !entry.Connected || entry.Status == nil {
			t.row(entry.Name, "disconnected", "-", "-", "-", "-", "-", "-", "-")
			continue
		}
		status := entry.Status
		gameDate := "-"
		if !status.GameDate.IsZero() {
			gameDate = status.GameDate.Format("2006-01-02")
		}
		t.row(
			entry.Name,
			status.Phase,
			status.Pause,
			fmt.Sprintf("%d/%d", status.ActiveCompanies, status.Companies),
			strconv.Itoa(status.Clients),
			strconv.Itoa(len(status.PendingResets)),
			status.Breaker,
			gameDate,
			since(status.Started),
		)
		if status.InFlight != "" {
			notes = append(notes, fmt.Sprintf("%s: running %q", entry.Name, status.InFlight))
		}
		if len(status.Cleaning) > 0 {
			notes = append(notes, fmt.Sprintf("%s: cleaning companies %v", entry.Name, status.Cleaning))
		}
	}
	if err := t.render(w); err != nil {
		return err
	}
	for _, note := range notes {
		if _, err := fmt.Fprintln(w, noteStyle.Render(note)); err != nil {
			return err
		}
	}
	return nil
}

func renderCompanies(w io.Writer, rows []control.CompanyRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No companies")
		return err
	}
	t := newTable("ID", "NAME", "FOUNDED", "VALUE", "MONEY", "LOAN", "CLIENTS", "ACTIVE")
	for _, row := range rows {
		active := "no"
		if row.Active {
			active = "yes"
		}
		t.row(
			row.ID.String(),
			row.Name,
			strconv.Itoa(row.Founded),
			money(row.Value),
			money(row.Money),
			money(row.Loan),
			strconv.Itoa(row.Clients),
			active,
		)
	}
	return t.render(w)
}

func renderClients(w io.Writer, clients []gamestate.Client) error {
	if len(clients) == 0 {
		_, err := fmt.Fprintln(w, "No clients")
		return err
	}
	t := newTable("ID", "NAME", "COMPANY", "ADDRESS")
	for _, client := range clients {
		address := client.Address
		if address == "" {
			address = "-"
		}
		t.row(strconv.FormatUint(uint64(client.ID), 10), client.Name, client.Company.String(), address)
	}
	return t.render(w)
}
