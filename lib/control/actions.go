// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/bureau-foundation/steward/lib/codec"
	"github.com/bureau-foundation/steward/lib/gamestate"
	"github.com/bureau-foundation/steward/lib/steward"
)

// Target is one connected server as the control actions see it.
// *steward.Bot implements it.
type Target interface {
	Status() steward.Status
	Snapshot() gamestate.Snapshot
	Execute(ctx context.Context, line string) (string, error)
}

// Directory resolves server names to connected targets.
type Directory interface {
	Names() []string
	Target(name string) (Target, bool)
}

type registryDirectory struct {
	registry *steward.Registry
}

// RegistryDirectory exposes a steward registry as a Directory.
func RegistryDirectory(registry *steward.Registry) Directory {
	return registryDirectory{registry: registry}
}

func (d registryDirectory) Names() []string { return d.registry.Names() }

func (d registryDirectory) Target(name string) (Target, bool) {
	bot, ok := d.registry.Get(name)
	if !ok {
		return nil, false
	}
	return bot, true
}

// ServerStatus is one entry of the status action. Status is nil while
// the server is disconnected.
type ServerStatus struct {
	Name      string          `json:"name"`
	Connected bool            `json:"connected"`
	Status    *steward.Status `json:"status,omitempty"`
}

// CompanyRow is one entry of the companies action.
type CompanyRow struct {
	ID      gamestate.CompanyID `json:"id"`
	Name    string              `json:"name"`
	Founded int                 `json:"founded"`
	Value   int64               `json:"value"`
	Money   int64               `json:"money"`
	Loan    int64               `json:"loan"`
	Clients int                 `json:"clients"`
	Active  bool                `json:"active"`
}

// RconResult is the result of the rcon action.
type RconResult struct {
	Output string `json:"output"`
}

type serverRequest struct {
	Server  string `cbor:"server"`
	Command string `cbor:"command"`
}

// ErrNotConnected is returned for a known server with no live
// connection.
var ErrNotConnected = errors.New("server not connected")

// Register installs the steward actions on server.
func Register(server *Server, directory Directory) {
	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		request, err := decodeRequest(raw)
		if err != nil {
			return nil, err
		}
		names := directory.Names()
		if request.Server != "" {
			if !slices.Contains(names, request.Server) {
				return nil, unknownServer(request.Server, names)
			}
			names = []string{request.Server}
		}
		statuses := make([]ServerStatus, 0, len(names))
		for _, name := range names {
			entry := ServerStatus{Name: name}
			if target, ok := directory.Target(name); ok {
				status := target.Status()
				entry.Connected = true
				entry.Status = &status
			}
			statuses = append(statuses, entry)
		}
		return statuses, nil
	})

	server.Handle("companies", func(ctx context.Context, raw []byte) (any, error) {
		target, _, err := resolve(directory, raw)
		if err != nil {
			return nil, err
		}
		return companyRows(target.Snapshot()), nil
	})

	server.Handle("clients", func(ctx context.Context, raw []byte) (any, error) {
		target, _, err := resolve(directory, raw)
		if err != nil {
			return nil, err
		}
		snapshot := target.Snapshot()
		clients := make([]gamestate.Client, 0, len(snapshot.Clients))
		for _, client := range snapshot.Clients {
			clients = append(clients, client)
		}
		sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
		return clients, nil
	})

	server.Handle("rcon", func(ctx context.Context, raw []byte) (any, error) {
		target, request, err := resolve(directory, raw)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(request.Command) == "" {
			return nil, errors.New("missing required field: command")
		}
		output, err := target.Execute(ctx, request.Command)
		if err != nil {
			return nil, err
		}
		return RconResult{Output: output}, nil
	})
}

func decodeRequest(raw []byte) (serverRequest, error) {
	var request serverRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return request, fmt.Errorf("invalid request: %w", err)
	}
	return request, nil
}

// resolve picks the target named in the request. The server field may
// be left out when only one server is configured.
func resolve(directory Directory, raw []byte) (Target, serverRequest, error) {
	request, err := decodeRequest(raw)
	if err != nil {
		return nil, request, err
	}
	names := directory.Names()
	if request.Server == "" {
		if len(names) != 1 {
			return nil, request, fmt.Errorf("missing required field: server (one of %s)", strings.Join(names, ", "))
		}
		request.Server = names[0]
	}
	if !slices.Contains(names, request.Server) {
		return nil, request, unknownServer(request.Server, names)
	}
	target, ok := directory.Target(request.Server)
	if !ok {
		return nil, request, fmt.Errorf("%s: %w", request.Server, ErrNotConnected)
	}
	return target, request, nil
}

func companyRows(snapshot gamestate.Snapshot) []CompanyRow {
	active := snapshot.Active()
	rows := make([]CompanyRow, 0, len(snapshot.Companies))
	for id, company := range snapshot.Companies {
		_, isActive := active[id]
		rows = append(rows, CompanyRow{
			ID:      id,
			Name:    company.Name,
			Founded: company.Founded,
			Value:   company.Value,
			Money:   company.Money,
			Loan:    company.Loan,
			Clients: len(snapshot.ClientsOf(id)),
			Active:  isActive,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

func unknownServer(name string, names []string) error {
	return fmt.Errorf("unknown server %q (configured: %s)", name, strings.Join(names, ", "))
}
