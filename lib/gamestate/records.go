// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gamestate

import (
	"strconv"
	"strings"
)

// CompanyID is a 1-based company number, or Spectator.
type CompanyID uint8

// Spectator is the owning company of clients not playing for any
// company.
const Spectator CompanyID = 255

// InvalidCompany stands for a protocol company number that names
// neither a company slot nor spectators.
const InvalidCompany CompanyID = 0

// MaxCompanies is the highest number of companies a server supports;
// valid display identifiers run from 1 to MaxCompanies.
const MaxCompanies = 15

// CompanyFromProtocol converts a 0-based admin protocol company number.
// Numbers past the last slot, other than the spectator sentinel,
// become InvalidCompany.
func CompanyFromProtocol(raw uint8) CompanyID {
	switch {
	case raw == uint8(Spectator):
		return Spectator
	case raw < MaxCompanies:
		return CompanyID(raw) + 1
	}
	return InvalidCompany
}

// Protocol returns the 0-based admin protocol number. ok is false for
// an id that is neither a valid company nor Spectator.
func (id CompanyID) Protocol() (raw uint8, ok bool) {
	switch {
	case id == Spectator:
		return uint8(Spectator), true
	case id.Valid():
		return uint8(id) - 1, true
	}
	return 0, false
}

// Valid reports whether id names a real company slot.
func (id CompanyID) Valid() bool {
	return id >= 1 && id <= MaxCompanies
}

func (id CompanyID) String() string {
	if id == Spectator {
		return "spectator"
	}
	return strconv.Itoa(int(id))
}

// ClientID identifies a connected client. The server itself is client 1.
type ClientID uint32

// ServerClient is the pseudo-client representing the server console.
const ServerClient ClientID = 1

func (id ClientID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Company is one company record.
type Company struct {
	ID      CompanyID `json:"id"`
	Name    string    `json:"name"`
	Founded int       `json:"founded"`
	Value   int64     `json:"value"`
	Loan    int64     `json:"loan"`
	Money   int64     `json:"money"`
	AI      bool      `json:"ai,omitempty"`
}

// unnamedCompany is the name the server gives a company nobody has
// named yet.
const unnamedCompany = "unnamed"

// Unnamed reports whether the company still carries the placeholder
// name.
func (c Company) Unnamed() bool {
	return strings.EqualFold(strings.TrimSpace(c.Name), unnamedCompany)
}

// Client is one connected client.
type Client struct {
	ID      ClientID  `json:"id"`
	Name    string    `json:"name"`
	Company CompanyID `json:"company"`
	Address string    `json:"address,omitempty"`
}

// Snapshot is a point-in-time copy of both caches. The two maps may
// reflect slightly different moments.
type Snapshot struct {
	Companies map[CompanyID]Company `json:"companies"`
	Clients   map[ClientID]Client   `json:"clients"`
}

// ClientsOf returns the clients playing for company.
func (s Snapshot) ClientsOf(company CompanyID) []Client {
	var clients []Client
	for _, client := range s.Clients {
		if client.Company == company {
			clients = append(clients, client)
		}
	}
	return clients
}

// Active returns the companies that count as in play: those with at
// least one client or a positive value, except an unnamed company
// nobody has joined.
func (s Snapshot) Active() map[CompanyID]Company {
	occupied := make(map[CompanyID]bool, len(s.Clients))
	for _, client := range s.Clients {
		occupied[client.Company] = true
	}

	active := make(map[CompanyID]Company)
	for id, company := range s.Companies {
		hasPlayers := occupied[id]
		if company.Unnamed() && !hasPlayers {
			continue
		}
		if hasPlayers || company.Value > 0 {
			active[id] = company
		}
	}
	return active
}

// HasCompanyClients reports whether any client plays for a company.
func (s Snapshot) HasCompanyClients() bool {
	for _, client := range s.Clients {
		if client.Company != Spectator {
			return true
		}
	}
	return false
}
