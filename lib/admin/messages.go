// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"time"

	"github.com/bureau-foundation/steward/lib/gamestate"
)

// UpdateType selects a stream of server updates.
type UpdateType uint16

const (
	UpdateDate           UpdateType = 0
	UpdateClientInfo     UpdateType = 1
	UpdateCompanyInfo    UpdateType = 2
	UpdateCompanyEconomy UpdateType = 3
	UpdateCompanyStats   UpdateType = 4
	UpdateChat           UpdateType = 5
	UpdateConsole        UpdateType = 6
)

// Frequency is a bit set of delivery frequencies for an update type.
type Frequency uint16

const (
	FrequencyPoll      Frequency = 0x01
	FrequencyDaily     Frequency = 0x02
	FrequencyWeekly    Frequency = 0x04
	FrequencyMonthly   Frequency = 0x08
	FrequencyQuarterly Frequency = 0x10
	FrequencyAnnually  Frequency = 0x20
	FrequencyAutomatic Frequency = 0x40
)

// PollAll asks a poll for every client or company at once.
const PollAll uint32 = 0xFFFFFFFF

// NetworkAction is the kind of a chat message.
type NetworkAction uint8

const (
	ActionJoin          NetworkAction = 0
	ActionLeave         NetworkAction = 1
	ActionServerMessage NetworkAction = 2
	ActionChat          NetworkAction = 3
	ActionChatCompany   NetworkAction = 4
	ActionChatClient    NetworkAction = 5
)

// DestType is the audience of a chat message.
type DestType uint8

const (
	DestBroadcast DestType = 0
	DestTeam      DestType = 1
	DestClient    DestType = 2
)

// dateOrigin is day zero of the server calendar.
var dateOrigin = time.Date(0, time.January, 1, 0, 0, 0, 0, time.UTC)

// DateFromDays converts a server date, counted in days from 1 January
// of year 0, to a time.
func DateFromDays(days uint32) time.Time {
	return dateOrigin.AddDate(0, 0, int(days))
}

// JoinPacket logs in to the admin port.
func JoinPacket(password, name, version string) Packet {
	var w payloadWriter
	return w.string(password).string(name).string(version).packet(AdminJoin)
}

// QuitPacket tells the server the admin is leaving.
func QuitPacket() Packet { return Packet{Type: AdminQuit} }

// UpdateFrequencyPacket subscribes to updateType at frequency.
func UpdateFrequencyPacket(updateType UpdateType, frequency Frequency) Packet {
	var w payloadWriter
	return w.uint16(uint16(updateType)).uint16(uint16(frequency)).packet(AdminUpdateFrequency)
}

// PollPacket requests an immediate update. data selects one client or
// company, or PollAll.
func PollPacket(updateType UpdateType, data uint32) Packet {
	var w payloadWriter
	return w.uint8(uint8(updateType)).uint32(data).packet(AdminPoll)
}

// ChatPacket sends a chat message as the admin.
func ChatPacket(action NetworkAction, dest DestType, to uint32, message string) Packet {
	var w payloadWriter
	return w.uint8(uint8(action)).uint8(uint8(dest)).uint32(to).string(message).packet(AdminChat)
}

// RconPacket runs a console command.
func RconPacket(command string) Packet {
	var w payloadWriter
	return w.string(command).packet(AdminRcon)
}

// PingPacket asks the server to answer with token.
func PingPacket(token uint32) Packet {
	var w payloadWriter
	return w.uint32(token).packet(AdminPing)
}

// ProtocolInfo lists the update types the server supports.
type ProtocolInfo struct {
	Version uint8
	Updates map[UpdateType]Frequency
}

func decodeProtocol(payload []byte) (ProtocolInfo, error) {
	r := payloadReader{data: payload}
	info := ProtocolInfo{Version: r.uint8(), Updates: make(map[UpdateType]Frequency)}
	for r.more() && r.bool() {
		updateType := UpdateType(r.uint16())
		info.Updates[updateType] = Frequency(r.uint16())
	}
	return info, r.finish(ServerProtocol)
}

// Welcome describes the game the admin joined.
type Welcome struct {
	ServerName string
	Version    string
	Dedicated  bool
	MapName    string
	Seed       uint32
	Landscape  uint8
	Start      time.Time
	MapWidth   uint16
	MapHeight  uint16
}

func decodeWelcome(payload []byte) (Welcome, error) {
	r := payloadReader{data: payload}
	welcome := Welcome{
		ServerName: r.string(),
		Version:    r.string(),
		Dedicated:  r.bool(),
		MapName:    r.string(),
		Seed:       r.uint32(),
		Landscape:  r.uint8(),
		Start:      DateFromDays(r.uint32()),
		MapWidth:   r.uint16(),
		MapHeight:  r.uint16(),
	}
	return welcome, r.finish(ServerWelcome)
}

// ClientInfo is the full description of a client.
type ClientInfo struct {
	gamestate.Client
	Language uint8
	Joined   time.Time
}

func decodeClientInfo(payload []byte) (ClientInfo, error) {
	r := payloadReader{data: payload}
	var info ClientInfo
	info.ID = gamestate.ClientID(r.uint32())
	info.Address = r.string()
	info.Name = r.string()
	info.Language = r.uint8()
	info.Joined = DateFromDays(r.uint32())
	info.Company = r.owner()
	return info, r.finish(ServerClientInfo)
}

// ClientUpdate reports a client renaming or changing company.
type ClientUpdate struct {
	ID      gamestate.ClientID
	Name    string
	Company gamestate.CompanyID
}

func decodeClientUpdate(payload []byte) (ClientUpdate, error) {
	r := payloadReader{data: payload}
	update := ClientUpdate{
		ID:      gamestate.ClientID(r.uint32()),
		Name:    r.string(),
		Company: r.owner(),
	}
	return update, r.finish(ServerClientUpdate)
}

// ClientError reports a client dropped because of an error.
type ClientError struct {
	ID   gamestate.ClientID
	Code uint8
}

// CompanyInfo is the full description of a company.
type CompanyInfo struct {
	gamestate.Company
	Manager    string
	Colour     uint8
	Passworded bool
}

func decodeCompanyInfo(payload []byte) (CompanyInfo, error) {
	r := payloadReader{data: payload}
	var info CompanyInfo
	info.ID = r.company()
	info.Name = r.string()
	info.Manager = r.string()
	info.Colour = r.uint8()
	info.Passworded = r.bool()
	info.Founded = int(r.uint32())
	info.AI = r.bool()
	return info, r.finish(ServerCompanyInfo)
}

// CompanyUpdate reports changes to a company's descriptive fields.
type CompanyUpdate struct {
	ID         gamestate.CompanyID
	Name       string
	Manager    string
	Colour     uint8
	Passworded bool
}

func decodeCompanyUpdate(payload []byte) (CompanyUpdate, error) {
	r := payloadReader{data: payload}
	update := CompanyUpdate{
		ID:         r.company(),
		Name:       r.string(),
		Manager:    r.string(),
		Colour:     r.uint8(),
		Passworded: r.bool(),
	}
	return update, r.finish(ServerCompanyUpdate)
}

// CompanyRemoval reports a company that no longer exists.
type CompanyRemoval struct {
	ID     gamestate.CompanyID
	Reason uint8
}

// Quarter is one past quarter of company economy.
type Quarter struct {
	Value       int64
	Performance uint16
	Delivered   uint16
}

// CompanyEconomy is a company's finances.
type CompanyEconomy struct {
	ID        gamestate.CompanyID
	Money     int64
	Loan      int64
	Income    int64
	Delivered uint16
	Quarters  []Quarter
}

func decodeCompanyEconomy(payload []byte) (CompanyEconomy, error) {
	r := payloadReader{data: payload}
	economy := CompanyEconomy{
		ID:        r.company(),
		Money:     r.int64(),
		Loan:      r.int64(),
		Income:    r.int64(),
		Delivered: r.uint16(),
	}
	for r.more() {
		quarter := Quarter{Value: r.int64(), Performance: r.uint16(), Delivered: r.uint16()}
		if r.err != nil {
			break
		}
		economy.Quarters = append(economy.Quarters, quarter)
	}
	return economy, r.finish(ServerCompanyEconomy)
}

// Chat is a chat message seen by the server.
type Chat struct {
	Action  NetworkAction
	Dest    DestType
	Client  gamestate.ClientID
	Message string
	Data    int64
}

func decodeChat(payload []byte) (Chat, error) {
	r := payloadReader{data: payload}
	chat := Chat{
		Action:  NetworkAction(r.uint8()),
		Dest:    DestType(r.uint8()),
		Client:  gamestate.ClientID(r.uint32()),
		Message: r.string(),
	}
	if r.more() {
		chat.Data = r.int64()
	}
	return chat, r.finish(ServerChat)
}

// Console is a line written to the server console.
type Console struct {
	Origin string
	Text   string
}
