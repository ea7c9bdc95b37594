// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"time"

	"github.com/bureau-foundation/steward/lib/gamestate"
)

// Dispatcher decodes packets and calls the handler for their type.
// Nil handlers are skipped, and so are packet types without a handler
// field. Handlers run on the goroutine that calls Dispatch and must
// not block on a console command.
type Dispatcher struct {
	OnNewGame        func()
	OnShutdown       func()
	OnDate           func(time.Time)
	OnClientJoin     func(gamestate.ClientID)
	OnClientInfo     func(ClientInfo)
	OnClientUpdate   func(ClientUpdate)
	OnClientQuit     func(gamestate.ClientID)
	OnClientError    func(ClientError)
	OnCompanyNew     func(gamestate.CompanyID)
	OnCompanyInfo    func(CompanyInfo)
	OnCompanyUpdate  func(CompanyUpdate)
	OnCompanyRemove  func(CompanyRemoval)
	OnCompanyEconomy func(CompanyEconomy)
	OnChat           func(Chat)
	OnRcon           func(colour uint16, line string)
	OnRconEnd        func(command string)
	OnConsole        func(Console)
	OnPong           func(token uint32)
}

// Dispatch decodes packet and calls its handler. A malformed payload
// returns an error without calling anything.
func (d *Dispatcher) Dispatch(packet Packet) error {
	r := payloadReader{data: packet.Payload}
	switch packet.Type {
	case ServerNewGame:
		if d.OnNewGame != nil {
			d.OnNewGame()
		}
	case ServerShutdown:
		if d.OnShutdown != nil {
			d.OnShutdown()
		}
	case ServerDate:
		days := r.uint32()
		if err := r.finish(packet.Type); err != nil {
			return err
		}
		if d.OnDate != nil {
			d.OnDate(DateFromDays(days))
		}
	case ServerClientJoin:
		id := gamestate.ClientID(r.uint32())
		if err := r.finish(packet.Type); err != nil {
			return err
		}
		if d.OnClientJoin != nil {
			d.OnClientJoin(id)
		}
	case ServerClientInfo:
		info, err := decodeClientInfo(packet.Payload)
		if err != nil {
			return err
		}
		if d.OnClientInfo != nil {
			d.OnClientInfo(info)
		}
	case ServerClientUpdate:
		update, err := decodeClientUpdate(packet.Payload)
		if err != nil {
			return err
		}
		if d.OnClientUpdate != nil {
			d.OnClientUpdate(update)
		}
	case ServerClientQuit:
		id := gamestate.ClientID(r.uint32())
		if err := r.finish(packet.Type); err != nil {
			return err
		}
		if d.OnClientQuit != nil {
			d.OnClientQuit(id)
		}
	case ServerClientError:
		clientError := ClientError{ID: gamestate.ClientID(r.uint32()), Code: r.uint8()}
		if err := r.finish(packet.Type); err != nil {
			return err
		}
		if d.OnClientError != nil {
			d.OnClientError(clientError)
		}
	case ServerCompanyNew:
		id := r.company()
		if err := r.finish(packet.Type); err != nil {
			return err
		}
		if d.OnCompanyNew != nil {
			d.OnCompanyNew(id)
		}
	case ServerCompanyInfo:
		info, err := decodeCompanyInfo(packet.Payload)
		if err != nil {
			return err
		}
		if d.OnCompanyInfo != nil {
			d.OnCompanyInfo(info)
		}
	case ServerCompanyUpdate:
		update, err := decodeCompanyUpdate(packet.Payload)
		if err != nil {
			return err
		}
		if d.OnCompanyUpdate != nil {
			d.OnCompanyUpdate(update)
		}
	case ServerCompanyRemove:
		removal := CompanyRemoval{ID: r.company(), Reason: r.uint8()}
		if err := r.finish(packet.Type); err != nil {
			return err
		}
		if d.OnCompanyRemove != nil {
			d.OnCompanyRemove(removal)
		}
	case ServerCompanyEconomy:
		economy, err := decodeCompanyEconomy(packet.Payload)
		if err != nil {
			return err
		}
		if d.OnCompanyEconomy != nil {
			d.OnCompanyEconomy(economy)
		}
	case ServerChat:
		chat, err := decodeChat(packet.Payload)
		if err != nil {
			return err
		}
		if d.OnChat != nil {
			d.OnChat(chat)
		}
	case ServerRcon:
		colour, line := r.uint16(), r.string()
		if err := r.finish(packet.Type); err != nil {
			return err
		}
		if d.OnRcon != nil {
			d.OnRcon(colour, line)
		}
	case ServerRconEnd:
		command := r.string()
		if err := r.finish(packet.Type); err != nil {
			return err
		}
		if d.OnRconEnd != nil {
			d.OnRconEnd(command)
		}
	case ServerConsole:
		console := Console{Origin: r.string(), Text: r.string()}
		if err := r.finish(packet.Type); err != nil {
			return err
		}
		if d.OnConsole != nil {
			d.OnConsole(console)
		}
	case ServerPong:
		token := r.uint32()
		if err := r.finish(packet.Type); err != nil {
			return err
		}
		if d.OnPong != nil {
			d.OnPong(token)
		}
	}
	return nil
}
