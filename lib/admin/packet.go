// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PacketType identifies an admin protocol packet.
type PacketType uint8

// Packets sent by the admin client.
const (
	AdminJoin            PacketType = 0
	AdminQuit            PacketType = 1
	AdminUpdateFrequency PacketType = 2
	AdminPoll            PacketType = 3
	AdminChat            PacketType = 4
	AdminRcon            PacketType = 5
	AdminPing            PacketType = 7
)

// Packets sent by the server.
const (
	ServerFull           PacketType = 100
	ServerBanned         PacketType = 101
	ServerError          PacketType = 102
	ServerProtocol       PacketType = 103
	ServerWelcome        PacketType = 104
	ServerNewGame        PacketType = 105
	ServerShutdown       PacketType = 106
	ServerDate           PacketType = 107
	ServerClientJoin     PacketType = 108
	ServerClientInfo     PacketType = 109
	ServerClientUpdate   PacketType = 110
	ServerClientQuit     PacketType = 111
	ServerClientError    PacketType = 112
	ServerCompanyNew     PacketType = 113
	ServerCompanyInfo    PacketType = 114
	ServerCompanyUpdate  PacketType = 115
	ServerCompanyRemove  PacketType = 116
	ServerCompanyEconomy PacketType = 117
	ServerCompanyStats   PacketType = 118
	ServerChat           PacketType = 119
	ServerRcon           PacketType = 120
	ServerConsole        PacketType = 121
	ServerCmdNames       PacketType = 122
	ServerCmdLogging     PacketType = 124
	ServerRconEnd        PacketType = 125
	ServerPong           PacketType = 126
)

var packetNames = map[PacketType]string{
	AdminJoin:            "ADMIN_JOIN",
	AdminQuit:            "ADMIN_QUIT",
	AdminUpdateFrequency: "ADMIN_UPDATE_FREQUENCY",
	AdminPoll:            "ADMIN_POLL",
	AdminChat:            "ADMIN_CHAT",
	AdminRcon:            "ADMIN_RCON",
	AdminPing:            "ADMIN_PING",
	ServerFull:           "SERVER_FULL",
	ServerBanned:         "SERVER_BANNED",
	ServerError:          "SERVER_ERROR",
	ServerProtocol:       "SERVER_PROTOCOL",
	ServerWelcome:        "SERVER_WELCOME",
	ServerNewGame:        "SERVER_NEWGAME",
	ServerShutdown:       "SERVER_SHUTDOWN",
	ServerDate:           "SERVER_DATE",
	ServerClientJoin:     "SERVER_CLIENT_JOIN",
	ServerClientInfo:     "SERVER_CLIENT_INFO",
	ServerClientUpdate:   "SERVER_CLIENT_UPDATE",
	ServerClientQuit:     "SERVER_CLIENT_QUIT",
	ServerClientError:    "SERVER_CLIENT_ERROR",
	ServerCompanyNew:     "SERVER_COMPANY_NEW",
	ServerCompanyInfo:    "SERVER_COMPANY_INFO",
	ServerCompanyUpdate:  "SERVER_COMPANY_UPDATE",
	ServerCompanyRemove:  "SERVER_COMPANY_REMOVE",
	ServerCompanyEconomy: "SERVER_COMPANY_ECONOMY",
	ServerCompanyStats:   "SERVER_COMPANY_STATS",
	ServerChat:           "SERVER_CHAT",
	ServerRcon:           "SERVER_RCON",
	ServerConsole:        "SERVER_CONSOLE",
	ServerCmdNames:       "SERVER_CMD_NAMES",
	ServerCmdLogging:     "SERVER_CMD_LOGGING",
	ServerRconEnd:        "SERVER_RCON_END",
	ServerPong:           "SERVER_PONG",
}

func (t PacketType) String() string {
	if name, ok := packetNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PACKET_%d", uint8(t))
}

// headerLength is the size field plus the type byte.
const headerLength = 3

// MaxPacketSize is the largest packet the server sends, header
// included.
const MaxPacketSize = 32767

// Packet is one framed admin protocol packet.
type Packet struct {
	Type    PacketType
	Payload []byte
}

// WritePacket writes packet to w as a single frame.
func WritePacket(w io.Writer, packet Packet) error {
	size := headerLength + len(packet.Payload)
	if size > MaxPacketSize {
		return fmt.Errorf("%s packet of %d bytes exceeds maximum %d", packet.Type, size, MaxPacketSize)
	}
	frame := make([]byte, size)
	binary.LittleEndian.PutUint16(frame[0:2], uint16(size))
	frame[2] = byte(packet.Type)
	copy(frame[headerLength:], packet.Payload)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write %s packet: %w", packet.Type, err)
	}
	return nil
}

// ReadPacket reads one frame from r.
func ReadPacket(r io.Reader) (Packet, error) {
	var header [headerLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Packet{}, fmt.Errorf("read packet header: %w", err)
	}
	size := int(binary.LittleEndian.Uint16(header[0:2]))
	if size < headerLength {
		return Packet{}, fmt.Errorf("packet size %d smaller than header", size)
	}
	if size > MaxPacketSize {
		return Packet{}, fmt.Errorf("packet size %d exceeds maximum %d", size, MaxPacketSize)
	}
	packet := Packet{Type: PacketType(header[2]), Payload: make([]byte, size-headerLength)}
	if len(packet.Payload) > 0 {
		if _, err := io.ReadFull(r, packet.Payload); err != nil {
			return Packet{}, fmt.Errorf("read %s payload: %w", packet.Type, err)
		}
	}
	return packet, nil
}
