// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/steward/lib/gamestate"
)

var errShortPayload = errors.New("payload too short")

// payloadReader decodes fields in order. The first failure sticks and
// every later read returns a zero value.
type payloadReader struct {
	data []byte
	err  error
}

func (r *payloadReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data) < n {
		r.err = errShortPayload
		return nil
	}
	field := r.data[:n]
	r.data = r.data[n:]
	return field
}

func (r *payloadReader) uint8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *payloadReader) bool() bool { return r.uint8() != 0 }

func (r *payloadReader) uint16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *payloadReader) uint32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *payloadReader) uint64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *payloadReader) int64() int64 { return int64(r.uint64()) }

func (r *payloadReader) string() string {
	if r.err != nil {
		return ""
	}
	end := bytes.IndexByte(r.data, 0)
	if end < 0 {
		r.err = errors.New("string not terminated")
		return ""
	}
	s := string(r.data[:end])
	r.data = r.data[end+1:]
	return s
}

// company reads a company number that must name a company slot.
func (r *payloadReader) company() gamestate.CompanyID {
	raw := r.uint8()
	id := gamestate.CompanyFromProtocol(raw)
	if r.err == nil && !id.Valid() {
		r.err = fmt.Errorf("company number %d out of range", raw)
	}
	return id
}

// owner reads the company a client plays for: a company slot or
// spectators.
func (r *payloadReader) owner() gamestate.CompanyID {
	raw := r.uint8()
	id := gamestate.CompanyFromProtocol(raw)
	if r.err == nil && id == gamestate.InvalidCompany {
		r.err = fmt.Errorf("client company number %d out of range", raw)
	}
	return id
}

// more reports whether unread payload remains.
func (r *payloadReader) more() bool { return r.err == nil && len(r.data) > 0 }

func (r *payloadReader) finish(packetType PacketType) error {
	if r.err != nil {
		return fmt.Errorf("decode %s: %w", packetType, r.err)
	}
	return nil
}

// payloadWriter encodes fields in order.
type payloadWriter struct {
	buf bytes.Buffer
}

func (w *payloadWriter) uint8(v uint8) *payloadWriter {
	w.buf.WriteByte(v)
	return w
}

func (w *payloadWriter) uint16(v uint16) *payloadWriter {
	w.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
	return w
}

func (w *payloadWriter) uint32(v uint32) *payloadWriter {
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
	return w
}

func (w *payloadWriter) string(s string) *payloadWriter {
	// An embedded NUL would end the string early on the server.
	w.buf.WriteString(stripNUL(s))
	w.buf.WriteByte(0)
	return w
}

func (w *payloadWriter) packet(packetType PacketType) Packet {
	return Packet{Type: packetType, Payload: w.buf.Bytes()}
}

func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
