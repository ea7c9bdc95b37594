// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	// defaultDialTimeout covers the TCP connect only.
	defaultDialTimeout = 10 * time.Second

	// defaultHandshakeTimeout covers sending ADMIN_JOIN until
	// SERVER_WELCOME arrives.
	defaultHandshakeTimeout = 10 * time.Second

	// writeTimeout bounds a single packet write.
	writeTimeout = 10 * time.Second
)

var (
	// ErrRejected is returned by Dial when the server refuses the
	// login with SERVER_FULL, SERVER_BANNED or SERVER_ERROR.
	ErrRejected = errors.New("admin: login rejected")

	// ErrClosed is returned by sends after Close.
	ErrClosed = errors.New("admin: connection closed")
)

// Config describes how to reach and log in to a server.
type Config struct {
	// Address is host:port of the admin port.
	Address string

	// Name identifies this admin to the server.
	Name string

	// Password is the server's admin_password.
	Password string

	// Version is reported to the server alongside Name.
	Version string

	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
}

// Conn is a logged-in admin connection.
type Conn struct {
	conn   net.Conn
	logger *slog.Logger

	// Protocol and Welcome are what the server announced at login.
	Protocol ProtocolInfo
	Welcome  Welcome

	writeMu sync.Mutex

	mu     sync.Mutex
	queue  []Packet
	err    error
	closed bool

	ready chan struct{}
	done  chan struct{}
}

// Dial connects to config.Address and logs in.
func Dial(ctx context.Context, config Config, logger *slog.Logger) (*Conn, error) {
	dialTimeout := config.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	dialer := net.Dialer{Timeout: dialTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("connecting to admin port %s: %w", config.Address, err)
	}
	conn, err := NewConn(ctx, netConn, config, logger)
	if err != nil {
		netConn.Close()
		return nil, err
	}
	return conn, nil
}

// NewConn logs in over an established stream and starts the reader.
// On error the caller still owns netConn.
func NewConn(ctx context.Context, netConn net.Conn, config Config, logger *slog.Logger) (*Conn, error) {
	c := &Conn{
		conn:   netConn,
		logger: logger,
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if err := c.login(ctx, config); err != nil {
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) login(ctx context.Context, config Config) error {
	timeout := config.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting handshake deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { c.conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if err := WritePacket(c.conn, JoinPacket(config.Password, config.Name, config.Version)); err != nil {
		return fmt.Errorf("sending admin join: %w", err)
	}

	var gotProtocol bool
	for {
		packet, err := ReadPacket(c.conn)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("waiting for welcome: %w", err)
		}
		switch packet.Type {
		case ServerProtocol:
			if c.Protocol, err = decodeProtocol(packet.Payload); err != nil {
				return err
			}
			gotProtocol = true
		case ServerWelcome:
			if c.Welcome, err = decodeWelcome(packet.Payload); err != nil {
				return err
			}
			if !gotProtocol {
				c.logger.Warn("server sent welcome without protocol announcement")
			}
			return c.conn.SetDeadline(time.Time{})
		case ServerFull, ServerBanned:
			return fmt.Errorf("%w: %s", ErrRejected, packet.Type)
		case ServerError:
			code := uint8(0)
			if len(packet.Payload) > 0 {
				code = packet.Payload[0]
			}
			return fmt.Errorf("%w: server error code %d", ErrRejected, code)
		default:
			c.logger.Debug("ignoring packet during login", "type", packet.Type)
		}
	}
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		packet, err := ReadPacket(c.conn)
		c.mu.Lock()
		if err != nil {
			if c.closed {
				err = ErrClosed
			}
			c.err = err
			c.mu.Unlock()
			c.signal()
			return
		}
		c.queue = append(c.queue, packet)
		c.mu.Unlock()
		c.signal()
	}
}

func (c *Conn) signal() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled when packets are waiting or the connection
// failed. One signal may cover several packets.
func (c *Conn) Ready() <-chan struct{} { return c.ready }

// Done is closed when the reader stops.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Drain returns every queued packet in arrival order. Once the queue
// is empty and the reader has stopped, it returns the reader's error.
func (c *Conn) Drain() ([]Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	packets := c.queue
	c.queue = nil
	if len(packets) == 0 && c.err != nil {
		return nil, c.err
	}
	return packets, nil
}

// Err returns why the reader stopped, or nil while it runs.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send writes one packet.
func (c *Conn) Send(packet Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return WritePacket(c.conn, packet)
}

// SendRcon runs a console command. Output arrives as SERVER_RCON
// packets terminated by SERVER_RCON_END.
func (c *Conn) SendRcon(command string) error { return c.Send(RconPacket(command)) }

// Subscribe asks for updateType at frequency.
func (c *Conn) Subscribe(updateType UpdateType, frequency Frequency) error {
	return c.Send(UpdateFrequencyPacket(updateType, frequency))
}

// Poll requests an immediate update.
func (c *Conn) Poll(updateType UpdateType, data uint32) error {
	return c.Send(PollPacket(updateType, data))
}

// Broadcast sends message to every client.
func (c *Conn) Broadcast(message string) error {
	return c.Send(ChatPacket(ActionServerMessage, DestBroadcast, 0, message))
}

// Whisper sends message to one client.
func (c *Conn) Whisper(client uint32, message string) error {
	return c.Send(ChatPacket(ActionServerMessage, DestClient, client, message))
}

// Ping asks the server to echo token in SERVER_PONG.
func (c *Conn) Ping(token uint32) error { return c.Send(PingPacket(token)) }

// Close says goodbye to the server and closes the stream. The reader
// stops with ErrClosed.
func (c *Conn) Close() error {
	if err := c.Send(QuitPacket()); err != nil && !errors.Is(err, ErrClosed) {
		c.logger.Debug("admin quit not delivered", "error", err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}
