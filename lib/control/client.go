// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/steward/lib/codec"
	"github.com/bureau-foundation/steward/lib/gamestate"
)

const (
	dialTimeout = 5 * time.Second

	// responseReadTimeout covers the slowest console command
	// (load_scenario, with retries) plus the server's write timeout.
	responseReadTimeout = 45 * time.Second

	maxResponseSize = 4 * 1024 * 1024
)

// RemoteError is a failure reported by the daemon, as opposed to a
// failure to reach it.
type RemoteError struct {
	Action  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Client calls the daemon's control socket. Each call uses its own
// connection.
type Client struct {
	socketPath string
}

// NewClient creates a client for socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends action with fields and decodes the result data into
// result, which may be nil.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	if !response.OK {
		return &RemoteError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding %q response: %w", action, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	deadline := time.Now().Add(responseReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetReadDeadline(deadline)

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}

// Status returns the status of every server, or only of server when it
// is not empty.
func (c *Client) Status(ctx context.Context, server string) ([]ServerStatus, error) {
	var statuses []ServerStatus
	err := c.Call(ctx, "status", serverField(server), &statuses)
	return statuses, err
}

// Companies returns the cached companies of server.
func (c *Client) Companies(ctx context.Context, server string) ([]CompanyRow, error) {
	var rows []CompanyRow
	err := c.Call(ctx, "companies", serverField(server), &rows)
	return rows, err
}

// Clients returns the cached clients of server.
func (c *Client) Clients(ctx context.Context, server string) ([]gamestate.Client, error) {
	var clients []gamestate.Client
	err := c.Call(ctx, "clients", serverField(server), &clients)
	return clients, err
}

// Rcon runs command on server and returns its output.
func (c *Client) Rcon(ctx context.Context, server, command string) (string, error) {
	fields := serverField(server)
	fields["command"] = command
	var result RconResult
	err := c.Call(ctx, "rcon", fields, &result)
	return result.Output, err
}

func serverField(server string) map[string]any {
	fields := map[string]any{}
	if server != "" {
		fields["server"] = server
	}
	return fields
}
