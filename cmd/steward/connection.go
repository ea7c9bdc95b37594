// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/steward/lib/control"
)

const defaultSocket = "/run/steward/control.sock"

// callTimeout bounds one control call, long enough for a console
// command that exhausts its retries.
const callTimeout = 60 * time.Second

// connection holds the flags every command uses to reach the daemon.
type connection struct {
	socket string
	server string
}

func (c *connection) AddFlags(flagSet *pflag.FlagSet) {
	socket := os.Getenv("STEWARD_SOCKET")
	if socket == "" {
		socket = defaultSocket
	}
	flagSet.StringVar(&c.socket, "socket", socket, "daemon control socket (env STEWARD_SOCKET)")
	flagSet.StringVarP(&c.server, "server", "s", "", "server name, required when the daemon runs more than one")
}

func (c *connection) client() (*control.Client, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	return control.NewClient(c.socket), ctx, cancel
}
