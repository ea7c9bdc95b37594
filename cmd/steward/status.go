// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/steward/cmd/steward/cli"
)

func statusCommand() *cli.Command {
	var conn connection
	var output cli.JSONOutput
	return &cli.Command{
		Name:    "status",
		Summary: "Show round phase, pause state and counts per server",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			output.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			client, ctx, cancel := conn.client()
			defer cancel()
			statuses, err := client.Status(ctx, conn.server)
			if err != nil {
				return err
			}
			if done, err := output.EmitJSON(statuses); done {
				return err
			}
			return renderStatus(os.Stdout, statuses)
		},
	}
}

func companiesCommand() *cli.Command {
	var conn connection
	var output cli.JSONOutput
	return &cli.Command{
		Name:    "companies",
		Summary: "List the companies the daemon has cached",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("companies", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			output.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			client, ctx, cancel := conn.client()
			defer cancel()
			rows, err := client.Companies(ctx, conn.server)
			if err != nil {
				return err
			}
			if done, err := output.EmitJSON(rows); done {
				return err
			}
			return renderCompanies(os.Stdout, rows)
		},
	}
}

func clientsCommand() *cli.Command {
	var conn connection
	var output cli.JSONOutput
	return &cli.Command{
		Name:    "clients",
		Summary: "List the clients the daemon has cached",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("clients", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			output.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			client, ctx, cancel := conn.client()
			defer cancel()
			clients, err := client.Clients(ctx, conn.server)
			if err != nil {
				return err
			}
			if done, err := output.EmitJSON(clients); done {
				return err
			}
			return renderClients(os.Stdout, clients)
		},
	}
}
