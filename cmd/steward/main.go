// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// steward is the operator CLI for steward-daemon. It talks to the
// daemon's control socket to show server status, the cached companies
// and clients, and to run console commands.
package main

import (
	"os"

	"github.com/bureau-foundation/steward/cmd/steward/cli"
	"github.com/bureau-foundation/steward/lib/process"
	"github.com/bureau-foundation/steward/lib/version"
)

func main() {
	if err := rootCommand().Execute(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:        "steward",
		Description: "Inspect and control the OpenTTD servers run by steward-daemon.",
		Subcommands: []*cli.Command{
			statusCommand(),
			companiesCommand(),
			clientsCommand(),
			rconCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func([]string) error {
					os.Stdout.WriteString("steward " + version.Full() + "\n")
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{Description: "Show every server", Command: "steward status"},
			{Description: "List companies on the second server", Command: "steward companies --server server2"},
			{Description: "Run a console command", Command: "steward rcon --server server1 get_date"},
		},
	}
}
