// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/steward/cmd/steward/cli"
	"github.com/bureau-foundation/steward/lib/control"
)

func rconCommand() *cli.Command {
	var conn connection
	var output cli.JSONOutput
	return &cli.Command{
		Name:    "rcon",
		Summary: "Run a console command on a server",
		Description: "Run a console command on a server through the daemon's admin connection.\n" +
			"The command shares the connection's command slot with the daemon, so it\n" +
			"waits for any command already in flight.",
		Usage: "steward rcon [flags] <command> [args...]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("rcon", pflag.ContinueOnError)
			flagSet.SetInterspersed(false)
			conn.AddFlags(flagSet)
			output.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return errors.New("usage: steward rcon [flags] <command> [args...]")
			}
			client, ctx, cancel := conn.client()
			defer cancel()
			text, err := client.Rcon(ctx, conn.server, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if done, err := output.EmitJSON(control.RconResult{Output: text}); done {
				return err
			}
			if text == "" {
				return nil
			}
			_, err = os.Stdout.WriteString(strings.TrimRight(text, "\n") + "\n")
			return err
		},
	}
}
