// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// steward-daemon keeps a fleet of OpenTTD servers tidy through their
// admin ports: it pauses empty games, resets the map when a company
// reaches the goal, removes abandoned companies and answers chat
// commands. One connection is kept per configured admin port and
// re-established when it drops.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/steward/cmd/steward/cli"
	"github.com/bureau-foundation/steward/lib/clock"
	"github.com/bureau-foundation/steward/lib/config"
	"github.com/bureau-foundation/steward/lib/control"
	"github.com/bureau-foundation/steward/lib/process"
	"github.com/bureau-foundation/steward/lib/steward"
	"github.com/bureau-foundation/steward/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath    string
		logLevel      string
		logFormat     string
		controlSocket string
		showVersion   bool
	)
	flagSet := pflag.NewFlagSet("steward-daemon", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "settings file (.json, .yaml or .yml); default $STEWARD_CONFIG")
	flagSet.StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	flagSet.StringVar(&logFormat, "log-format", "", "override log.format (text, json)")
	flagSet.StringVar(&controlSocket, "control-socket", "", "override control_socket")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("steward-daemon %s\n", version.Info())
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if controlSocket != "" {
		cfg.ControlSocket = controlSocket
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config:\n%w", err)
	}

	logger, err := cli.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	servers := cfg.Servers()
	names := make([]string, 0, len(servers))
	for _, server := range servers {
		names = append(names, server.Name)
	}
	d := &daemon{
		config:   cfg,
		registry: steward.NewRegistry(names...),
		clock:    clock.Real(),
		logger:   logger,
	}

	logger.Info("steward starting",
		"version", version.Info(),
		"servers", len(servers),
		"goal", cfg.GoalValue,
		"scenario", cfg.LoadScenario,
	)

	controlDone := make(chan error, 1)
	if cfg.ControlSocket != "" {
		server := control.NewServer(cfg.ControlSocket, logger.With("component", "control"))
		control.Register(server, control.RegistryDirectory(d.registry))
		go func() { controlDone <- server.Serve(ctx) }()
	} else {
		controlDone <- nil
	}

	var supervisors errgroup.Group
	for _, server := range servers {
		s := d.supervisor(server)
		supervisors.Go(func() error { return s.run(ctx) })
	}
	err = supervisors.Wait()

	// Every server has stopped, by signal or by giving up.
	stop()
	if controlErr := <-controlDone; controlErr != nil {
		logger.Error("control socket failed", "error", controlErr)
	}
	logger.Info("steward stopped")
	return err
}
