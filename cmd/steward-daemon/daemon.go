// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/steward/lib/admin"
	"github.com/bureau-foundation/steward/lib/clock"
	"github.com/bureau-foundation/steward/lib/config"
	"github.com/bureau-foundation/steward/lib/steward"
	"github.com/bureau-foundation/steward/lib/version"
)

type daemon struct {
	config   *config.Config
	registry *steward.Registry
	clock    clock.Clock
	logger   *slog.Logger
}

func (d *daemon) supervisor(server config.ServerConfig) *supervisor {
	logger := d.logger.With("server", server.Name)
	return &supervisor{
		name:        server.Name,
		maxAttempts: d.config.ReconnectMaxAttempts,
		delay:       d.config.ReconnectDelay.Std(),
		clock:       d.clock,
		logger:      logger,
		session:     d.session(server, botConfig(d.config, server), logger),
	}
}

// session connects to server and runs a bot on the connection until
// it drops. The bot is published in the registry for its lifetime.
func (d *daemon) session(server config.ServerConfig, botConfig steward.Config, logger *slog.Logger) sessionFunc {
	return func(ctx context.Context) (bool, error) {
		conn, err := admin.Dial(ctx, admin.Config{
			Address:  server.Address,
			Name:     server.AdminName,
			Password: server.AdminPass,
			Version:  version.Version,
		}, logger.With("component", "admin"))
		if err != nil {
			return false, err
		}
		defer conn.Close()
		logger.Info("admin connection established",
			"address", server.Address,
			"server_name", conn.Welcome.ServerName,
			"protocol", conn.Protocol.Version,
		)

		bot, err := steward.New(conn, botConfig, d.clock, logger)
		if err != nil {
			return true, err
		}
		d.registry.Set(server.Name, bot)
		defer d.registry.Set(server.Name, nil)
		return true, bot.Run(ctx)
	}
}

// botConfig maps the settings file onto one server's bot.
func botConfig(cfg *config.Config, server config.ServerConfig) steward.Config {
	c := steward.DefaultConfig()
	c.Name = server.Name

	c.Gateway.Attempts = cfg.RconRetryMax
	c.Gateway.RetryDelay = cfg.RconRetryDelay.Std()
	c.Gateway.DefaultTimeout = cfg.RconTimeout.Std()

	c.Referee.Goal = cfg.GoalValue
	c.Referee.Scenario = cfg.LoadScenario

	c.Cleanup.MaxAge = cfg.DeadCompanyAge
	c.Cleanup.MinValue = cfg.DeadCompanyValue

	c.Handshake.Timeout = cfg.ResetTimeout.Std()
	c.Handshake.ImplicitConfirm = cfg.ImplicitResetConfirm

	c.Router.ServerName = cfg.ServerName
	c.Router.Goal = cfg.GoalValue
	c.Router.DeadAge = cfg.DeadCompanyAge
	c.Router.DeadValue = cfg.DeadCompanyValue
	c.Router.Cooldown = cfg.CommandCooldown.Std()

	c.GreetingDelay = cfg.GreetingDelay.Std()
	c.ChatInterval = cfg.MessageInterval.Std()
	return c
}
