// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/steward/lib/clock"
)

// sessionFunc runs one connection to completion. connected reports
// whether the connection was established before it ended.
type sessionFunc func(ctx context.Context) (connected bool, err error)

// supervisor keeps one server connected. Failed attempts back off
// linearly (delay, 2*delay, ...) and the count resets whenever a
// connection is established; after maxAttempts consecutive failures
// the server is given up.
type supervisor struct {
	name        string
	maxAttempts int
	delay       time.Duration
	clock       clock.Clock
	logger      *slog.Logger
	session     sessionFunc
}

func (s *supervisor) run(ctx context.Context) error {
	attempts := 0
	for {
		s.logger.Info("connecting", "attempt", attempts+1, "max_attempts", s.maxAttempts)
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			attempts = 0
		}
		attempts++
		if attempts >= s.maxAttempts {
			s.logger.Error("max reconnection attempts reached", "attempts", attempts, "error", err)
			return fmt.Errorf("%s: gave up after %d attempts: %w", s.name, attempts, err)
		}

		delay := s.delay * time.Duration(attempts)
		s.logger.Warn("connection ended, reconnecting", "error", err, "delay", delay)
		timer := s.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
