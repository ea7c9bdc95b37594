// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rcon

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout means no complete response arrived before the
	// command's deadline, either because the slot never freed or
	// because the end marker never came.
	ErrTimeout = errors.New("rcon: command timed out")

	// ErrCircuitOpen means the breaker rejected the command without
	// sending it.
	ErrCircuitOpen = errors.New("rcon: circuit breaker open")

	// ErrTransport means the command could not be written to the
	// admin connection. Transport errors are not retried.
	ErrTransport = errors.New("rcon: transport failure")

	// ErrValidation means the server answered, but the answer reads
	// as an error message.
	ErrValidation = errors.New("rcon: command rejected by server")
)

// CommandError reports a failed command. Kind is one of the package
// sentinels; errors.Is matches against it and against Cause.
type CommandError struct {
	Command  string
	Kind     error
	Cause    error
	Response string
	Attempts int
}

func (e *CommandError) Error() string {
	message := fmt.Sprintf("%v: %q", e.Kind, e.Command)
	if e.Attempts > 1 {
		message += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Cause != nil {
		message += ": " + e.Cause.Error()
	}
	if e.Response != "" {
		message += fmt.Sprintf(" (response %q)", truncate(e.Response, 200))
	}
	return message
}

func (e *CommandError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
