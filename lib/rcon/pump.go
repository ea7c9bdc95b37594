// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rcon

import "context"

// Pump drains the admin connection on behalf of a waiting caller.
type Pump interface {
	// Ready is signalled when inbound packets are waiting.
	Ready() <-chan struct{}

	// PumpOnce decodes and dispatches every packet currently waiting
	// without blocking. An error means the connection is gone.
	PumpOnce() error
}

type pumpKey struct{}

// WithPump returns a context whose holder drains the connection through
// pump while blocked in the gateway.
func WithPump(ctx context.Context, pump Pump) context.Context {
	return context.WithValue(ctx, pumpKey{}, pump)
}

// PumpFrom returns the pump attached to ctx, or nil.
func PumpFrom(ctx context.Context) Pump {
	pump, _ := ctx.Value(pumpKey{}).(Pump)
	return pump
}
