// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Phase is a round phase.
type Phase string

const (
	Waiting     Phase = "waiting"
	Active      Phase = "active"
	GoalReached Phase = "goal_reached"
	Resetting   Phase = "resetting"
)

var allowedEdges = map[Phase][]Phase{
	Waiting:     {Active, Resetting},
	Active:      {GoalReached, Resetting},
	GoalReached: {Resetting},
	Resetting:   {Waiting, Active},
}

// CanTransition reports whether from → to is an allowed edge.
func CanTransition(from, to Phase) bool {
	for _, next := range allowedEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned for an edge outside the table.
var ErrInvalidTransition = errors.New("lifecycle: invalid phase transition")

// Transition is one phase change delivered to subscribers.
type Transition struct {
	From Phase
	To   Phase
}

// Machine is the phase of one server's round. It starts in Waiting.
type Machine struct {
	logger *slog.Logger

	mu          sync.Mutex
	phase       Phase
	subscribers []func(Transition)
}

// NewMachine returns a machine in Waiting.
func NewMachine(logger *slog.Logger) *Machine {
	return &Machine{logger: logger, phase: Waiting}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Subscribe registers fn for every completed transition. Callbacks run
// after the machine's lock is released, in registration order.
func (m *Machine) Subscribe(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Transition moves to phase to. Moving to the current phase is a
// no-op; an edge outside the table is logged and rejected with
// ErrInvalidTransition, leaving the phase unchanged.
func (m *Machine) Transition(to Phase) error {
	m.mu.Lock()
	from := m.phase
	if from == to {
		m.mu.Unlock()
		return nil
	}
	if !CanTransition(from, to) {
		m.mu.Unlock()
		m.logger.Warn("rejected phase transition", "from", from, "to", to)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.phase = to
	subscribers := m.subscribers
	m.mu.Unlock()

	m.publish(subscribers, Transition{From: from, To: to})
	return nil
}

// Advance moves from → to only if the machine is currently in from,
// and reports whether it did. Being in any other phase is not an
// error; it means another caller got there first.
func (m *Machine) Advance(from, to Phase) bool {
	m.mu.Lock()
	if m.phase != from || !CanTransition(from, to) {
		m.mu.Unlock()
		return false
	}
	m.phase = to
	subscribers := m.subscribers
	m.mu.Unlock()

	m.publish(subscribers, Transition{From: from, To: to})
	return true
}

// ClaimGoal moves Active → GoalReached → Resetting under one lock
// acquisition and reports whether this call made the move. Only the
// first of any number of concurrent claimants succeeds.
func (m *Machine) ClaimGoal() bool {
	m.mu.Lock()
	if m.phase != Active {
		m.mu.Unlock()
		return false
	}
	m.phase = Resetting
	subscribers := m.subscribers
	m.mu.Unlock()

	m.publish(subscribers,
		Transition{From: Active, To: GoalReached},
		Transition{From: GoalReached, To: Resetting},
	)
	return true
}

func (m *Machine) publish(subscribers []func(Transition), transitions ...Transition) {
	for _, transition := range transitions {
		m.logger.Info("phase transition", "from", transition.From, "to", transition.To)
		for _, fn := range subscribers {
			fn(transition)
		}
	}
}
