package workflow

import (
	"context"
	"fmt"
	"sort"
)

// StateMachine tracks one ticket's status and validates triggers against the table
type StateMachine interface {
	State() State
	CanFire(trigger Trigger) bool
	Fire(ctx context.Context, trigger Trigger) error
	PermittedTriggers() []Trigger
}

type machine struct {
	current State
	edges   table
}

func (m *machine) State() State {
	return m.current
}

// CanFire ignores guards; Fire evaluates them.
func (m *machine) CanFire(trigger Trigger) bool {
	return len(m.edges[m.current][trigger]) > 0
}

func (m *machine) Fire(ctx context.Context, trigger Trigger) error {
	edges := m.edges[m.current][trigger]
	if len(edges) == 0 {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, e := range edges {
		if e.guard == nil || e.guard(ctx) {
			m.current = e.to
			return nil
		}
	}

	return fmt.Errorf("%w: %s from %s", ErrGuardFailed, trigger, m.current)
}

// PermittedTriggers is sorted for stable API output.
func (m *machine) PermittedTriggers() []Trigger {
	triggers := make([]Trigger, 0, len(m.edges[m.current]))
	for trigger := range m.edges[m.current] {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
