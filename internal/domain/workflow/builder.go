package workflow

import (
	"context"
	"fmt"
)

// GuardFunc decides at fire time whether a guarded transition applies
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder collects the transition table and stamps out machines
type StateMachineBuilder interface {
	Configure(state State) StateConfiguration
	Build(initial State) (StateMachine, error)
}

// StateConfiguration configures the transitions leaving one state
type StateConfiguration interface {
	Permit(trigger Trigger, to State) StateConfiguration
	PermitIf(trigger Trigger, to State, guard GuardFunc) StateConfiguration
}

type edge struct {
	to    State
	guard GuardFunc
}

type table map[State]map[Trigger][]edge

type builder struct {
	edges table
}

type stateConfig struct {
	from  State
	edges table
}

// NewBuilder creates an empty builder.
func NewBuilder() StateMachineBuilder {
	return &builder{edges: make(table)}
}

// Configure panics on an unknown state; tables are built at init time.
func (b *builder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("workflow: configure unknown state %q", state))
	}
	if _, ok := b.edges[state]; !ok {
		b.edges[state] = make(map[Trigger][]edge)
	}
	return &stateConfig{from: state, edges: b.edges}
}

// Build snapshots the table so later Configure calls do not leak into built machines.
func (b *builder) Build(initial State) (StateMachine, error) {
	if !initial.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, initial)
	}

	snapshot := make(table, len(b.edges))
	for from, byTrigger := range b.edges {
		copied := make(map[Trigger][]edge, len(byTrigger))
		for trigger, edges := range byTrigger {
			copied[trigger] = append([]edge(nil), edges...)
		}
		snapshot[from] = copied
	}

	return &machine{current: initial, edges: snapshot}, nil
}

func (c *stateConfig) Permit(trigger Trigger, to State) StateConfiguration {
	return c.PermitIf(trigger, to, nil)
}

func (c *stateConfig) PermitIf(trigger Trigger, to State, guard GuardFunc) StateConfiguration {
	if !to.IsValid() {
		panic(fmt.Sprintf("workflow: permit to unknown state %q", to))
	}
	c.edges[c.from][trigger] = append(c.edges[c.from][trigger], edge{to: to, guard: guard})
	return c
}
