package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StatePending, false},
		{StateOCRCompleted, false},
		{StateApproved, false},
		{StateInvoiced, false},
		{StatePaid, true},
		{StateCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"pending", StatePending, true},
		{"cancelled", StateCancelled, true},
		{"upper case", State("PENDING"), false},
		{"empty", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseTrigger(t *testing.T) {
	got, err := ParseTrigger(" invoice ")
	if err != nil || got != TriggerInvoice {
		t.Fatalf("ParseTrigger() = %v, %v", got, err)
	}

	if _, err := ParseTrigger("REOPEN"); !errors.Is(err, ErrUnknownTrigger) {
		t.Errorf("ParseTrigger(REOPEN) error = %v, want %v", err, ErrUnknownTrigger)
	}
}

func TestTicketMachine_Transitions(t *testing.T) {
	tests := []struct {
		from    State
		trigger Trigger
		want    State
		wantErr bool
	}{
		{StatePending, TriggerCompleteOCR, StateOCRCompleted, false},
		{StatePending, TriggerApprove, StateApproved, false},
		{StateOCRCompleted, TriggerApprove, StateApproved, false},
		{StateApproved, TriggerInvoice, StateInvoiced, false},
		{StateInvoiced, TriggerPay, StatePaid, false},
		{StateInvoiced, TriggerCancel, StateCancelled, false},
		{StatePending, TriggerCancel, StateCancelled, false},
		{StateOCRCompleted, TriggerCompleteOCR, "", true},
		{StatePending, TriggerPay, "", true},
		{StateApproved, TriggerApprove, "", true},
		{StatePaid, TriggerCancel, "", true},
		{StateCancelled, TriggerApprove, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.trigger.String(), func(t *testing.T) {
			got, err := Next(tt.from, tt.trigger)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("Next() error = %v, want %v", err, ErrInvalidTransition)
				}
				return
			}
			if err != nil {
				t.Fatalf("Next() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTicketMachine_TerminalStatesHaveNoTriggers(t *testing.T) {
	for _, s := range []State{StatePaid, StateCancelled} {
		m, err := NewTicketMachine(s)
		if err != nil {
			t.Fatalf("NewTicketMachine(%s) failed: %v", s, err)
		}
		if got := m.PermittedTriggers(); len(got) != 0 {
			t.Errorf("PermittedTriggers(%s) = %v, want none", s, got)
		}
	}
}

func TestTicketMachine_PermittedTriggersSorted(t *testing.T) {
	m, err := NewTicketMachine(StatePending)
	if err != nil {
		t.Fatal(err)
	}

	got := m.PermittedTriggers()
	want := []Trigger{TriggerApprove, TriggerCancel, TriggerCompleteOCR}
	if len(got) != len(want) {
		t.Fatalf("PermittedTriggers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PermittedTriggers()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBuilder_BuildRejectsUnknownState(t *testing.T) {
	_, err := NewBuilder().Build(State("archived"))
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Build() error = %v, want %v", err, ErrInvalidState)
	}
}

func TestBuilder_ConfigurePanicsOnUnknownState(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on unknown state")
		}
	}()

	NewBuilder().Configure(State("archived"))
}

func TestBuilder_SnapshotIsolation(t *testing.T) {
	b := NewBuilder()
	b.Configure(StatePending).Permit(TriggerApprove, StateApproved)

	m, err := b.Build(StatePending)
	if err != nil {
		t.Fatal(err)
	}

	b.Configure(StatePending).Permit(TriggerCancel, StateCancelled)

	if m.CanFire(TriggerCancel) {
		t.Error("machine built before Configure should not see later transitions")
	}
}

type guardKey struct{}

func TestStateConfiguration_PermitIf(t *testing.T) {
	b := NewBuilder()
	b.Configure(StatePending).
		PermitIf(TriggerApprove, StateApproved, func(ctx context.Context) bool {
			ok, _ := ctx.Value(guardKey{}).(bool)
			return ok
		})

	m, _ := b.Build(StatePending)
	err := m.Fire(context.Background(), TriggerApprove)
	if !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("Fire() error = %v, want %v", err, ErrGuardFailed)
	}
	if m.State() != StatePending {
		t.Errorf("State after failed Fire() = %v, want %v", m.State(), StatePending)
	}

	ctx := context.WithValue(context.Background(), guardKey{}, true)
	if err := m.Fire(ctx, TriggerApprove); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if m.State() != StateApproved {
		t.Errorf("State after Fire() = %v, want %v", m.State(), StateApproved)
	}
}
