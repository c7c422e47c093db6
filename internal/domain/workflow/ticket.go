package workflow

import "context"

// NewTicketMachine returns a state machine positioned at the given ticket status.
//
//	pending ──COMPLETE_OCR──▶ ocr_completed
//	pending, ocr_completed ──APPROVE──▶ approved ──INVOICE──▶ invoiced ──PAY──▶ paid
//	any non-terminal except paid ──CANCEL──▶ cancelled
func NewTicketMachine(current State) (StateMachine, error) {
	return ticketBuilder.Build(current)
}

var ticketBuilder = func() StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StatePending).
		Permit(TriggerCompleteOCR, StateOCRCompleted).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerCancel, StateCancelled)

	b.Configure(StateOCRCompleted).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerCancel, StateCancelled)

	b.Configure(StateApproved).
		Permit(TriggerInvoice, StateInvoiced).
		Permit(TriggerCancel, StateCancelled)

	b.Configure(StateInvoiced).
		Permit(TriggerPay, StatePaid).
		Permit(TriggerCancel, StateCancelled)

	return b
}()

// Next reports the status a ticket in from would reach by trigger, without guards.
func Next(from State, trigger Trigger) (State, error) {
	m, err := NewTicketMachine(from)
	if err != nil {
		return "", err
	}
	if err := m.Fire(context.Background(), trigger); err != nil {
		return "", err
	}
	return m.State(), nil
}
