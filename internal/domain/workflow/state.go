package workflow

// State is a ticket lifecycle status as stored in the tickets.status column.
type State string

const (
	StatePending      State = "pending"
	StateOCRCompleted State = "ocr_completed"
	StateApproved     State = "approved"
	StateInvoiced     State = "invoiced"
	StatePaid         State = "paid"
	StateCancelled    State = "cancelled"
)

// AllStates lists every status in lifecycle order.
var AllStates = []State{
	StatePending,
	StateOCRCompleted,
	StateApproved,
	StateInvoiced,
	StatePaid,
	StateCancelled,
}

// IsTerminal reports whether no trigger can leave the state.
func (s State) IsTerminal() bool {
	return s == StatePaid || s == StateCancelled
}

// IsApprovedOrLater reports whether the ticket has passed manager approval.
func (s State) IsApprovedOrLater() bool {
	switch s {
	case StateApproved, StateInvoiced, StatePaid:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known ticket status
func (s State) IsValid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}
