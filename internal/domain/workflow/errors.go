package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a trigger is not permitted from the current status
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrGuardFailed is returned when every guarded transition for a trigger rejects it
	ErrGuardFailed = errors.New("guard condition failed")

	ErrUnknownTrigger = errors.New("unknown trigger")
)

// ErrInvalidState is returned when a machine is built from an unknown status
var ErrInvalidState = errors.New("invalid state")
