package service

import (
	"errors"

	appworkflow "github.com/garyjia/ticket-workflow/internal/application/workflow"
)

var (
	// ErrNoTicketSelected is returned before any store access when an action names no ticket
	ErrNoTicketSelected = errors.New("no ticket selected")

	ErrTicketNotFound = appworkflow.ErrTicketNotFound

	// ErrOutsidePayWeek is returned when a ticket date is not in the driver's current pay week
	ErrOutsidePayWeek = errors.New("ticket date is outside the current pay week")

	// ErrUploadFailed means the ticket row exists but its image was not stored
	ErrUploadFailed = errors.New("ticket created, image upload failed")

	// ErrOCRFailed means the image is stored but extraction did not run or failed
	ErrOCRFailed = errors.New("ticket created, OCR extraction failed")

	ErrInvalidField = errors.New("invalid field")

	// ErrTicketLocked is returned when editing a paid or cancelled ticket
	ErrTicketLocked = errors.New("ticket is closed for edits")

	ErrNoImage = errors.New("ticket has no image")
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func orNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
