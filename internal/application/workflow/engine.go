package workflow

import (
	"context"
	"errors"

	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/ticket-workflow/internal/domain/workflow"
)

// ErrTicketNotFound is returned when the ticket id does not exist
var ErrTicketNotFound = errors.New("ticket not found")

// Engine moves tickets through their status lifecycle
type Engine interface {
	// Fire validates trigger against ticket.Status, updates ticket.Status and
	// records a history row. The caller persists the ticket row, normally in
	// the same transaction.
	Fire(ctx context.Context, ticket *entity.Ticket, trigger domainwf.Trigger, actor, detail string) (previous domainwf.State, err error)

	// Transition loads the ticket, fires trigger and saves the new status in one
	// transaction, then announces the change.
	Transition(ctx context.Context, ticketID string, trigger domainwf.Trigger, actor string) (*entity.Ticket, error)

	// Announce publishes a committed status change to in-process handlers and realtime subscribers.
	Announce(ctx context.Context, ticket *entity.Ticket, previous domainwf.State, trigger domainwf.Trigger)
}
