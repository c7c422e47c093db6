package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/ticket-workflow/internal/application/dispatcher"
	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/application/realtime"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/internal/domain/event"
	domainwf "github.com/garyjia/ticket-workflow/internal/domain/workflow"
)

type engineImpl struct {
	ticketRepo  port.TicketRepository
	historyRepo port.HistoryRepository
	txManager   port.TransactionManager
	dispatcher  dispatcher.Dispatcher
	broadcaster port.Broadcaster
	now         func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher emits ticket.status_changed after each committed transition
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithBroadcaster pushes ticket_updated to the ticket channel after each committed transition
func WithBroadcaster(b port.Broadcaster) EngineOption {
	return func(e *engineImpl) {
		e.broadcaster = b
	}
}

// WithClock overrides time.Now for history timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	ticketRepo port.TicketRepository,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		ticketRepo:  ticketRepo,
		historyRepo: historyRepo,
		txManager:   txManager,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *engineImpl) Fire(ctx context.Context, ticket *entity.Ticket, trigger domainwf.Trigger, actor, detail string) (domainwf.State, error) {
	previous := domainwf.State(ticket.Status)

	machine, err := domainwf.NewTicketMachine(previous)
	if err != nil {
		return previous, fmt.Errorf("ticket %s: %w", ticket.ID, err)
	}
	if err := machine.Fire(ctx, trigger); err != nil {
		return previous, err
	}

	now := e.now()
	ticket.Status = machine.State().String()
	ticket.UpdatedAt = now

	if actor == "" {
		actor = entity.SystemActor
	}
	history := &entity.TicketHistory{
		TicketID:       ticket.ID,
		ActorID:        actor,
		PreviousStatus: previous.String(),
		NewStatus:      ticket.Status,
		Action:         trigger.String(),
		Detail:         detail,
		Timestamp:      now,
	}
	if err := e.historyRepo.Create(ctx, history); err != nil {
		return previous, fmt.Errorf("failed to create history record: %w", err)
	}

	return previous, nil
}

func (e *engineImpl) Transition(ctx context.Context, ticketID string, trigger domainwf.Trigger, actor string) (*entity.Ticket, error) {
	var (
		ticket   *entity.Ticket
		previous domainwf.State
	)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		ticket, err = e.ticketRepo.GetByID(txCtx, ticketID)
		if err != nil {
			return fmt.Errorf("failed to fetch ticket: %w", err)
		}
		if ticket == nil {
			return ErrTicketNotFound
		}

		previous, err = e.Fire(txCtx, ticket, trigger, actor, "")
		if err != nil {
			return err
		}

		if err := e.ticketRepo.UpdateStatus(txCtx, ticket.ID, ticket.Status); err != nil {
			return fmt.Errorf("failed to update ticket status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.Announce(ctx, ticket, previous, trigger)
	return ticket, nil
}

func (e *engineImpl) Announce(ctx context.Context, ticket *entity.Ticket, previous domainwf.State, trigger domainwf.Trigger) {
	if e.broadcaster != nil {
		e.broadcaster.Broadcast(realtime.TicketChannel(ticket.ID), realtime.EventTicketUpdated, map[string]interface{}{
			"ticket_id": ticket.ID,
			"status":    ticket.Status,
		})
	}

	if e.dispatcher != nil {
		e.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeStatusChanged, ticket.ID, ticket.OrganizationID, map[string]interface{}{
			"previous_status": previous.String(),
			"new_status":      ticket.Status,
			"trigger":         trigger.String(),
		}))
	}
}
