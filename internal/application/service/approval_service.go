package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/ticket-workflow/internal/application/dispatcher"
	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/application/realtime"
	appworkflow "github.com/garyjia/ticket-workflow/internal/application/workflow"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/internal/domain/event"
	"github.com/garyjia/ticket-workflow/internal/domain/pay"
	domainwf "github.com/garyjia/ticket-workflow/internal/domain/workflow"
)

// Approval steps named in errors and alerts
const (
	StepUpdateTicket = "update_ticket"
	StepDriverPay    = "calculate_driver_pay"
	StepAdvanceLoad  = "auto_advance_load"
)

// StepError reports which approval step failed
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return e.Step + ": " + e.Err.Error() }
func (e *StepError) Unwrap() error { return e.Err }

// ApprovalResult is the outcome of an approval
type ApprovalResult struct {
	Ticket *entity.Ticket    `json:"ticket"`
	Pay    *entity.DriverPay `json:"driver_pay,omitempty"`
	Load   *entity.Load      `json:"load,omitempty"`
	// AlreadyApproved is true when the call was a no-op repeat.
	AlreadyApproved bool `json:"already_approved"`
}

// ApprovalService approves tickets as one atomic, idempotent unit of work:
// status update, driver pay calculation and load advance commit together.
type ApprovalService interface {
	Approve(ctx context.Context, ticketID, actor string) (*ApprovalResult, error)
}

// RetryPolicy controls how transient store errors are retried
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	// Transient reports whether err is worth retrying.
	Transient func(err error) bool
}

type approvalServiceImpl struct {
	ticketRepo  port.TicketRepository
	payRepo     port.DriverPayRepository
	loadRepo    port.LoadRepository
	txManager   port.TransactionManager
	engine      appworkflow.Engine
	broadcaster port.Broadcaster
	alerter     port.Alerter
	dispatcher  dispatcher.Dispatcher
	retry       RetryPolicy
	now         func() time.Time
	logger      Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	ticketRepo port.TicketRepository,
	payRepo port.DriverPayRepository,
	loadRepo port.LoadRepository,
	txManager port.TransactionManager,
	engine appworkflow.Engine,
	broadcaster port.Broadcaster,
	alerter port.Alerter,
	d dispatcher.Dispatcher,
	retry RetryPolicy,
	logger Logger,
) ApprovalService {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.Transient == nil {
		retry.Transient = func(error) bool { return false }
	}
	return &approvalServiceImpl{
		ticketRepo:  ticketRepo,
		payRepo:     payRepo,
		loadRepo:    loadRepo,
		txManager:   txManager,
		engine:      engine,
		broadcaster: broadcaster,
		alerter:     alerter,
		dispatcher:  d,
		retry:       retry,
		now:         time.Now,
		logger:      orNop(logger),
	}
}

func (s *approvalServiceImpl) Approve(ctx context.Context, ticketID, actor string) (*ApprovalResult, error) {
	if strings.TrimSpace(ticketID) == "" {
		return nil, ErrNoTicketSelected
	}

	var (
		result   *ApprovalResult
		previous domainwf.State
		err      error
		attempt  int
	)

	for attempt = 1; attempt <= s.retry.MaxAttempts; attempt++ {
		result, previous, err = s.approveOnce(ctx, ticketID, actor)
		if err == nil || !s.retry.Transient(err) || attempt == s.retry.MaxAttempts {
			break
		}

		s.logger.Info("Retrying approval after transient error", "ticket_id", ticketID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(s.retry.Backoff * time.Duration(attempt)):
			continue
		}
		break
	}

	if err != nil {
		s.fail(ctx, ticketID, actor, attempt, err)
		return nil, err
	}

	if result.AlreadyApproved {
		s.logger.Info("Ticket already approved", "ticket_id", ticketID, "status", result.Ticket.Status)
		return result, nil
	}

	t := result.Ticket
	s.broadcaster.Broadcast(realtime.TicketChannel(t.ID), realtime.EventTicketApproved, map[string]interface{}{
		"ticket_id": t.ID,
		"status":    t.Status,
	})
	if s.dispatcher != nil {
		approved := event.NewEvent(event.TypeTicketApproved, t.ID, t.OrganizationID, map[string]interface{}{
			"actor":         actor,
			"previous":      previous.String(),
			"ticket_number": t.TicketNumber,
		})
		s.dispatcher.DispatchAsync(ctx, approved)
		if result.Pay != nil {
			s.dispatcher.DispatchAsync(ctx, approved.Caused(event.TypeDriverPayPosted, map[string]interface{}{
				"driver_id": result.Pay.DriverID,
				"amount":    result.Pay.Amount,
			}))
		}
	}

	s.engine.Announce(ctx, t, previous, domainwf.TriggerApprove)

	s.logger.Info("Ticket approved", "ticket_id", t.ID, "actor", actor, "attempts", attempt)
	return result, nil
}

func (s *approvalServiceImpl) approveOnce(ctx context.Context, ticketID, actor string) (*ApprovalResult, domainwf.State, error) {
	result := &ApprovalResult{}
	var previous domainwf.State

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ticket, err := s.ticketRepo.GetByID(txCtx, ticketID)
		if err != nil {
			return &StepError{Step: StepUpdateTicket, Err: fmt.Errorf("failed to fetch ticket: %w", err)}
		}
		if ticket == nil {
			return ErrTicketNotFound
		}
		result.Ticket = ticket

		if domainwf.State(ticket.Status).IsApprovedOrLater() {
			result.AlreadyApproved = true
			return nil
		}

		copied := ticket.ApplyApprovalFields()
		previous, err = s.engine.Fire(txCtx, ticket, domainwf.TriggerApprove, actor, strings.Join(copied, ","))
		if err != nil {
			return err
		}
		now := s.now()
		ticket.ApprovedAt = &now
		if err := s.ticketRepo.Update(txCtx, ticket); err != nil {
			return &StepError{Step: StepUpdateTicket, Err: err}
		}

		result.Pay, err = s.calculateDriverPay(txCtx, ticket, now)
		if err != nil {
			return &StepError{Step: StepDriverPay, Err: err}
		}

		result.Load, err = s.advanceLoad(txCtx, ticket)
		if err != nil {
			return &StepError{Step: StepAdvanceLoad, Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, previous, err
	}
	return result, previous, nil
}

func (s *approvalServiceImpl) calculateDriverPay(ctx context.Context, t *entity.Ticket, now time.Time) (*entity.DriverPay, error) {
	row := &entity.DriverPay{
		TicketID:     t.ID,
		DriverID:     t.DriverID,
		PayMethod:    t.PayMethod,
		Amount:       pay.ComputedPay(t.QuantityFinal, t.Quantity, t.PayRate, t.PayPercentage),
		CalculatedAt: now,
	}
	switch {
	case t.QuantityFinal != nil:
		row.Quantity = *t.QuantityFinal
	case t.Quantity != nil:
		row.Quantity = *t.Quantity
	}
	if t.PayRate != nil {
		row.PayRate = *t.PayRate
	}
	if t.PayPercentage != nil {
		row.PayPercentage = *t.PayPercentage
	}

	if err := s.payRepo.Upsert(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// advanceLoad moves the linked load one step forward, or straight to delivered
// once every live ticket on it is approved.
func (s *approvalServiceImpl) advanceLoad(ctx context.Context, t *entity.Ticket) (*entity.Load, error) {
	if t.LoadID == "" {
		return nil, nil
	}
	load, err := s.loadRepo.GetByID(ctx, t.LoadID)
	if err != nil {
		return nil, err
	}
	if load == nil {
		s.logger.Info("Ticket references unknown load", "ticket_id", t.ID, "load_id", t.LoadID)
		return nil, nil
	}

	total, approved, err := s.ticketRepo.CountByLoad(ctx, load.ID)
	if err != nil {
		return nil, err
	}

	next := entity.NextLoadStatus(load.Status)
	if total > 0 && approved == total {
		next = entity.LoadStatusDelivered
	}
	if next == load.Status {
		return load, nil
	}
	if err := s.loadRepo.UpdateStatus(ctx, load.ID, next); err != nil {
		return nil, err
	}
	load.Status = next
	return load, nil
}

// fail alerts operators about approvals that broke for reasons a caller cannot fix.
func (s *approvalServiceImpl) fail(ctx context.Context, ticketID, actor string, attempts int, err error) {
	s.logger.Error("Ticket approval failed", "ticket_id", ticketID, "attempts", attempts, "error", err)

	if errors.Is(err, ErrTicketNotFound) || errors.Is(err, domainwf.ErrInvalidTransition) ||
		errors.Is(err, context.Canceled) {
		return
	}

	step := StepUpdateTicket
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		step = stepErr.Step
	}

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeApprovalFailed, ticketID, "", map[string]interface{}{
			"step":  step,
			"actor": actor,
			"error": err.Error(),
		}))
	}

	if s.alerter == nil {
		return
	}
	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if alertErr := s.alerter.Alert(alertCtx, port.Alert{
		TicketID: ticketID,
		Step:     step,
		Err:      err,
		Attempts: attempts,
	}); alertErr != nil {
		s.logger.Error("Failed to send approval alert", "ticket_id", ticketID, "error", alertErr)
	}
}
