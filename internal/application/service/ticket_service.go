package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/ticket-workflow/internal/application/dispatcher"
	"github.com/garyjia/ticket-workflow/internal/application/port"
	appworkflow "github.com/garyjia/ticket-workflow/internal/application/workflow"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/internal/domain/event"
	"github.com/garyjia/ticket-workflow/internal/domain/pay"
	"github.com/garyjia/ticket-workflow/internal/domain/payweek"
	domainwf "github.com/garyjia/ticket-workflow/internal/domain/workflow"
)

// Upload is a file attached to a new ticket
type Upload struct {
	Name        string
	ContentType string
	Content     []byte
}

// CreateTicketInput carries everything needed to create a ticket
type CreateTicketInput struct {
	OrganizationID string
	DriverID       string
	TruckID        string
	ActorID        string
	Form           entity.TicketForm
	File           *Upload
	Now            time.Time
}

// TicketDetail is a ticket with its audit trail and live derived values
type TicketDetail struct {
	*entity.Ticket
	ComputedPay       float64                 `json:"computed_pay"`
	PermittedTriggers []domainwf.Trigger      `json:"permitted_triggers"`
	History           []*entity.TicketHistory `json:"history"`
}

// PayWeekStatus tells a driver whether uploads are open for a date
type PayWeekStatus struct {
	payweek.Period
	Timezone      string `json:"timezone"`
	UploadAllowed bool   `json:"upload_allowed"`
}

// TicketService creates tickets and drives post-approval transitions
type TicketService interface {
	// Create inserts a pending ticket, stores its image and runs OCR. On
	// ErrUploadFailed or ErrOCRFailed the created ticket is still returned.
	Create(ctx context.Context, in CreateTicketInput) (*entity.Ticket, error)
	Get(ctx context.Context, id string) (*TicketDetail, error)
	List(ctx context.Context, filter entity.TicketFilter) ([]*entity.Ticket, error)
	Transition(ctx context.Context, id string, trigger domainwf.Trigger, actor string) (*entity.Ticket, error)
	PayWeek(now time.Time, date string) (*PayWeekStatus, error)
}

type ticketServiceImpl struct {
	ticketRepo  port.TicketRepository
	historyRepo port.HistoryRepository
	txManager   port.TransactionManager
	storage     port.ObjectStorage
	ocr         OCRService
	engine      appworkflow.Engine
	gate        *payweek.Gate
	dispatcher  dispatcher.Dispatcher
	logger      Logger
}

// NewTicketService creates a new TicketService
func NewTicketService(
	ticketRepo port.TicketRepository,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	storage port.ObjectStorage,
	ocr OCRService,
	engine appworkflow.Engine,
	gate *payweek.Gate,
	d dispatcher.Dispatcher,
	logger Logger,
) TicketService {
	return &ticketServiceImpl{
		ticketRepo:  ticketRepo,
		historyRepo: historyRepo,
		txManager:   txManager,
		storage:     storage,
		ocr:         ocr,
		engine:      engine,
		gate:        gate,
		dispatcher:  d,
		logger:      orNop(logger),
	}
}

func (s *ticketServiceImpl) Create(ctx context.Context, in CreateTicketInput) (*entity.Ticket, error) {
	if strings.TrimSpace(in.DriverID) == "" {
		return nil, fmt.Errorf("%w: driver_id is required", ErrInvalidField)
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	if err := s.checkPayWeek(in.Now, in.Form.PickupDate); err != nil {
		return nil, err
	}

	form := in.Form
	ticket := &entity.Ticket{
		ID:             uuid.NewString(),
		TicketNumber:   entity.NewTicketNumber(in.Now),
		OrganizationID: in.OrganizationID,
		DriverID:       in.DriverID,
		TruckID:        in.TruckID,
		Status:         domainwf.StatePending.String(),
		CreatedAt:      in.Now,
		UpdatedAt:      in.Now,
	}
	form.Apply(ticket)
	recomputeTotal(ticket)

	actor := in.ActorID
	if actor == "" {
		actor = in.DriverID
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ticketRepo.Create(txCtx, ticket); err != nil {
			return fmt.Errorf("create ticket: %w", err)
		}
		return s.historyRepo.Create(txCtx, &entity.TicketHistory{
			TicketID:  ticket.ID,
			ActorID:   actor,
			NewStatus: ticket.Status,
			Action:    entity.ActionCreated,
			Timestamp: in.Now,
		})
	})
	if err != nil {
		s.logger.Error("Failed to create ticket", "driver_id", in.DriverID, "error", err)
		return nil, err
	}

	s.logger.Info("Ticket created", "ticket_id", ticket.ID, "ticket_number", ticket.TicketNumber)
	s.dispatch(ctx, event.TypeTicketCreated, ticket, map[string]interface{}{"ticket_number": ticket.TicketNumber})

	if in.File == nil || len(in.File.Content) == 0 {
		return ticket, nil
	}

	objectPath := ImagePath(in.Now, ticket.ID, in.File.Name)
	if err := s.storage.Save(ctx, objectPath, in.File.Content); err != nil {
		s.logger.Error("Ticket image upload failed", "ticket_id", ticket.ID, "path", objectPath, "error", err)
		_ = s.historyRepo.Create(ctx, &entity.TicketHistory{
			TicketID:       ticket.ID,
			ActorID:        actor,
			PreviousStatus: ticket.Status,
			NewStatus:      ticket.Status,
			Action:         entity.ActionUploadFail,
			Detail:         err.Error(),
			Timestamp:      time.Now(),
		})
		return ticket, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	ticket.ImagePath = objectPath
	if err := s.ticketRepo.Update(ctx, ticket); err != nil {
		return ticket, fmt.Errorf("%w: record image path: %v", ErrUploadFailed, err)
	}
	s.dispatch(ctx, event.TypeImageUploaded, ticket, map[string]interface{}{"path": objectPath})

	resp, err := s.ocr.Request(ctx, ticket)
	if err != nil {
		return ticket, err
	}
	if resp == nil || resp.Ticket == nil {
		return ticket, nil
	}

	filled := form.MergeOCR(resp)
	if containsString(filled, "pickup_date") {
		if err := s.checkPayWeek(in.Now, form.PickupDate); err != nil {
			// the extraction keeps the scanned date for review
			s.logger.Info("OCR pickup date left blank", "ticket_id", ticket.ID, "ticket_date", form.PickupDate, "reason", err)
			form.PickupDate = in.Form.PickupDate
		}
	}
	form.Apply(ticket)
	if containsString(filled, "quantity") {
		recomputeTotal(ticket)
	}

	if err := s.ocr.Attach(ctx, ticket, resp.Ticket.Extraction(), actor); err != nil {
		return ticket, fmt.Errorf("%w: %v", ErrOCRFailed, err)
	}
	return ticket, nil
}

func (s *ticketServiceImpl) checkPayWeek(now time.Time, ticketDate string) error {
	if s.gate == nil || strings.TrimSpace(ticketDate) == "" {
		return nil
	}
	day, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(ticketDate), s.gate.Location)
	if err != nil {
		return fmt.Errorf("%w: pickup_date must be YYYY-MM-DD", ErrInvalidField)
	}
	if !s.gate.Allows(now, day) {
		return ErrOutsidePayWeek
	}
	return nil
}

func (s *ticketServiceImpl) Get(ctx context.Context, id string) (*TicketDetail, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNoTicketSelected
	}
	ticket, err := s.ticketRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticket: %w", err)
	}
	if ticket == nil {
		return nil, ErrTicketNotFound
	}

	history, err := s.historyRepo.GetByTicketID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	detail := &TicketDetail{
		Ticket:      ticket,
		ComputedPay: pay.ComputedPay(ticket.QuantityFinal, ticket.Quantity, ticket.PayRate, ticket.PayPercentage),
		History:     history,
	}
	if m, err := domainwf.NewTicketMachine(domainwf.State(ticket.Status)); err == nil {
		detail.PermittedTriggers = m.PermittedTriggers()
	}
	return detail, nil
}

func (s *ticketServiceImpl) List(ctx context.Context, filter entity.TicketFilter) ([]*entity.Ticket, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	tickets, err := s.ticketRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list tickets", "error", err)
		return nil, err
	}
	return tickets, nil
}

// Transition handles the post-approval triggers. APPROVE goes through ApprovalService
// and COMPLETE_OCR through OCRService since both carry side effects.
func (s *ticketServiceImpl) Transition(ctx context.Context, id string, trigger domainwf.Trigger, actor string) (*entity.Ticket, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNoTicketSelected
	}
	switch trigger {
	case domainwf.TriggerInvoice, domainwf.TriggerPay, domainwf.TriggerCancel:
	default:
		return nil, fmt.Errorf("%w: %s must use its dedicated endpoint", domainwf.ErrInvalidTransition, trigger)
	}

	ticket, err := s.engine.Transition(ctx, id, trigger, actor)
	if err != nil {
		s.logger.Error("Ticket transition failed", "ticket_id", id, "trigger", trigger, "error", err)
		return nil, err
	}
	s.logger.Info("Ticket transitioned", "ticket_id", id, "trigger", trigger, "status", ticket.Status)
	return ticket, nil
}

func (s *ticketServiceImpl) PayWeek(now time.Time, date string) (*PayWeekStatus, error) {
	status := &PayWeekStatus{
		Period:        s.gate.Current(now),
		Timezone:      s.gate.Location.String(),
		UploadAllowed: true,
	}
	if date != "" {
		err := s.checkPayWeek(now, date)
		switch {
		case errors.Is(err, ErrOutsidePayWeek):
			status.UploadAllowed = false
		case err != nil:
			return nil, err
		}
	}
	return status, nil
}

func (s *ticketServiceImpl) dispatch(ctx context.Context, t event.Type, ticket *entity.Ticket, payload map[string]interface{}) {
	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(t, ticket.ID, ticket.OrganizationID, payload))
	}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ImagePath is the storage path for a ticket image: tickets/<YYYY-MM-DD>/<ticket_id>/<filename>.
func ImagePath(now time.Time, ticketID, filename string) string {
	name := unsafeName.ReplaceAllString(path.Base(strings.ReplaceAll(filename, `\`, "/")), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "upload"
	}
	return path.Join("tickets", now.Format(time.DateOnly), ticketID, name)
}

func recomputeTotal(t *entity.Ticket) {
	if total, ok := pay.TotalAmount(t.Quantity, t.Rate); ok {
		t.TotalAmount = &total
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
