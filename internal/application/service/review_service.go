package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/ticket-workflow/internal/application/dispatcher"
	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/application/realtime"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/internal/domain/event"
	"github.com/garyjia/ticket-workflow/internal/domain/pay"
	domainwf "github.com/garyjia/ticket-workflow/internal/domain/workflow"
	"github.com/garyjia/ticket-workflow/pkg/utils"
)

// Reviewer-editable columns
const (
	FieldQuantityFinal = "quantity_final"
	FieldPayMethod     = "pay_method"
	FieldPayRate       = "pay_rate"
	FieldPayPercentage = "pay_percentage"
	FieldNotes         = "notes"
)

// ReviewRow is one line of the review table
type ReviewRow struct {
	*entity.Ticket
	DriverName  string  `json:"driver_name,omitempty"`
	TruckNumber string  `json:"truck_number,omitempty"`
	ComputedPay float64 `json:"computed_pay"`
}

// ReviewService backs the manager review and reconciliation table
type ReviewService interface {
	List(ctx context.Context, filter entity.TicketFilter) ([]*ReviewRow, error)
	// UpdateField saves one field on its own; there is no batching across fields.
	UpdateField(ctx context.Context, ticketID, field string, value interface{}, actor string) (*ReviewRow, error)
	// Customers lists the organization's customers for the upload form.
	Customers(ctx context.Context, organizationID string) ([]entity.Customer, error)
}

type reviewServiceImpl struct {
	ticketRepo  port.TicketRepository
	historyRepo port.HistoryRepository
	refRepo     port.ReferenceRepository
	txManager   port.TransactionManager
	broadcaster port.Broadcaster
	dispatcher  dispatcher.Dispatcher
	logger      Logger
}

// NewReviewService creates a new ReviewService
func NewReviewService(
	ticketRepo port.TicketRepository,
	historyRepo port.HistoryRepository,
	refRepo port.ReferenceRepository,
	txManager port.TransactionManager,
	broadcaster port.Broadcaster,
	d dispatcher.Dispatcher,
	logger Logger,
) ReviewService {
	return &reviewServiceImpl{
		ticketRepo:  ticketRepo,
		historyRepo: historyRepo,
		refRepo:     refRepo,
		txManager:   txManager,
		broadcaster: broadcaster,
		dispatcher:  d,
		logger:      orNop(logger),
	}
}

func (s *reviewServiceImpl) List(ctx context.Context, filter entity.TicketFilter) ([]*ReviewRow, error) {
	if len(filter.Statuses) == 0 {
		filter.Statuses = []string{domainwf.StatePending.String(), domainwf.StateOCRCompleted.String()}
	}
	if filter.Limit <= 0 {
		filter.Limit = 200
	}

	tickets, err := s.ticketRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list review tickets: %w", err)
	}

	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.DriverID)
	}
	names, err := s.refRepo.DriverNames(ctx, ids)
	if err != nil {
		s.logger.Error("Failed to load driver names", "error", err)
		names = map[string]string{}
	}

	trucks := s.truckNumbers(ctx, tickets)

	rows := make([]*ReviewRow, 0, len(tickets))
	for _, t := range tickets {
		row := toReviewRow(t, names[t.DriverID])
		row.TruckNumber = trucks[t.TruckID]
		rows = append(rows, row)
	}
	return rows, nil
}

// truckNumbers resolves each distinct truck once. Lookup failures leave the number blank.
func (s *reviewServiceImpl) truckNumbers(ctx context.Context, tickets []*entity.Ticket) map[string]string {
	out := make(map[string]string)
	for _, t := range tickets {
		if t.TruckID == "" {
			continue
		}
		if _, seen := out[t.TruckID]; seen {
			continue
		}
		out[t.TruckID] = ""
		truck, err := s.refRepo.GetTruck(ctx, t.TruckID)
		if err != nil {
			s.logger.Error("Failed to load truck", "truck_id", t.TruckID, "error", err)
			continue
		}
		if truck != nil {
			out[t.TruckID] = truck.UnitNumber
		}
	}
	return out
}

func (s *reviewServiceImpl) Customers(ctx context.Context, organizationID string) ([]entity.Customer, error) {
	customers, err := s.refRepo.ListCustomers(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	if customers == nil {
		customers = []entity.Customer{}
	}
	return customers, nil
}

func (s *reviewServiceImpl) UpdateField(ctx context.Context, ticketID, field string, value interface{}, actor string) (*ReviewRow, error) {
	if strings.TrimSpace(ticketID) == "" {
		return nil, ErrNoTicketSelected
	}

	column, normalized, err := normalizeReviewValue(field, value)
	if err != nil {
		return nil, err
	}

	var ticket *entity.Ticket
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		ticket, err = s.ticketRepo.GetByID(txCtx, ticketID)
		if err != nil {
			return fmt.Errorf("failed to fetch ticket: %w", err)
		}
		if ticket == nil {
			return ErrTicketNotFound
		}
		if domainwf.State(ticket.Status).IsTerminal() {
			return ErrTicketLocked
		}

		if err := s.ticketRepo.UpdateField(txCtx, ticketID, column, normalized); err != nil {
			return fmt.Errorf("failed to update %s: %w", column, err)
		}
		applyReviewValue(ticket, column, normalized)
		ticket.UpdatedAt = time.Now()

		return s.historyRepo.Create(txCtx, &entity.TicketHistory{
			TicketID:       ticketID,
			ActorID:        actor,
			PreviousStatus: ticket.Status,
			NewStatus:      ticket.Status,
			Action:         entity.ActionFieldEdited,
			Detail:         column + "=" + describe(normalized),
			Timestamp:      ticket.UpdatedAt,
		})
	})
	if err != nil {
		s.logger.Error("Review field update failed", "ticket_id", ticketID, "field", column, "error", err)
		return nil, err
	}

	row := toReviewRow(ticket, "")
	s.broadcaster.Broadcast(realtime.TicketChannel(ticketID), realtime.EventTicketUpdated, map[string]interface{}{
		"ticket_id": ticketID,
		"fields": map[string]interface{}{
			column:         jsonValue(normalized),
			"computed_pay": row.ComputedPay,
		},
	})
	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeFieldUpdated, ticketID, ticket.OrganizationID,
			map[string]interface{}{"field": column, "actor": actor}))
	}
	return row, nil
}

func toReviewRow(t *entity.Ticket, driverName string) *ReviewRow {
	return &ReviewRow{
		Ticket:      t,
		DriverName:  driverName,
		ComputedPay: pay.ComputedPay(t.QuantityFinal, t.Quantity, t.PayRate, t.PayPercentage),
	}
}

// normalizeReviewValue returns *float64 for numeric columns (nil clears) and string otherwise.
func normalizeReviewValue(field string, value interface{}) (string, interface{}, error) {
	switch field {
	case FieldQuantityFinal, FieldPayRate, FieldPayPercentage:
		n, err := toOptionalFloat(value)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %s: %v", ErrInvalidField, field, err)
		}
		if err := utils.ValidateNonNegative(field, n); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidField, err)
		}
		return field, n, nil

	case FieldPayMethod:
		m, _ := value.(string)
		m = strings.TrimSpace(m)
		if m != "" && !entity.ValidPayMethod(m) {
			return "", nil, fmt.Errorf("%w: pay_method %q", ErrInvalidField, m)
		}
		return field, m, nil

	case FieldNotes:
		if value == nil {
			return field, "", nil
		}
		notes, ok := value.(string)
		if !ok {
			return "", nil, fmt.Errorf("%w: notes must be text", ErrInvalidField)
		}
		return field, notes, nil
	}
	return "", nil, fmt.Errorf("%w: %q is not editable", ErrInvalidField, field)
}

func toOptionalFloat(value interface{}) (*float64, error) {
	var f float64
	switch v := value.(type) {
	case nil:
		return nil, nil
	case float64:
		f = v
	case int:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, err
		}
		f = parsed
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("not a number")
		}
		f = parsed
	default:
		return nil, fmt.Errorf("unsupported type %T", value)
	}
	if err := utils.ValidateFinite("value", f); err != nil {
		return nil, err
	}
	return &f, nil
}

func applyReviewValue(t *entity.Ticket, column string, v interface{}) {
	switch column {
	case FieldQuantityFinal:
		t.QuantityFinal, _ = v.(*float64)
	case FieldPayRate:
		t.PayRate, _ = v.(*float64)
	case FieldPayPercentage:
		t.PayPercentage, _ = v.(*float64)
	case FieldPayMethod:
		t.PayMethod, _ = v.(string)
	case FieldNotes:
		t.Notes, _ = v.(string)
	}
}

func jsonValue(v interface{}) interface{} {
	if p, ok := v.(*float64); ok {
		if p == nil {
			return nil
		}
		return *p
	}
	return v
}

func describe(v interface{}) string {
	switch x := jsonValue(v).(type) {
	case nil:
		return "null"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
