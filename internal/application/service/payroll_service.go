package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/internal/domain/pay"
	"github.com/garyjia/ticket-workflow/internal/domain/payweek"
	domainwf "github.com/garyjia/ticket-workflow/internal/domain/workflow"
)

const statementPageSize = 500

// StatementFile is a rendered pay statement
type StatementFile struct {
	Name        string
	ContentType string
	Content     []byte
	Statement   *port.Statement
}

// PayrollService builds weekly driver pay statements from approved tickets
type PayrollService interface {
	Statement(ctx context.Context, organizationID, driverID, weekOf string) (*StatementFile, error)
}

type payrollServiceImpl struct {
	ticketRepo port.TicketRepository
	payRepo    port.DriverPayRepository
	refRepo    port.ReferenceRepository
	writer     port.StatementWriter
	gate       *payweek.Gate
	logger     Logger
}

// NewPayrollService creates a new PayrollService
func NewPayrollService(
	ticketRepo port.TicketRepository,
	payRepo port.DriverPayRepository,
	refRepo port.ReferenceRepository,
	writer port.StatementWriter,
	gate *payweek.Gate,
	logger Logger,
) PayrollService {
	return &payrollServiceImpl{
		ticketRepo: ticketRepo,
		payRepo:    payRepo,
		refRepo:    refRepo,
		writer:     writer,
		gate:       gate,
		logger:     orNop(logger),
	}
}

// Statement collects the driver's approved, invoiced and paid tickets worked
// within the pay week containing weekOf, using the same date the upload gate
// checks. An empty weekOf selects the current week.
func (s *payrollServiceImpl) Statement(ctx context.Context, organizationID, driverID, weekOf string) (*StatementFile, error) {
	if strings.TrimSpace(driverID) == "" {
		return nil, fmt.Errorf("%w: driver_id is required", ErrInvalidField)
	}

	var (
		period payweek.Period
		err    error
	)
	if weekOf == "" {
		period = s.gate.Current(time.Now())
	} else if period, err = s.gate.WeekOf(weekOf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidField, err)
	}

	tickets, err := s.listWeek(ctx, entity.TicketFilter{
		OrganizationID: organizationID,
		DriverID:       driverID,
		Statuses: []string{
			domainwf.StateApproved.String(),
			domainwf.StateInvoiced.String(),
			domainwf.StatePaid.String(),
		},
		WorkFrom: &period.Start,
		WorkTo:   &period.End,
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tickets, func(i, j int) bool {
		a, b := tickets[i], tickets[j]
		if a.PickupDate != b.PickupDate {
			return a.PickupDate < b.PickupDate
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	stmt := &port.Statement{
		DriverID:  driverID,
		WeekStart: period.Start.Format(time.DateOnly),
		WeekEnd:   period.End.Format(time.DateOnly),
	}
	if d, err := s.refRepo.GetDriver(ctx, driverID); err == nil && d != nil {
		stmt.DriverName = d.Name
	}

	amounts := make([]float64, 0, len(tickets))
	for _, t := range tickets {
		amount := pay.ComputedPay(t.QuantityFinal, t.Quantity, t.PayRate, t.PayPercentage)
		if row, err := s.payRepo.GetByTicketID(ctx, t.ID); err != nil {
			s.logger.Error("Failed to load driver pay, using computed pay", "ticket_id", t.ID, "error", err)
		} else if row != nil {
			amount = row.Amount
		}
		stmt.Lines = append(stmt.Lines, port.StatementLine{Ticket: t, Pay: amount})
		amounts = append(amounts, amount)
	}
	stmt.Total = pay.Sum(amounts...)

	content, err := s.writer.Write(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to render statement: %w", err)
	}

	s.logger.Info("Pay statement generated", "driver_id", driverID, "week_start", stmt.WeekStart, "lines", len(stmt.Lines))
	return &StatementFile{
		Name:        fmt.Sprintf("statement_%s_%s.xlsx", driverID, stmt.WeekStart),
		ContentType: s.writer.ContentType(),
		Content:     content,
		Statement:   stmt,
	}, nil
}

// listWeek pages through every matching ticket.
func (s *payrollServiceImpl) listWeek(ctx context.Context, filter entity.TicketFilter) ([]*entity.Ticket, error) {
	filter.Limit = statementPageSize
	var all []*entity.Ticket
	for {
		page, err := s.ticketRepo.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list statement tickets: %w", err)
		}
		all = append(all, page...)
		if len(page) < statementPageSize {
			return all, nil
		}
		filter.Offset += len(page)
	}
}
