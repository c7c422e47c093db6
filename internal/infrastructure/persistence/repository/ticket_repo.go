package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/persistence/sqlite"
)

const ticketColumns = `
	id, ticket_number, organization_id, driver_id, truck_id, load_id,
	customer_name, plant_name, material, quantity, quantity_final, unit, rate,
	total_amount, pay_method, pay_rate, pay_percentage, pickup_location,
	delivery_location, pickup_date, delivery_date, odometer_start, odometer_end,
	fuel_used, notes, image_path, status, ocr_extraction, created_at, updated_at,
	approved_at`

// editableColumns are the columns UpdateField may write
var editableColumns = map[string]bool{
	"quantity_final": true,
	"pay_method":     true,
	"pay_rate":       true,
	"pay_percentage": true,
	"notes":          true,
}

// TicketRepository implements port.TicketRepository
type TicketRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewTicketRepository creates a new ticket repository
func NewTicketRepository(db *sqlite.DB, logger *zap.Logger) port.TicketRepository {
	return &TicketRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new ticket row
func (r *TicketRepository) Create(ctx context.Context, t *entity.Ticket) error {
	ocr, err := encodeExtraction(t.OCR)
	if err != nil {
		return err
	}

	query := `INSERT INTO tickets (` + ticketColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		t.ID, t.TicketNumber, t.OrganizationID, t.DriverID, t.TruckID, t.LoadID,
		t.CustomerName, t.PlantName, t.Material, nullFloat(t.Quantity), nullFloat(t.QuantityFinal), t.Unit, nullFloat(t.Rate),
		nullFloat(t.TotalAmount), t.PayMethod, nullFloat(t.PayRate), nullFloat(t.PayPercentage), t.PickupLocation,
		t.DeliveryLocation, t.PickupDate, t.DeliveryDate, nullFloat(t.OdometerStart), nullFloat(t.OdometerEnd),
		nullFloat(t.FuelUsed), t.Notes, t.ImagePath, t.Status, ocr, t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
		nullTime(t.ApprovedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create ticket", zap.String("ticket_id", t.ID), zap.Error(err))
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// GetByID returns nil, nil when the ticket does not exist
func (r *TicketRepository) GetByID(ctx context.Context, id string) (*entity.Ticket, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get ticket", zap.String("ticket_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

// Update writes every mutable column
func (r *TicketRepository) Update(ctx context.Context, t *entity.Ticket) error {
	ocr, err := encodeExtraction(t.OCR)
	if err != nil {
		return err
	}

	query := `
		UPDATE tickets SET
			ticket_number = ?, truck_id = ?, load_id = ?, customer_name = ?, plant_name = ?,
			material = ?, quantity = ?, quantity_final = ?, unit = ?, rate = ?, total_amount = ?,
			pay_method = ?, pay_rate = ?, pay_percentage = ?, pickup_location = ?,
			delivery_location = ?, pickup_date = ?, delivery_date = ?, odometer_start = ?,
			odometer_end = ?, fuel_used = ?, notes = ?, image_path = ?, status = ?,
			ocr_extraction = ?, updated_at = ?, approved_at = ?
		WHERE id = ?
	`
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		t.TicketNumber, t.TruckID, t.LoadID, t.CustomerName, t.PlantName,
		t.Material, nullFloat(t.Quantity), nullFloat(t.QuantityFinal), t.Unit, nullFloat(t.Rate), nullFloat(t.TotalAmount),
		t.PayMethod, nullFloat(t.PayRate), nullFloat(t.PayPercentage), t.PickupLocation,
		t.DeliveryLocation, t.PickupDate, t.DeliveryDate, nullFloat(t.OdometerStart),
		nullFloat(t.OdometerEnd), nullFloat(t.FuelUsed), t.Notes, t.ImagePath, t.Status,
		ocr, t.UpdatedAt.UTC(), nullTime(t.ApprovedAt),
		t.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update ticket", zap.String("ticket_id", t.ID), zap.Error(err))
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	return expectOneRow(result, "ticket", t.ID)
}

// UpdateField writes one reviewer-editable column. Numeric values arrive as *float64.
func (r *TicketRepository) UpdateField(ctx context.Context, id, column string, value interface{}) error {
	if !editableColumns[column] {
		return fmt.Errorf("column %q is not editable", column)
	}
	if f, ok := value.(*float64); ok {
		value = nullFloat(f)
	}

	query := `UPDATE tickets SET ` + column + ` = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, value, id)
	if err != nil {
		r.logger.Error("Failed to update ticket field", zap.String("ticket_id", id), zap.String("column", column), zap.Error(err))
		return fmt.Errorf("failed to update %s: %w", column, err)
	}
	return expectOneRow(result, "ticket", id)
}

// UpdateStatus updates the ticket status
func (r *TicketRepository) UpdateStatus(ctx context.Context, id, status string) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE tickets SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	if err != nil {
		r.logger.Error("Failed to update ticket status", zap.String("ticket_id", id), zap.Error(err))
		return fmt.Errorf("failed to update status: %w", err)
	}
	return expectOneRow(result, "ticket", id)
}

// List returns tickets matching the filter, newest first
func (r *TicketRepository) List(ctx context.Context, f entity.TicketFilter) ([]*entity.Ticket, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.OrganizationID != "" {
		where = append(where, "organization_id = ?")
		args = append(args, f.OrganizationID)
	}
	if f.DriverID != "" {
		where = append(where, "driver_id = ?")
		args = append(args, f.DriverID)
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN (?"+strings.Repeat(", ?", len(f.Statuses)-1)+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "created_at <= ?")
		args = append(args, f.To.UTC())
	}
	if f.WorkFrom != nil {
		where = append(where, "(CASE WHEN pickup_date <> '' THEN pickup_date >= ? ELSE created_at >= ? END)")
		args = append(args, f.WorkFrom.Format(time.DateOnly), f.WorkFrom.UTC())
	}
	if f.WorkTo != nil {
		where = append(where, "(CASE WHEN pickup_date <> '' THEN pickup_date <= ? ELSE created_at <= ? END)")
		args = append(args, f.WorkTo.Format(time.DateOnly), f.WorkTo.UTC())
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list tickets", zap.Error(err))
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*entity.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// CountByLoad counts the live tickets on a load and how many of them are approved or later
func (r *TicketRepository) CountByLoad(ctx context.Context, loadID string) (int, int, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status IN ('approved', 'invoiced', 'paid') THEN 1 ELSE 0 END), 0)
		FROM tickets
		WHERE load_id = ? AND status != 'cancelled'
	`
	var total, approved int
	if err := r.db.Executor(ctx).QueryRowContext(ctx, query, loadID).Scan(&total, &approved); err != nil {
		return 0, 0, fmt.Errorf("failed to count load tickets: %w", err)
	}
	return total, approved, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(s rowScanner) (*entity.Ticket, error) {
	var (
		t                                       entity.Ticket
		quantity, quantityFinal, rate, total    sql.NullFloat64
		payRate, payPct, odoStart, odoEnd, fuel sql.NullFloat64
		ocr                                     string
		approvedAt                              sql.NullTime
	)
	err := s.Scan(
		&t.ID, &t.TicketNumber, &t.OrganizationID, &t.DriverID, &t.TruckID, &t.LoadID,
		&t.CustomerName, &t.PlantName, &t.Material, &quantity, &quantityFinal, &t.Unit, &rate,
		&total, &t.PayMethod, &payRate, &payPct, &t.PickupLocation,
		&t.DeliveryLocation, &t.PickupDate, &t.DeliveryDate, &odoStart, &odoEnd,
		&fuel, &t.Notes, &t.ImagePath, &t.Status, &ocr, &t.CreatedAt, &t.UpdatedAt,
		&approvedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Quantity = floatPtr(quantity)
	t.QuantityFinal = floatPtr(quantityFinal)
	t.Rate = floatPtr(rate)
	t.TotalAmount = floatPtr(total)
	t.PayRate = floatPtr(payRate)
	t.PayPercentage = floatPtr(payPct)
	t.OdometerStart = floatPtr(odoStart)
	t.OdometerEnd = floatPtr(odoEnd)
	t.FuelUsed = floatPtr(fuel)
	t.ApprovedAt = timePtr(approvedAt)
	if t.OCR, err = decodeExtraction(ocr); err != nil {
		return nil, err
	}
	return &t, nil
}

func expectOneRow(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", kind, id)
	}
	return nil
}

// Verify interface compliance
var _ port.TicketRepository = (*TicketRepository)(nil)
