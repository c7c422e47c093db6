package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/persistence/sqlite"
)

// DriverPayRepository implements port.DriverPayRepository
type DriverPayRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDriverPayRepository creates a new driver pay repository
func NewDriverPayRepository(db *sqlite.DB, logger *zap.Logger) port.DriverPayRepository {
	return &DriverPayRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts the pay row for a ticket or replaces the existing one
func (r *DriverPayRepository) Upsert(ctx context.Context, p *entity.DriverPay) error {
	query := `
		INSERT INTO driver_pay (
			ticket_id, driver_id, pay_method, quantity, pay_rate, pay_percentage, amount, calculated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticket_id) DO UPDATE SET
			driver_id = excluded.driver_id,
			pay_method = excluded.pay_method,
			quantity = excluded.quantity,
			pay_rate = excluded.pay_rate,
			pay_percentage = excluded.pay_percentage,
			amount = excluded.amount,
			calculated_at = excluded.calculated_at
		RETURNING id
	`

	err := r.db.Executor(ctx).QueryRowContext(ctx, query,
		p.TicketID, p.DriverID, p.PayMethod, p.Quantity, p.PayRate, p.PayPercentage, p.Amount, p.CalculatedAt.UTC(),
	).Scan(&p.ID)
	if err != nil {
		r.logger.Error("Failed to upsert driver pay", zap.String("ticket_id", p.TicketID), zap.Error(err))
		return fmt.Errorf("failed to upsert driver pay: %w", err)
	}
	return nil
}

// GetByTicketID returns nil, nil when no pay has been calculated
func (r *DriverPayRepository) GetByTicketID(ctx context.Context, ticketID string) (*entity.DriverPay, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx, `
		SELECT id, ticket_id, driver_id, pay_method, quantity, pay_rate, pay_percentage, amount, calculated_at
		FROM driver_pay WHERE ticket_id = ?`, ticketID)

	p, err := scanDriverPay(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get driver pay: %w", err)
	}
	return p, nil
}

// ListByDriver returns pay rows calculated within [from, to]
func (r *DriverPayRepository) ListByDriver(ctx context.Context, driverID string, from, to time.Time) ([]*entity.DriverPay, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT id, ticket_id, driver_id, pay_method, quantity, pay_rate, pay_percentage, amount, calculated_at
		FROM driver_pay
		WHERE driver_id = ? AND calculated_at >= ? AND calculated_at <= ?
		ORDER BY calculated_at ASC`, driverID, from.UTC(), to.UTC())
	if err != nil {
		r.logger.Error("Failed to list driver pay", zap.String("driver_id", driverID), zap.Error(err))
		return nil, fmt.Errorf("failed to list driver pay: %w", err)
	}
	defer rows.Close()

	var out []*entity.DriverPay
	for rows.Next() {
		p, err := scanDriverPay(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan driver pay: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanDriverPay(s rowScanner) (*entity.DriverPay, error) {
	var p entity.DriverPay
	if err := s.Scan(&p.ID, &p.TicketID, &p.DriverID, &p.PayMethod, &p.Quantity, &p.PayRate,
		&p.PayPercentage, &p.Amount, &p.CalculatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Verify interface compliance
var _ port.DriverPayRepository = (*DriverPayRepository)(nil)
