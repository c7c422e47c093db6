package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/persistence/sqlite"
)

// LoadRepository implements port.LoadRepository
type LoadRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewLoadRepository creates a new load repository
func NewLoadRepository(db *sqlite.DB, logger *zap.Logger) port.LoadRepository {
	return &LoadRepository{
		db:     db,
		logger: logger,
	}
}

func (r *LoadRepository) GetByID(ctx context.Context, id string) (*entity.Load, error) {
	var l entity.Load
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT id, organization_id, driver_id, status, updated_at FROM loads WHERE id = ?`, id,
	).Scan(&l.ID, &l.OrganizationID, &l.DriverID, &l.Status, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get load: %w", err)
	}
	return &l, nil
}

func (r *LoadRepository) UpdateStatus(ctx context.Context, id, status string) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE loads SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	if err != nil {
		r.logger.Error("Failed to update load status", zap.String("load_id", id), zap.Error(err))
		return fmt.Errorf("failed to update load status: %w", err)
	}
	return expectOneRow(result, "load", id)
}

// Verify interface compliance
var _ port.LoadRepository = (*LoadRepository)(nil)
