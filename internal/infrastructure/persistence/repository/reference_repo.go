package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

// ReferenceRepository reads drivers, trucks and customers. The rows are
// maintained outside this service, so reads never join a ticket transaction.
type ReferenceRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewReferenceRepository wraps an open sqlite handle with sqlx
func NewReferenceRepository(db *sql.DB, logger *zap.Logger) port.ReferenceRepository {
	return &ReferenceRepository{
		db:     sqlx.NewDb(db, "sqlite3"),
		logger: logger,
	}
}

func (r *ReferenceRepository) GetDriver(ctx context.Context, id string) (*entity.Driver, error) {
	var d entity.Driver
	err := r.db.GetContext(ctx, &d, `SELECT id, organization_id, name, phone, email FROM drivers WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get driver: %w", err)
	}
	return &d, nil
}

func (r *ReferenceRepository) GetTruck(ctx context.Context, id string) (*entity.Truck, error) {
	var t entity.Truck
	err := r.db.GetContext(ctx, &t, `SELECT id, organization_id, unit_number, plate FROM trucks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get truck: %w", err)
	}
	return &t, nil
}

// DriverNames maps driver id to display name; unknown ids are absent.
func (r *ReferenceRepository) DriverNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := map[string]string{}
	ids = uniqueNonEmpty(ids)
	if len(ids) == 0 {
		return names, nil
	}

	query, args, err := sqlx.In(`SELECT id, name FROM drivers WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build driver query: %w", err)
	}

	var rows []entity.Driver
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to load driver names", zap.Int("count", len(ids)), zap.Error(err))
		return nil, fmt.Errorf("failed to load driver names: %w", err)
	}
	for _, d := range rows {
		names[d.ID] = d.Name
	}
	return names, nil
}

func (r *ReferenceRepository) ListCustomers(ctx context.Context, organizationID string) ([]entity.Customer, error) {
	var customers []entity.Customer
	err := r.db.SelectContext(ctx, &customers,
		`SELECT id, organization_id, name FROM customers WHERE organization_id = ? ORDER BY name`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, nil
}

func uniqueNonEmpty(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Verify interface compliance
var _ port.ReferenceRepository = (*ReferenceRepository)(nil)
