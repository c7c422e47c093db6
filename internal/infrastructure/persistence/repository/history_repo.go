package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlite.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, h *entity.TicketHistory) error {
	query := `
		INSERT INTO ticket_history (
			ticket_id, actor_id, previous_status, new_status, action, detail, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		h.TicketID,
		h.ActorID,
		h.PreviousStatus,
		h.NewStatus,
		h.Action,
		h.Detail,
		h.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.String("ticket_id", h.TicketID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	h.ID = id
	return nil
}

// GetByTicketID retrieves all history records for a ticket, oldest first
func (r *HistoryRepository) GetByTicketID(ctx context.Context, ticketID string) ([]*entity.TicketHistory, error) {
	query := `
		SELECT id, ticket_id, actor_id, previous_status, new_status, action, detail, timestamp
		FROM ticket_history
		WHERE ticket_id = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, ticketID)
	if err != nil {
		r.logger.Error("Failed to get history by ticket ID", zap.String("ticket_id", ticketID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.TicketHistory
	for rows.Next() {
		var record entity.TicketHistory
		err := rows.Scan(
			&record.ID,
			&record.TicketID,
			&record.ActorID,
			&record.PreviousStatus,
			&record.NewStatus,
			&record.Action,
			&record.Detail,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
