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

// SessionRepository implements port.SessionRepository
type SessionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sqlite.DB, logger *zap.Logger) port.SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *SessionRepository) Create(ctx context.Context, s *entity.Session) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, organization_id, role, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.Token, s.UserID, s.OrganizationID, s.Role, s.ExpiresAt.UTC(), s.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create session", zap.String("user_id", s.UserID), zap.Error(err))
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByToken returns nil, nil for an unknown token
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*entity.Session, error) {
	var s entity.Session
	err := r.db.Executor(ctx).QueryRowContext(ctx, `
		SELECT token, user_id, organization_id, role, expires_at, created_at
		FROM sessions WHERE token = ?`, token,
	).Scan(&s.Token, &s.UserID, &s.OrganizationID, &s.Role, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// Verify interface compliance
var _ port.SessionRepository = (*SessionRepository)(nil)
