package port

import (
	"context"
	"time"

	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

// TicketRepository defines persistence operations for Ticket
type TicketRepository interface {
	Create(ctx context.Context, ticket *entity.Ticket) error
	GetByID(ctx context.Context, id string) (*entity.Ticket, error)
	// Update writes every mutable column of the row.
	Update(ctx context.Context, ticket *entity.Ticket) error
	// UpdateField writes one reviewer-editable column.
	UpdateField(ctx context.Context, id, column string, value interface{}) error
	UpdateStatus(ctx context.Context, id, status string) error
	List(ctx context.Context, filter entity.TicketFilter) ([]*entity.Ticket, error)
	CountByLoad(ctx context.Context, loadID string) (total int, approved int, err error)
}

// HistoryRepository defines persistence operations for TicketHistory
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.TicketHistory) error
	GetByTicketID(ctx context.Context, ticketID string) ([]*entity.TicketHistory, error)
}

// DriverPayRepository stores one pay row per ticket
type DriverPayRepository interface {
	// Upsert replaces the row for the same ticket, so recalculation is idempotent.
	Upsert(ctx context.Context, p *entity.DriverPay) error
	GetByTicketID(ctx context.Context, ticketID string) (*entity.DriverPay, error)
	ListByDriver(ctx context.Context, driverID string, from, to time.Time) ([]*entity.DriverPay, error)
}

// LoadRepository defines persistence operations for Load
type LoadRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Load, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

// ReferenceRepository looks up display data for drivers, trucks and customers
type ReferenceRepository interface {
	GetDriver(ctx context.Context, id string) (*entity.Driver, error)
	GetTruck(ctx context.Context, id string) (*entity.Truck, error)
	DriverNames(ctx context.Context, ids []string) (map[string]string, error)
	ListCustomers(ctx context.Context, organizationID string) ([]entity.Customer, error)
}

// SessionRepository defines persistence operations for Session
type SessionRepository interface {
	Create(ctx context.Context, s *entity.Session) error
	GetByToken(ctx context.Context, token string) (*entity.Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
