package port

import (
	"context"

	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

// OCRExtractor runs ticket OCR out of process
type OCRExtractor interface {
	Extract(ctx context.Context, req entity.OCRRequest) (*entity.OCRResponse, error)
}

// Alert describes a failure operators must act on
type Alert struct {
	TicketID     string
	TicketNumber string
	Step         string
	Err          error
	Attempts     int
}

// Alerter notifies operators out of band
type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// Broadcaster publishes transient events to realtime subscribers.
// It returns the number of subscribers the event was handed to.
type Broadcaster interface {
	Broadcast(channel, event string, payload map[string]interface{}) int
}

// StatementLine is one ticket row of a pay statement
type StatementLine struct {
	Ticket *entity.Ticket
	Pay    float64
}

// Statement is a driver's pay for one pay week
type Statement struct {
	DriverID   string
	DriverName string
	WeekStart  string
	WeekEnd    string
	Lines      []StatementLine
	Total      float64
}

// StatementWriter renders a pay statement document
type StatementWriter interface {
	Write(ctx context.Context, s *Statement) ([]byte, error)
	ContentType() string
}
