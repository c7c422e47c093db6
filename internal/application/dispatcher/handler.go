package dispatcher

import (
	"context"

	"github.com/garyjia/ticket-workflow/internal/domain/event"
)

// Handler processes one domain event
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a registered handler
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}

// AnyType registers a handler for every event type
const AnyType event.Type = "*"
