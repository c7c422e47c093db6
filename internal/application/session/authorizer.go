package session

import (
	"context"
	"fmt"

	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/application/realtime"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

// ChannelAuthorizer admits a session to a ticket channel only when its
// organization owns the ticket. Drivers are further limited to their own tickets.
type ChannelAuthorizer struct {
	Tickets port.TicketRepository
}

// Authorize satisfies realtime.Authorizer.
func (a *ChannelAuthorizer) Authorize(ctx context.Context, channel string) error {
	s := FromContext(ctx)
	if s == nil {
		return realtime.ErrForbidden
	}

	ticketID, ok := realtime.TicketIDFromChannel(channel)
	if !ok {
		return realtime.ErrForbidden
	}

	ticket, err := a.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("failed to load ticket for channel %s: %w", channel, err)
	}
	if ticket == nil || ticket.OrganizationID != s.OrganizationID {
		return realtime.ErrForbidden
	}
	if s.Role == entity.RoleDriver && ticket.DriverID != s.UserID {
		return realtime.ErrForbidden
	}
	return nil
}
