package realtime

import "strings"

// Broadcast event names carried on ticket channels
const (
	EventOCRCompleted   = "ocr_completed"
	EventTicketApproved = "ticket_approved"
	EventTicketUpdated  = "ticket_updated"

	// EventTicketSnapshot carries the cached ticket state to a client that just subscribed
	EventTicketSnapshot = "ticket_snapshot"
)

const (
	ticketChannelPrefix = "ticket:"
	ticketChannelSuffix = ":ocr"
)

// TicketChannel names the private per-ticket channel.
func TicketChannel(ticketID string) string {
	return ticketChannelPrefix + ticketID + ticketChannelSuffix
}

// TicketIDFromChannel extracts the ticket id from a ticket channel name.
func TicketIDFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, ticketChannelPrefix) || !strings.HasSuffix(channel, ticketChannelSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(channel, ticketChannelPrefix), ticketChannelSuffix)
	if id == "" || strings.Contains(id, ":") {
		return "", false
	}
	return id, true
}

// IsPrivate reports whether subscribing to channel needs authorization.
func IsPrivate(channel string) bool {
	_, ok := TicketIDFromChannel(channel)
	return ok
}
