package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is an in-process domain event about one ticket
type Event struct {
	ID             string                 `json:"id"`
	Type           Type                   `json:"type"`
	TicketID       string                 `json:"ticket_id"`
	OrganizationID string                 `json:"organization_id"`
	Payload        map[string]interface{} `json:"payload"`
	Timestamp      time.Time              `json:"timestamp"`
	CorrelationID  string                 `json:"correlation_id"`
}

// NewEvent stamps a fresh id, timestamp and correlation id.
func NewEvent(eventType Type, ticketID, organizationID string, payload map[string]interface{}) *Event {
	id := uuid.NewString()
	return &Event{
		ID:             id,
		Type:           eventType,
		TicketID:       ticketID,
		OrganizationID: organizationID,
		Payload:        payload,
		Timestamp:      time.Now(),
		CorrelationID:  id,
	}
}

// Caused returns a new event that shares e's correlation id.
func (e *Event) Caused(eventType Type, payload map[string]interface{}) *Event {
	next := NewEvent(eventType, e.TicketID, e.OrganizationID, payload)
	next.CorrelationID = e.CorrelationID
	return next
}

// WithPayload returns a copy of e with key set; e is not modified.
func (e *Event) WithPayload(key string, value interface{}) *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	copied := *e
	copied.Payload = payload
	return &copied
}

func (e *Event) GetPayloadString(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

// GetPayloadFloat accepts the numeric types JSON decoding and callers produce.
func (e *Event) GetPayloadFloat(key string) float64 {
	switch v := e.Payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func (e *Event) GetPayloadStrings(key string) []string {
	switch v := e.Payload[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
