package event

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"ticket created", TypeTicketCreated, true},
		{"ticket approved", TypeTicketApproved, true},
		{"status changed", TypeStatusChanged, true},
		{"driver pay", TypeDriverPayPosted, true},
		{"realtime event name is not a domain type", Type("ocr_completed"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eventType.IsValid())
		})
	}
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeTicketCreated, "t-1", "org-1", map[string]interface{}{"ticket_number": "TKT-00000001"})

	_, err := uuid.Parse(evt.ID)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, evt.CorrelationID)
	assert.Equal(t, "t-1", evt.TicketID)
	assert.Equal(t, "org-1", evt.OrganizationID)
	assert.False(t, evt.Timestamp.IsZero())
	assert.Equal(t, "TKT-00000001", evt.GetPayloadString("ticket_number"))
}

func TestEvent_Caused(t *testing.T) {
	root := NewEvent(TypeTicketApproved, "t-1", "org-1", nil)
	child := root.Caused(TypeDriverPayPosted, map[string]interface{}{"amount": 25.0})

	assert.NotEqual(t, root.ID, child.ID)
	assert.Equal(t, root.CorrelationID, child.CorrelationID)
	assert.Equal(t, "t-1", child.TicketID)
	assert.Equal(t, 25.0, child.GetPayloadFloat("amount"))
}

func TestEvent_WithPayloadIsImmutable(t *testing.T) {
	original := NewEvent(TypeFieldUpdated, "t-1", "org-1", map[string]interface{}{"field": "notes"})
	updated := original.WithPayload("value", "late")

	assert.Equal(t, "", original.GetPayloadString("value"))
	assert.Equal(t, "late", updated.GetPayloadString("value"))
	assert.Equal(t, "notes", updated.GetPayloadString("field"))
	assert.Equal(t, original.ID, updated.ID)
}

func TestEvent_PayloadAccessors(t *testing.T) {
	evt := NewEvent(TypeOCRCompleted, "t-1", "org-1", map[string]interface{}{
		"count":  3,
		"fields": []interface{}{"material", 7, "tons"},
		"name":   42,
	})

	assert.Equal(t, 3.0, evt.GetPayloadFloat("count"))
	assert.Equal(t, []string{"material", "tons"}, evt.GetPayloadStrings("fields"))
	assert.Equal(t, "", evt.GetPayloadString("name"))
	assert.Nil(t, evt.GetPayloadStrings("missing"))
}
