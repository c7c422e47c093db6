package entity

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTicketNumber(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"last eight digits", time.UnixMilli(1718200000123), "TKT-00000123"},
		{"full eight digits", time.UnixMilli(1718212345678), "TKT-12345678"},
		{"zero padded", time.UnixMilli(42), "TKT-00000042"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewTicketNumber(tt.now))
		})
	}
}

func TestNewTicketNumber_Shape(t *testing.T) {
	got := NewTicketNumber(time.Now())
	require.True(t, strings.HasPrefix(got, "TKT-"))
	assert.Len(t, strings.TrimPrefix(got, "TKT-"), 8)
}

func TestTicket_ApplyApprovalFields(t *testing.T) {
	tk := &Ticket{
		TicketNumber: "TKT-00000001",
		OCR: OCRExtraction{
			"tons":          20.0,
			"material":      "Sand",
			"price_per_ton": 10.0,
			"total_amount":  200.0,
			"ticket_number": "A1",
			"customer_name": "Acme",
			"plant":         "Plant 3",
			"confidence":    0.91,
		},
	}

	copied := tk.ApplyApprovalFields()

	assert.ElementsMatch(t, []string{
		"quantity", "material", "rate", "total_amount", "ticket_number", "customer_name", "plant_name",
	}, copied)
	require.NotNil(t, tk.Quantity)
	assert.Equal(t, 20.0, *tk.Quantity)
	assert.Equal(t, "Sand", tk.Material)
	assert.Equal(t, 10.0, *tk.Rate)
	assert.Equal(t, 200.0, *tk.TotalAmount)
	assert.Equal(t, "A1", tk.TicketNumber)
	assert.Equal(t, "Acme", tk.CustomerName)
	assert.Equal(t, "Plant 3", tk.PlantName)
}

func TestTicket_ApplyApprovalFields_PartialExtraction(t *testing.T) {
	qty := 7.0
	tk := &Ticket{
		Material: "Gravel",
		Quantity: &qty,
		OCR:      OCRExtraction{"customer_name": "Acme", "material": "  "},
	}

	copied := tk.ApplyApprovalFields()

	assert.Equal(t, []string{"customer_name"}, copied)
	assert.Equal(t, "Gravel", tk.Material)
	assert.Equal(t, 7.0, *tk.Quantity)
}

func TestTicket_ApplyApprovalFields_NoExtraction(t *testing.T) {
	tk := &Ticket{Material: "Gravel"}
	assert.Nil(t, tk.ApplyApprovalFields())
	assert.Equal(t, "Gravel", tk.Material)
}

func TestOCRExtraction_Float(t *testing.T) {
	x := OCRExtraction{"a": 1.5, "b": "1,250.5", "c": "n/a", "d": 3}

	v, ok := x.Float("a")
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	v, ok = x.Float("b")
	assert.True(t, ok)
	assert.Equal(t, 1250.5, v)

	_, ok = x.Float("c")
	assert.False(t, ok)

	v, ok = x.Float("d")
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)

	_, ok = x.Float("missing")
	assert.False(t, ok)

	for _, raw := range []interface{}{"Inf", "+Inf", "NaN", math.Inf(-1)} {
		_, ok = OCRExtraction{"tons": raw}.Float("tons")
		assert.False(t, ok, "%v", raw)
	}
}

func TestNextLoadStatus(t *testing.T) {
	assert.Equal(t, LoadStatusInTransit, NextLoadStatus(LoadStatusAssigned))
	assert.Equal(t, LoadStatusDelivered, NextLoadStatus(LoadStatusInTransit))
	assert.Equal(t, LoadStatusDelivered, NextLoadStatus(LoadStatusDelivered))
}

func TestSession_Expired(t *testing.T) {
	now := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Minute)))
}
