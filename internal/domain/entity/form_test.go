package entity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float(v float64) *float64 { return &v }

func TestTicketForm_MergeOCR_FillsBlanksOnly(t *testing.T) {
	form := &TicketForm{
		Material: "Gravel",
		Quantity: float(12),
	}
	resp := &OCRResponse{Ticket: &OCRTicket{
		PartnerName: "Acme Aggregates",
		Material:    "Sand",
		Quantity:    float(20),
		UnitType:    "tons",
		TicketDate:  "2024-06-11",
	}}

	filled := form.MergeOCR(resp)

	assert.ElementsMatch(t, []string{"customer_name", "unit", "pickup_date"}, filled)
	assert.Equal(t, "Gravel", form.Material)
	assert.Equal(t, 12.0, *form.Quantity)
	assert.Equal(t, "Acme Aggregates", form.CustomerName)
	assert.Equal(t, "tons", form.Unit)
	assert.Equal(t, "2024-06-11", form.PickupDate)
}

func TestTicketForm_MergeOCR_SkipsUnusableValues(t *testing.T) {
	form := &TicketForm{}
	filled := form.MergeOCR(&OCRResponse{Ticket: &OCRTicket{
		TicketDate: "06/12/2024",
		Quantity:   float(math.Inf(1)),
	}})

	assert.Empty(t, filled)
	assert.Empty(t, form.PickupDate)
	assert.Nil(t, form.Quantity)

	form.MergeOCR(&OCRResponse{Ticket: &OCRTicket{Quantity: float(-3)}})
	assert.Nil(t, form.Quantity)
}

func TestTicketForm_MergeOCR_WhitespaceCountsAsBlank(t *testing.T) {
	form := &TicketForm{CustomerName: "   "}
	form.MergeOCR(&OCRResponse{Ticket: &OCRTicket{PartnerName: "Acme"}})
	assert.Equal(t, "Acme", form.CustomerName)
}

func TestTicketForm_MergeOCR_NoTicketObject(t *testing.T) {
	form := &TicketForm{}
	before := *form

	assert.Nil(t, form.MergeOCR(&OCRResponse{}))
	assert.Nil(t, form.MergeOCR(nil))
	assert.Equal(t, before, *form)
}

func TestOCRTicket_Extraction(t *testing.T) {
	o := &OCRTicket{
		PartnerName:  "Acme",
		TicketNumber: "A1",
		Quantity:     float(20),
		TotalPay:     float(200),
	}

	x := o.Extraction()

	name, ok := x.String(OCRKeyCustomerName)
	require.True(t, ok)
	assert.Equal(t, "Acme", name)
	tons, ok := x.Float(OCRKeyTons)
	require.True(t, ok)
	assert.Equal(t, 20.0, tons)
	_, ok = x[OCRKeyMaterial]
	assert.False(t, ok)
}

func TestTicketForm_Apply(t *testing.T) {
	form := &TicketForm{CustomerName: "Acme", Quantity: float(3), Notes: "gate 4"}
	tk := &Ticket{}
	form.Apply(tk)
	assert.Equal(t, "Acme", tk.CustomerName)
	assert.Equal(t, 3.0, *tk.Quantity)
	assert.Equal(t, "gate 4", tk.Notes)
}
