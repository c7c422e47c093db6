package entity

import (
	"fmt"
	"time"
)

// Ticket is a haul ticket: one load of material delivered by a driver
type Ticket struct {
	ID               string        `json:"id"`
	TicketNumber     string        `json:"ticket_number"`
	OrganizationID   string        `json:"organization_id"`
	DriverID         string        `json:"driver_id"`
	TruckID          string        `json:"truck_id,omitempty"`
	LoadID           string        `json:"load_id,omitempty"`
	CustomerName     string        `json:"customer_name,omitempty"`
	PlantName        string        `json:"plant_name,omitempty"`
	Material         string        `json:"material,omitempty"`
	Quantity         *float64      `json:"quantity,omitempty"`
	QuantityFinal    *float64      `json:"quantity_final,omitempty"`
	Unit             string        `json:"unit,omitempty"`
	Rate             *float64      `json:"rate,omitempty"`
	TotalAmount      *float64      `json:"total_amount,omitempty"`
	PayMethod        string        `json:"pay_method,omitempty"`
	PayRate          *float64      `json:"pay_rate,omitempty"`
	PayPercentage    *float64      `json:"pay_percentage,omitempty"`
	PickupLocation   string        `json:"pickup_location,omitempty"`
	DeliveryLocation string        `json:"delivery_location,omitempty"`
	PickupDate       string        `json:"pickup_date,omitempty"`
	DeliveryDate     string        `json:"delivery_date,omitempty"`
	OdometerStart    *float64      `json:"odometer_start,omitempty"`
	OdometerEnd      *float64      `json:"odometer_end,omitempty"`
	FuelUsed         *float64      `json:"fuel_used,omitempty"`
	Notes            string        `json:"notes,omitempty"`
	ImagePath        string        `json:"image_path,omitempty"`
	Status           string        `json:"status"`
	OCR              OCRExtraction `json:"ocr_extraction,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	ApprovedAt       *time.Time    `json:"approved_at,omitempty"`
}

// NewTicketNumber is "TKT-" followed by the last eight digits of now in epoch milliseconds.
// Numbers are not checked for uniqueness.
func NewTicketNumber(now time.Time) string {
	return fmt.Sprintf("TKT-%08d", now.UnixMilli()%100_000_000)
}

// ApplyApprovalFields copies the approval subset of the OCR extraction onto the ticket.
// Keys absent from the extraction leave the ticket untouched. Returns the copied columns.
func (t *Ticket) ApplyApprovalFields() []string {
	if len(t.OCR) == 0 {
		return nil
	}

	var copied []string
	if v, ok := t.OCR.Float(OCRKeyTons); ok {
		t.Quantity = &v
		copied = append(copied, "quantity")
	}
	if v, ok := t.OCR.String(OCRKeyMaterial); ok {
		t.Material = v
		copied = append(copied, "material")
	}
	if v, ok := t.OCR.Float(OCRKeyPricePerTon); ok {
		t.Rate = &v
		copied = append(copied, "rate")
	}
	if v, ok := t.OCR.Float(OCRKeyTotalAmount); ok {
		t.TotalAmount = &v
		copied = append(copied, "total_amount")
	}
	if v, ok := t.OCR.String(OCRKeyTicketNumber); ok {
		t.TicketNumber = v
		copied = append(copied, "ticket_number")
	}
	if v, ok := t.OCR.String(OCRKeyCustomerName); ok {
		t.CustomerName = v
		copied = append(copied, "customer_name")
	}
	if v, ok := t.OCR.String(OCRKeyPlant); ok {
		t.PlantName = v
		copied = append(copied, "plant_name")
	}
	return copied
}

// TicketFilter narrows ticket list queries. Zero values match everything.
type TicketFilter struct {
	OrganizationID string
	DriverID       string
	Statuses       []string
	From           *time.Time
	To             *time.Time
	// WorkFrom and WorkTo bound the work date, inclusive: the pickup date
	// when one was recorded, otherwise the creation time.
	WorkFrom *time.Time
	WorkTo   *time.Time
	Limit    int
	Offset   int
}

// WorkedWithin reports whether the ticket's work date lies in [from, to].
// Pickup dates compare as calendar days in from's and to's own locations.
func (t *Ticket) WorkedWithin(from, to *time.Time) bool {
	if t.PickupDate != "" {
		if from != nil && t.PickupDate < from.Format(time.DateOnly) {
			return false
		}
		return to == nil || t.PickupDate <= to.Format(time.DateOnly)
	}
	if from != nil && t.CreatedAt.Before(*from) {
		return false
	}
	return to == nil || !t.CreatedAt.After(*to)
}
