package entity

import (
	"math"
	"strings"
	"time"
)

// TicketForm carries the fields a driver or dispatcher enters when creating a ticket
type TicketForm struct {
	CustomerName     string   `json:"customer_name" form:"customer_name"`
	Material         string   `json:"material" form:"material"`
	Quantity         *float64 `json:"quantity" form:"quantity"`
	Unit             string   `json:"unit" form:"unit"`
	Rate             *float64 `json:"rate" form:"rate"`
	PickupLocation   string   `json:"pickup_location" form:"pickup_location"`
	DeliveryLocation string   `json:"delivery_location" form:"delivery_location"`
	PickupDate       string   `json:"pickup_date" form:"pickup_date"`
	DeliveryDate     string   `json:"delivery_date" form:"delivery_date"`
	OdometerStart    *float64 `json:"odometer_start" form:"odometer_start"`
	OdometerEnd      *float64 `json:"odometer_end" form:"odometer_end"`
	FuelUsed         *float64 `json:"fuel_used" form:"fuel_used"`
	Notes            string   `json:"notes" form:"notes"`
	LoadID           string   `json:"load_id" form:"load_id"`
}

// MergeOCR fills blank form fields from the OCR response and never overwrites
// a value the user entered. It is a no-op when resp has no ticket object.
// An OCR date is only taken in YYYY-MM-DD form and a quantity only when it is
// a finite non-negative number. The names of the filled fields are returned.
func (f *TicketForm) MergeOCR(resp *OCRResponse) []string {
	if resp == nil || resp.Ticket == nil {
		return nil
	}
	o := resp.Ticket

	var filled []string
	fillString := func(name string, dst *string, v string) {
		if strings.TrimSpace(*dst) == "" && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
			filled = append(filled, name)
		}
	}
	fillString("customer_name", &f.CustomerName, o.PartnerName)
	fillString("material", &f.Material, o.Material)
	fillString("unit", &f.Unit, o.UnitType)
	if _, err := time.Parse(time.DateOnly, strings.TrimSpace(o.TicketDate)); err == nil {
		fillString("pickup_date", &f.PickupDate, o.TicketDate)
	}

	if f.Quantity == nil && o.Quantity != nil && validQuantity(*o.Quantity) {
		q := *o.Quantity
		f.Quantity = &q
		filled = append(filled, "quantity")
	}
	return filled
}

func validQuantity(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Apply copies the form onto a ticket row.
func (f *TicketForm) Apply(t *Ticket) {
	t.CustomerName = f.CustomerName
	t.Material = f.Material
	t.Quantity = f.Quantity
	t.Unit = f.Unit
	t.Rate = f.Rate
	t.PickupLocation = f.PickupLocation
	t.DeliveryLocation = f.DeliveryLocation
	t.PickupDate = f.PickupDate
	t.DeliveryDate = f.DeliveryDate
	t.OdometerStart = f.OdometerStart
	t.OdometerEnd = f.OdometerEnd
	t.FuelUsed = f.FuelUsed
	t.Notes = f.Notes
	t.LoadID = f.LoadID
}

// FormFromTicket returns the form view of a saved ticket.
func FormFromTicket(t *Ticket) TicketForm {
	return TicketForm{
		CustomerName:     t.CustomerName,
		Material:         t.Material,
		Quantity:         t.Quantity,
		Unit:             t.Unit,
		Rate:             t.Rate,
		PickupLocation:   t.PickupLocation,
		DeliveryLocation: t.DeliveryLocation,
		PickupDate:       t.PickupDate,
		DeliveryDate:     t.DeliveryDate,
		OdometerStart:    t.OdometerStart,
		OdometerEnd:      t.OdometerEnd,
		FuelUsed:         t.FuelUsed,
		Notes:            t.Notes,
		LoadID:           t.LoadID,
	}
}
