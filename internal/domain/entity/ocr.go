package entity

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Keys of the OCR extraction bag consumed at approval
const (
	OCRKeyTons         = "tons"
	OCRKeyMaterial     = "material"
	OCRKeyPricePerTon  = "price_per_ton"
	OCRKeyTotalAmount  = "total_amount"
	OCRKeyTicketNumber = "ticket_number"
	OCRKeyCustomerName = "customer_name"
	OCRKeyPlant        = "plant"
	OCRKeyConfidence   = "confidence"
)

// OCRExtraction is the untyped field bag an extractor attaches to a ticket.
type OCRExtraction map[string]any

// String returns a trimmed non-empty string value. Numbers are formatted.
func (x OCRExtraction) String(key string) (string, bool) {
	switch v := x[key].(type) {
	case string:
		s := strings.TrimSpace(v)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case json.Number:
		return v.String(), true
	}
	return "", false
}

// Float accepts JSON numbers and numeric strings such as "20.5".
func (x OCRExtraction) Float(key string) (float64, bool) {
	f, ok := x.rawFloat(key)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (x OCRExtraction) rawFloat(key string) (float64, bool) {
	switch v := x[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(v, ",", "")), 64)
		return f, err == nil
	}
	return 0, false
}

// Merge returns a copy of x with other's keys layered on top.
func (x OCRExtraction) Merge(other OCRExtraction) OCRExtraction {
	out := make(OCRExtraction, len(x)+len(other))
	for k, v := range x {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// OCRRequest is the body sent to the OCR function.
type OCRRequest struct {
	Kind     string `json:"kind"`
	FileURL  string `json:"file_url"`
	DriverID string `json:"driverId,omitempty"`
}

// OCRResponse is the OCR function reply. Ticket is nil when nothing was recognised.
type OCRResponse struct {
	Ticket *OCRTicket `json:"ticket,omitempty"`
}

// OCRTicket holds the fields recognised on a ticket image
type OCRTicket struct {
	PartnerName   string   `json:"partner_name,omitempty"`
	TicketNumber  string   `json:"ticket_number,omitempty"`
	Material      string   `json:"material,omitempty"`
	Quantity      *float64 `json:"quantity,omitempty"`
	UnitType      string   `json:"unit_type,omitempty"`
	DriverNameOCR string   `json:"driver_name_ocr,omitempty"`
	TicketDate    string   `json:"ticket_date,omitempty"`
	TotalPay      *float64 `json:"total_pay,omitempty"`
	Status        string   `json:"status,omitempty"`
}

// Extraction converts the recognised ticket into the extraction bag keyed the way approval reads it.
func (o *OCRTicket) Extraction() OCRExtraction {
	x := OCRExtraction{}
	if o == nil {
		return x
	}
	put := func(k, v string) {
		if strings.TrimSpace(v) != "" {
			x[k] = v
		}
	}
	put(OCRKeyCustomerName, o.PartnerName)
	put(OCRKeyTicketNumber, o.TicketNumber)
	put(OCRKeyMaterial, o.Material)
	put("unit_type", o.UnitType)
	put("driver_name_ocr", o.DriverNameOCR)
	put("ticket_date", o.TicketDate)
	put("status", o.Status)
	if o.Quantity != nil {
		x[OCRKeyTons] = *o.Quantity
	}
	if o.TotalPay != nil {
		x[OCRKeyTotalAmount] = *o.TotalPay
	}
	return x
}
