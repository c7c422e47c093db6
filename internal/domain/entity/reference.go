package entity

import "time"

// Driver is looked up by id for display names
type Driver struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	Name           string `json:"name" db:"name"`
	Phone          string `json:"phone,omitempty" db:"phone"`
	Email          string `json:"email,omitempty" db:"email"`
}

// Truck is looked up by id for display names
type Truck struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	UnitNumber     string `json:"unit_number" db:"unit_number"`
	Plate          string `json:"plate,omitempty" db:"plate"`
}

type Customer struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	Name           string `json:"name" db:"name"`
}

// Load status values, advanced in order on ticket approval
const (
	LoadStatusAssigned  = "assigned"
	LoadStatusInTransit = "in_transit"
	LoadStatusDelivered = "delivered"
)

// Load groups the tickets hauled for one dispatch
type Load struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	DriverID       string    `json:"driver_id"`
	Status         string    `json:"status"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NextLoadStatus returns the status after s, or s itself once delivered.
func NextLoadStatus(s string) string {
	switch s {
	case LoadStatusAssigned:
		return LoadStatusInTransit
	case LoadStatusInTransit:
		return LoadStatusDelivered
	}
	return s
}

// DriverPay is the pay calculated for one approved ticket
type DriverPay struct {
	ID            int64     `json:"id"`
	TicketID      string    `json:"ticket_id"`
	DriverID      string    `json:"driver_id"`
	PayMethod     string    `json:"pay_method"`
	Quantity      float64   `json:"quantity"`
	PayRate       float64   `json:"pay_rate"`
	PayPercentage float64   `json:"pay_percentage"`
	Amount        float64   `json:"amount"`
	CalculatedAt  time.Time `json:"calculated_at"`
}
