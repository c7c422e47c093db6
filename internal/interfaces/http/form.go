package http

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/ticket-workflow/internal/application/service"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/pkg/utils"
)

// parseTicketForm reads the multipart ticket fields. Blank numeric fields stay nil
// so OCR can fill them later.
func parseTicketForm(c *gin.Context) (entity.TicketForm, error) {
	form := entity.TicketForm{
		CustomerName:     text(c, "customer_name"),
		Material:         text(c, "material"),
		Unit:             text(c, "unit"),
		PickupLocation:   text(c, "pickup_location"),
		DeliveryLocation: text(c, "delivery_location"),
		PickupDate:       c.PostForm("pickup_date"),
		DeliveryDate:     c.PostForm("delivery_date"),
		Notes:            text(c, "notes"),
		LoadID:           c.PostForm("load_id"),
	}

	numbers := []struct {
		name string
		dst  **float64
	}{
		{"quantity", &form.Quantity},
		{"rate", &form.Rate},
		{"odometer_start", &form.OdometerStart},
		{"odometer_end", &form.OdometerEnd},
		{"fuel_used", &form.FuelUsed},
	}
	for _, n := range numbers {
		v, err := formFloat(c.PostForm(n.name))
		if err != nil {
			return form, fmt.Errorf("%w: %s must be a number", service.ErrInvalidField, n.name)
		}
		if err := utils.ValidateNonNegative(n.name, v); err != nil {
			return form, fmt.Errorf("%w: %v", service.ErrInvalidField, err)
		}
		*n.dst = v
	}
	if form.PickupDate != "" {
		if err := utils.ValidateDate(form.PickupDate); err != nil {
			return form, fmt.Errorf("%w: pickup_date: %v", service.ErrInvalidField, err)
		}
	}
	return form, nil
}

func text(c *gin.Context, name string) string {
	return strings.TrimSpace(utils.SanitizeString(c.PostForm(name)))
}

func formFloat(raw string) (*float64, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateFinite("value", v); err != nil {
		return nil, err
	}
	return &v, nil
}
