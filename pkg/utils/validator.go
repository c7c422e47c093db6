package utils

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"time"
)

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)

// ValidateDate validates a YYYY-MM-DD calendar date
func ValidateDate(s string) error {
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return fmt.Errorf("invalid date, want YYYY-MM-DD: %s", s)
	}
	return nil
}

// ValidateURL validates an absolute http(s) URL
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid url: %s", raw)
	}
	return nil
}

// ValidateFinite rejects NaN and ±Inf
func ValidateFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be a finite number", name)
	}
	return nil
}

// ValidateNonNegative validates a quantity, rate or odometer reading
func ValidateNonNegative(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if err := ValidateFinite(name, *v); err != nil {
		return err
	}
	if *v < 0 {
		return fmt.Errorf("%s must not be negative: %.2f", name, *v)
	}
	return nil
}

// SanitizeString removes control characters except tab and newline
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}
