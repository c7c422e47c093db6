// Package pay holds the money rules for ticket totals and driver pay.
// Non-finite inputs are treated as missing.
package pay

import (
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func toCents(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

// TotalAmount is quantity × rate rounded to cents. ok is false when either input is missing.
func TotalAmount(quantity, rate *float64) (total float64, ok bool) {
	if !finite(quantity) || !finite(rate) {
		return 0, false
	}
	return toCents(decimal.NewFromFloat(*quantity).Mul(decimal.NewFromFloat(*rate))), true
}

// ComputedPay derives a driver's pay for a ticket. The quantity is quantity_final,
// falling back to quantity, then zero. A percentage in (0, 100] scales the
// quantity × rate product; any other percentage is ignored.
func ComputedPay(quantityFinal, quantity, payRate, payPercentage *float64) float64 {
	q := decimal.Zero
	switch {
	case finite(quantityFinal):
		q = decimal.NewFromFloat(*quantityFinal)
	case finite(quantity):
		q = decimal.NewFromFloat(*quantity)
	}

	rate := decimal.Zero
	if finite(payRate) {
		rate = decimal.NewFromFloat(*payRate)
	}

	gross := q.Mul(rate)
	if finite(payPercentage) {
		pct := decimal.NewFromFloat(*payPercentage)
		if pct.IsPositive() && pct.LessThanOrEqual(hundred) {
			return toCents(gross.Mul(pct).Div(hundred))
		}
	}
	return toCents(gross)
}

// Sum adds amounts without float drift.
func Sum(amounts ...float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		if !finite(&a) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(a))
	}
	return toCents(total)
}
