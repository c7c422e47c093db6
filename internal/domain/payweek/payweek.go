// Package payweek computes the Friday-through-Thursday pay period that gates ticket uploads.
package payweek

import (
	"fmt"
	"time"
)

// DefaultTimezone is the canonical pay-week clock when none is configured.
const DefaultTimezone = "America/Chicago"

// Period is an inclusive pay-week window
type Period struct {
	Start time.Time `json:"week_start"`
	End   time.Time `json:"week_end"`
}

// Contains reports whether t lies inside the period, both ends inclusive.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// Window returns the pay week containing t in t's own location: Friday 00:00:00
// through the following Thursday 23:59:59.999999999.
func Window(t time.Time) Period {
	daysSinceFriday := (int(t.Weekday()) + 2) % 7
	y, m, d := t.Date()
	loc := t.Location()

	return Period{
		Start: time.Date(y, m, d-daysSinceFriday, 0, 0, 0, 0, loc),
		End:   time.Date(y, m, d-daysSinceFriday+6, 23, 59, 59, int(time.Second-time.Nanosecond), loc),
	}
}

// Gate evaluates pay weeks on one canonical clock shared by every driver
type Gate struct {
	Location *time.Location
}

// NewGate loads the named IANA timezone. An empty name selects DefaultTimezone.
func NewGate(timezone string) (*Gate, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load pay-week timezone %q: %w", timezone, err)
	}
	return &Gate{Location: loc}, nil
}

func (g *Gate) location() *time.Location {
	if g == nil || g.Location == nil {
		return time.UTC
	}
	return g.Location
}

// Current returns the pay week containing now on the canonical clock.
func (g *Gate) Current(now time.Time) Period {
	return Window(now.In(g.location()))
}

// Allows reports whether at falls inside the pay week containing now.
func (g *Gate) Allows(now, at time.Time) bool {
	return g.Current(now).Contains(at.In(g.location()))
}

// WeekOf parses a YYYY-MM-DD date on the canonical clock and returns its pay week.
func (g *Gate) WeekOf(date string) (Period, error) {
	day, err := time.ParseInLocation(time.DateOnly, date, g.location())
	if err != nil {
		return Period{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return Window(day), nil
}
