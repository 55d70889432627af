package util

import (
	"fmt"
	"time"
)

// TradingCalendar answers whether the trading venue is open at a given
// wall-clock instant. The window is open-inclusive, close-exclusive:
// [open, close) on weekdays. Exchange holidays are not modelled.
type TradingCalendar struct {
	loc       *time.Location
	openMins  int // minutes since midnight
	closeMins int
}

// NewTradingCalendar builds a calendar for the venue window given as
// "HH:MM" open/close strings in the named IANA time zone, e.g.
// ("09:15", "15:30", "Asia/Kolkata") for the NSE regular session.
func NewTradingCalendar(open, close, timezone string) (*TradingCalendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}
	openMins, err := parseClock(open)
	if err != nil {
		return nil, fmt.Errorf("parsing open time %q: %w", open, err)
	}
	closeMins, err := parseClock(close)
	if err != nil {
		return nil, fmt.Errorf("parsing close time %q: %w", close, err)
	}
	if closeMins <= openMins {
		return nil, fmt.Errorf("close %q is not after open %q", close, open)
	}
	return &TradingCalendar{loc: loc, openMins: openMins, closeMins: closeMins}, nil
}

// IsOpen reports whether the venue is open at time t.
func (tc *TradingCalendar) IsOpen(t time.Time) bool {
	local := t.In(tc.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	mins := local.Hour()*60 + local.Minute()
	return mins >= tc.openMins && mins < tc.closeMins
}

// NextOpen returns the next session open at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	local := t.In(tc.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tc.loc)
	for i := 0; i < 8; i++ {
		candidate := day.AddDate(0, 0, i).Add(time.Duration(tc.openMins) * time.Minute)
		switch candidate.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}
		if !candidate.Before(local) {
			return candidate
		}
	}
	return time.Time{}
}

// Status returns a human-readable market status for time t.
func (tc *TradingCalendar) Status(t time.Time) string {
	if tc.IsOpen(t) {
		return "Market Open"
	}
	return "Market Closed"
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range: %02d:%02d", h, m)
	}
	return h*60 + m, nil
}
