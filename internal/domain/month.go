package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Month is a calendar billing month.
type Month struct {
	Year  int
	Month time.Month
}

// NewMonth validates year and month (1-12).
func NewMonth(year, month int) (Month, error) {
	if month < 1 || month > 12 || year < 1 {
		return Month{}, fmt.Errorf("%w: %04d-%02d", ErrInvalidMonth, year, month)
	}
	return Month{Year: year, Month: time.Month(month)}, nil
}

// ParseMonth parses a YYYY-MM string.
func ParseMonth(s string) (Month, error) {
	y, m, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	month, err := strconv.Atoi(m)
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return NewMonth(year, month)
}

// PreviousMonth returns the month before the one containing t.
func PreviousMonth(t time.Time) Month {
	if t.Month() == time.January {
		return Month{Year: t.Year() - 1, Month: time.December}
	}
	return Month{Year: t.Year(), Month: t.Month() - 1}
}

// String formats the month as YYYY-MM.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// FirstDay returns midnight UTC on the first day of the month.
func (m Month) FirstDay() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Window returns the half-open billing interval [first day, first day of next month).
func (m Month) Window() Window {
	start := m.FirstDay()
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// Window is a half-open [Start, End) date interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of whole days in the window.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours() / 24)
}
