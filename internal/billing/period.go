package billing

import (
	"fmt"
	"strings"
	"time"
)

const (
	PeriodLayout = "2006-01"
	DateLayout   = "2006-01-02"

	hoursPerDay = 24
)

// Period is a calendar month, the unit of billing.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses a strict YYYY-MM string.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(PeriodLayout) {
		return Period{}, fmt.Errorf("%w: expected YYYY-MM, got %q", ErrInvalidPeriod, s)
	}
	t, err := time.Parse(PeriodLayout, s)
	if err != nil {
		return Period{}, fmt.Errorf("%w: expected YYYY-MM, got %q", ErrInvalidPeriod, s)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Start is the first day of the month, UTC midnight.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the last day of the month, UTC midnight.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

func (p Period) Range() DateRange {
	return DateRange{From: p.Start(), To: p.End()}
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewDateRange truncates both bounds to calendar days.
func NewDateRange(from, to time.Time) DateRange {
	return DateRange{From: Day(from), To: Day(to)}
}

func (r DateRange) Empty() bool {
	return r.To.Before(r.From)
}

func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(r.From) && !d.After(r.To)
}

// Days returns the number of calendar days in the range, 0 when empty.
func (r DateRange) Days() int {
	if r.Empty() {
		return 0
	}
	return int(r.To.Sub(r.From).Hours()/hoursPerDay) + 1
}

// Hours returns the number of hourly slots the range covers.
func (r DateRange) Hours() int {
	return r.Days() * hoursPerDay
}

func (r DateRange) String() string {
	return r.From.Format(DateLayout) + ".." + r.To.Format(DateLayout)
}

// Day truncates t to its calendar day as a UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}
