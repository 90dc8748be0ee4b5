package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// Day truncates t to the start of its calendar day in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NextDay returns the start of the day after t's day.
func NextDay(t time.Time) time.Time {
	return Day(t).AddDate(0, 0, 1)
}

// EndOfDay returns the last instant of t's day.
func EndOfDay(t time.Time) time.Time {
	return NextDay(t).Add(-time.Nanosecond)
}

// ParseDate parses a YYYY-MM-DD operational date in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Period is an inclusive range of operational days.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewPeriod validates and normalises an inclusive day range.
func NewPeriod(start, end time.Time) (Period, error) {
	if start.IsZero() || end.IsZero() {
		return Period{}, &InvalidPeriodError{Start: start, End: end, Reason: "start and end are required"}
	}
	p := Period{Start: Day(start), End: Day(end)}
	if p.End.Before(p.Start) {
		return Period{}, &InvalidPeriodError{Start: start, End: end, Reason: "end before start"}
	}
	return p, nil
}

// Until is the exclusive upper bound of the period.
func (p Period) Until() time.Time { return NextDay(p.End) }

// Days lists every day in the period in order.
func (p Period) Days() []time.Time {
	var days []time.Time
	for d := p.Start; !d.After(p.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// MonthPeriod returns the period covering one calendar month.
func MonthPeriod(year int, month time.Month) (Period, error) {
	if month < time.January || month > time.December {
		t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return Period{}, &InvalidPeriodError{Start: t, End: t, Reason: "month out of range"}
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return NewPeriod(start, start.AddDate(0, 1, -1))
}

// money rounds a currency amount to two decimal places.
func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// safeRatio returns num/den*100 rounded to two places, or zero and false when
// den is zero.
func safeRatio(num, den decimal.Decimal) (decimal.Decimal, bool) {
	if den.IsZero() {
		return decimal.Zero, false
	}
	return num.Mul(decimal.NewFromInt(100)).DivRound(den, 2), true
}
