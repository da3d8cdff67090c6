package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is an inclusive [Start, End] range of days.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Overlaps reports whether the two periods share at least one day.
func (p Period) Overlaps(o Period) bool {
	return p.Start.BeforeOrEqual(o.End) && o.Start.BeforeOrEqual(p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// Validate returns ErrInvalidPeriod if End is before Start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// MONTH - Accrual period
// =============================================================================

// Month identifies a calendar month. It is the unit of accrual idempotency:
// a balance row remembers the last Month it was credited for.
type Month struct {
	Year  int
	Month time.Month
}

func MonthOf(tp TimePoint) Month { return Month{Year: tp.Year(), Month: tp.Month()} }

// ParseMonth parses a YYYY-MM string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }
func (m Month) IsZero() bool   { return m.Year == 0 }

func (m Month) Start() TimePoint { return StartOfMonth(m.Year, m.Month) }
func (m Month) End() TimePoint   { return EndOfMonth(m.Year, m.Month) }

func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// =============================================================================
// QUARTER - Typed quarter dispatch for usage reads
// =============================================================================

type Quarter int

const (
	Q1 Quarter = iota + 1
	Q2
	Q3
	Q4
)

// Quarters lists the quarters of a year in order.
var Quarters = []Quarter{Q1, Q2, Q3, Q4}

func (q Quarter) String() string {
	switch q {
	case Q1:
		return "Q1"
	case Q2:
		return "Q2"
	case Q3:
		return "Q3"
	case Q4:
		return "Q4"
	default:
		return "Q?"
	}
}

// Period returns the quarter's date range within year.
func (q Quarter) Period(year int) Period {
	startMonth := time.Month(3*(int(q)-1) + 1)
	return Period{
		Start: StartOfMonth(year, startMonth),
		End:   EndOfMonth(year, startMonth+2),
	}
}
