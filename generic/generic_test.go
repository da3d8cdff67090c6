package generic

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// AMOUNT
// =============================================================================

func TestAmount_DecimalPrecision(t *testing.T) {
	// 3 - 0.9 must be exactly 2.1; float arithmetic would drift.
	got := Days(3).Sub(Days(0.9))
	assert.True(t, got.Equal(Days(2.1)), "got %s", got)

	half := Days(0.5)
	sum := ZeroDays()
	for i := 0; i < 7; i++ {
		sum = sum.Add(half)
	}
	assert.True(t, sum.Equal(Days(3.5)))
	assert.Equal(t, 3.5, sum.Float())
}

func TestAmount_ClampMinMax(t *testing.T) {
	assert.True(t, Days(-2).ClampZero().IsZero())
	assert.True(t, Days(2).ClampZero().Equal(Days(2)))
	assert.True(t, Days(4).Min(Days(10)).Equal(Days(4)))
	assert.True(t, Days(4).Max(Days(10)).Equal(Days(10)))
}

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("2.5", UnitDays)
	require.NoError(t, err)
	assert.True(t, a.Equal(Days(2.5)))

	_, err = ParseAmount("two", UnitDays)
	assert.Error(t, err)
}

// =============================================================================
// DATES AND PERIODS
// =============================================================================

func TestDayOf_TruncatesToUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	tp := DayOf(time.Date(2025, time.March, 5, 2, 0, 0, 0, loc))
	assert.Equal(t, "2025-03-04", tp.String())
}

func TestPeriod(t *testing.T) {
	p := Period{Start: NewTimePoint(2025, time.March, 7), End: NewTimePoint(2025, time.March, 10)}

	assert.Len(t, p.Days(), 4)
	assert.True(t, p.Contains(NewTimePoint(2025, time.March, 10)))
	assert.False(t, p.Contains(NewTimePoint(2025, time.March, 11)))
	assert.NoError(t, p.Validate())

	other := Period{Start: NewTimePoint(2025, time.March, 10), End: NewTimePoint(2025, time.March, 12)}
	assert.True(t, p.Overlaps(other))
	other.Start = NewTimePoint(2025, time.March, 11)
	assert.False(t, p.Overlaps(other))

	inverted := Period{Start: p.End, End: p.Start}
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidPeriod)
	assert.True(t, IsClientError(inverted.Validate()))
}

func TestMonth(t *testing.T) {
	m, err := ParseMonth("2024-02")
	require.NoError(t, err)
	assert.Equal(t, "2024-02", m.String())
	assert.Equal(t, "2024-02-29", m.End().String())
	assert.True(t, m.Before(Month{Year: 2024, Month: time.March}))
	assert.True(t, Month{Year: 2023, Month: time.December}.Before(m))
	assert.False(t, m.Before(m))

	_, err = ParseMonth("2024-2")
	assert.Error(t, err)
}

func TestQuarter_Periods(t *testing.T) {
	tests := []struct {
		quarter    Quarter
		start, end string
	}{
		{Q1, "2024-01-01", "2024-03-31"},
		{Q2, "2024-04-01", "2024-06-30"},
		{Q3, "2024-07-01", "2024-09-30"},
		{Q4, "2024-10-01", "2024-12-31"},
	}
	require.Len(t, Quarters, len(tests))
	for i, tt := range tests {
		t.Run(tt.quarter.String(), func(t *testing.T) {
			assert.Equal(t, tt.quarter, Quarters[i])
			p := tt.quarter.Period(2024)
			assert.Equal(t, tt.start, p.Start.String())
			assert.Equal(t, tt.end, p.End.String())
		})
	}

	// Adjacent quarters tile the year without gaps or overlap.
	for i := 1; i < len(Quarters); i++ {
		prev, cur := Quarters[i-1].Period(2024), Quarters[i].Period(2024)
		assert.False(t, prev.Overlaps(cur))
		assert.True(t, prev.End.AddDays(1).Equal(cur.Start))
	}
}

func TestHolidayCalendar(t *testing.T) {
	cal := &HolidayCalendar{Holidays: []Holiday{
		{ID: "xmas", Date: NewTimePoint(2020, time.December, 25), Recurring: true},
		{ID: "once", Date: NewTimePoint(2025, time.March, 12)},
	}}

	assert.False(t, cal.IsWorkingDay(NewTimePoint(2025, time.December, 25)), "recurring holiday")
	assert.False(t, cal.IsWorkingDay(NewTimePoint(2025, time.March, 12)), "one-off holiday")
	assert.True(t, cal.IsWorkingDay(NewTimePoint(2026, time.March, 12)), "one-off holiday does not recur")
	assert.False(t, cal.IsWorkingDay(NewTimePoint(2025, time.March, 8)), "saturday")
	assert.True(t, WeekendCalendar{}.IsWorkingDay(NewTimePoint(2025, time.March, 10)))
}

// =============================================================================
// ERRORS AND RETRY
// =============================================================================

func TestErrorTaxonomy(t *testing.T) {
	verr := Invalid("lop_days", "exceeds days_count")
	assert.ErrorIs(t, verr, ErrValidation)
	assert.Contains(t, verr.Error(), "lop_days")
	assert.True(t, IsClientError(fmt.Errorf("wrap: %w", verr)))

	terr := &TransitionError{From: "withdrawn", To: "approved"}
	assert.ErrorIs(t, terr, ErrInvalidTransition)
	assert.False(t, IsClientError(terr))

	nf := &NotFoundError{Kind: "employee", ID: "emp-1"}
	assert.True(t, IsNotFound(nf))
	assert.Equal(t, "employee not found: emp-1", nf.Error())

	assert.True(t, IsRetryable(fmt.Errorf("save: %w", ErrConcurrentModification)))
}

func TestRetry(t *testing.T) {
	policy := RetryPolicy{Attempts: 3}

	t.Run("succeeds after conflicts", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), policy, func() error {
			calls++
			if calls < 3 {
				return ErrConcurrentModification
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("non-retryable error returns immediately", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := Retry(context.Background(), policy, func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausted", func(t *testing.T) {
		err := Retry(context.Background(), policy, func() error { return ErrConcurrentModification })

		var exhausted *RetryExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 3, exhausted.Attempts)
		assert.ErrorIs(t, err, ErrConcurrentModification)
	})

	t.Run("cancelled context stops backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Retry(ctx, RetryPolicy{Attempts: 3, Backoff: time.Hour}, func() error {
			return ErrConcurrentModification
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
