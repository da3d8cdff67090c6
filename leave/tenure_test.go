package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func TestTenureMonths(t *testing.T) {
	tests := []struct {
		name string
		join generic.TimePoint
		asOf generic.TimePoint
		want int
	}{
		{"same day", day(2024, time.January, 15), day(2024, time.January, 15), 0},
		{"day before first month", day(2024, time.January, 15), day(2024, time.February, 14), 0},
		{"first month", day(2024, time.January, 15), day(2024, time.February, 15), 1},
		{"month end join", day(2024, time.January, 31), day(2024, time.February, 29), 0},
		{"fourteen months", day(2024, time.January, 15), day(2025, time.March, 15), 14},
		{"just under a year", day(2024, time.March, 10), day(2025, time.March, 9), 11},
		{"exactly a year", day(2024, time.March, 10), day(2025, time.March, 10), 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, leave.TenureMonths(tt.join, tt.asOf))
		})
	}
}

func TestCalculateTenure_RateAndCarryForward(t *testing.T) {
	// GIVEN: An employee who joined 14 months ago
	// WHEN: Evaluating tenure
	// THEN: Senior rate 2.0 and carry-forward allowed

	senior, err := leave.CalculateTenure(day(2024, time.January, 15), day(2025, time.March, 20))
	require.NoError(t, err)
	assert.Equal(t, 14, senior.Months)
	assertDays(t, 2.0, senior.MonthlyRate)
	assert.True(t, senior.CanCarryForward)

	junior, err := leave.CalculateTenure(day(2024, time.June, 1), day(2025, time.March, 20))
	require.NoError(t, err)
	assert.Equal(t, 9, junior.Months)
	assertDays(t, 1.5, junior.MonthlyRate)
	assert.False(t, junior.CanCarryForward)
}

func TestCalculateTenure_Anniversary(t *testing.T) {
	join := day(2024, time.March, 10)

	onDay, err := leave.CalculateTenure(join, day(2025, time.March, 10))
	require.NoError(t, err)
	assert.True(t, onDay.IsAnniversaryToday)
	assert.True(t, onDay.NextAnniversary.Equal(day(2025, time.March, 10)))

	after, err := leave.CalculateTenure(join, day(2025, time.March, 11))
	require.NoError(t, err)
	assert.False(t, after.IsAnniversaryToday)
	assert.True(t, after.NextAnniversary.Equal(day(2026, time.March, 10)))

	joinDay, err := leave.CalculateTenure(join, join)
	require.NoError(t, err)
	assert.False(t, joinDay.IsAnniversaryToday, "the join date itself is not an anniversary")
}

func TestCalculateTenure_LeapDayJoin(t *testing.T) {
	ten, err := leave.CalculateTenure(day(2024, time.February, 29), day(2025, time.March, 1))
	require.NoError(t, err)
	assert.True(t, ten.IsAnniversaryToday)
}

func TestCalculateTenure_Errors(t *testing.T) {
	_, err := leave.CalculateTenure(generic.TimePoint{}, day(2025, time.March, 1))
	assert.ErrorIs(t, err, generic.ErrMissingJoinDate)

	_, err = leave.CalculateTenure(day(2025, time.March, 1), day(2025, time.February, 1))
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestTenureRates_Custom(t *testing.T) {
	rates := leave.TenureRates{JuniorRate: days(1), SeniorRate: days(2.5), ThresholdMonths: 6}
	ten, err := rates.Calculate(day(2024, time.January, 1), day(2024, time.July, 1))
	require.NoError(t, err)
	assertDays(t, 2.5, ten.MonthlyRate)
	assert.True(t, ten.CanCarryForward)
}
