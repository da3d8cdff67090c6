/*
tenure.go - Tenure/rate calculator

PURPOSE:
  Converts an employee's join date into tenure in months, the monthly
  accrual rate, and carry-forward eligibility. Pure function, no I/O.

RULES (defaults):
  tenure < 12 months:  1.5 days/month, no carry-forward
  tenure >= 12 months: 2.0 days/month, carry-forward allowed

TENURE MONTHS:
  elapsed years * 12 + elapsed months, where a month only counts once its
  day-of-month is reached:
    joined 2024-01-31, as of 2024-02-28 -> 0 months
    joined 2024-01-15, as of 2025-03-15 -> 14 months

ANNIVERSARY:
  The join date shifted into the evaluation year, or the next year once that
  date has passed. The join date itself is not an anniversary. A Feb 29 join
  date falls on Mar 1 in non-leap years.
*/
package leave

import (
	"time"

	"github.com/warp/leave-engine/generic"
)

// TenureRates configures the calculator.
type TenureRates struct {
	JuniorRate      generic.Amount // per month below the threshold
	SeniorRate      generic.Amount // per month at or above the threshold
	ThresholdMonths int
}

func DefaultTenureRates() TenureRates {
	return TenureRates{
		JuniorRate:      generic.Days(1.5),
		SeniorRate:      generic.Days(2.0),
		ThresholdMonths: 12,
	}
}

// Tenure is the calculator output.
type Tenure struct {
	JoinDate           generic.TimePoint
	AsOf               generic.TimePoint
	Months             int
	MonthlyRate        generic.Amount
	CanCarryForward    bool
	NextAnniversary    generic.TimePoint
	IsAnniversaryToday bool
}

// CalculateTenure uses the default rates.
func CalculateTenure(joinDate, asOf generic.TimePoint) (Tenure, error) {
	return DefaultTenureRates().Calculate(joinDate, asOf)
}

// Calculate evaluates tenure at asOf. A zero join date is a data error.
func (r TenureRates) Calculate(joinDate, asOf generic.TimePoint) (Tenure, error) {
	if joinDate.IsZero() {
		return Tenure{}, generic.ErrMissingJoinDate
	}
	if asOf.IsZero() {
		asOf = generic.Today()
	}
	if asOf.Before(joinDate) {
		return Tenure{}, generic.Invalid("as_of", "%s is before join date %s", asOf, joinDate)
	}

	months := TenureMonths(joinDate, asOf)
	senior := months >= r.ThresholdMonths

	rate := r.JuniorRate
	if senior {
		rate = r.SeniorRate
	}

	anniversary := anniversaryIn(joinDate, asOf.Year())
	if anniversary.Before(asOf) {
		anniversary = anniversaryIn(joinDate, asOf.Year()+1)
	}

	return Tenure{
		JoinDate:           joinDate,
		AsOf:               asOf,
		Months:             months,
		MonthlyRate:        rate,
		CanCarryForward:    senior,
		NextAnniversary:    anniversary,
		IsAnniversaryToday: anniversary.Equal(asOf) && asOf.Year() > joinDate.Year(),
	}, nil
}

// TenureMonths counts whole months between joinDate and asOf.
func TenureMonths(joinDate, asOf generic.TimePoint) int {
	years := asOf.Year() - joinDate.Year()
	months := int(asOf.Month()) - int(joinDate.Month())
	if asOf.Day() < joinDate.Day() {
		months--
	}
	total := years*12 + months
	if total < 0 {
		return 0
	}
	return total
}

func anniversaryIn(joinDate generic.TimePoint, year int) generic.TimePoint {
	t := time.Date(year, joinDate.Month(), joinDate.Day(), 0, 0, 0, 0, time.UTC)
	return generic.DayOf(t)
}
