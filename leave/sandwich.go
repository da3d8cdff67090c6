/*
sandwich.go - Sandwich-leave calculator

PURPOSE:
  Computes the CHARGEABLE days of a leave request, which can differ from the
  nominal days requested when the request abuts weekends or holidays.

RULES:
  1. Only an approval charges anything. Other target statuses charge 0.
  2. A half day charges 0.5 and never sandwiches.
  3. Inside the range, every day from the first working day to the last
     working day is charged. Interior weekends/holidays are bounded by leave
     on both sides, so they count (Thu-Tue = 6 days).
  4. Leading/trailing non-working days of the range are free, unless the
     non-working stretch they belong to is bounded on its far side by another
     approved, full-day application of the same employee. Then the whole
     stretch is charged to the application being approved now.
  5. A requested DaysCount below the working-day count lowers the charge by
     the difference. Bridged days are still charged on top.

ATTRIBUTION:
  The later-approved application bears the bridged days. Example: Monday is
  approved first (1 day); Friday is approved next and is charged
  1 + Sat + Sun = 3 days. Reversing Friday restores its 3 days. Reversing
  Monday restores Monday's day and also releases the weekend from Friday,
  whose snapshot drops back to 1 (see Engine.releaseBridges). Ignore lets
  the engine compute a charge as if one application were not approved.

SNAPSHOT:
  The engine stores DeductedDays on the application at approval. A reversal
  restores that snapshot as stored. The calculator runs again only to size
  the bridge a partner application loses.
*/
package leave

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warp/leave-engine/generic"
)

// maxBridgeGap bounds how far the calculator walks across non-working days.
const maxBridgeGap = 31

// ApplicationLister is the slice of Store the calculator needs.
type ApplicationLister interface {
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]Application, error)
}

// SandwichCalculator computes chargeable days.
type SandwichCalculator struct {
	Calendar     Calendar
	Applications ApplicationLister
}

func NewSandwichCalculator(calendar Calendar, apps ApplicationLister) *SandwichCalculator {
	if calendar == nil {
		calendar = generic.WeekendCalendar{}
	}
	return &SandwichCalculator{Calendar: calendar, Applications: apps}
}

type SandwichInput struct {
	EmployeeID    generic.EmployeeID
	ApplicationID generic.ApplicationID // excluded from neighbour lookup
	Start         generic.TimePoint
	End           generic.TimePoint
	IsHalfDay     bool
	TargetStatus  Status
	ReferenceTime time.Time // neighbours must be approved at or before this
	Sandwich      bool      // leave type applies sandwich rules
	DaysCount     *generic.Amount
	Ignore        generic.ApplicationID // treated as not approved
}

type SandwichResult struct {
	DeductedDays        generic.Amount
	Reason              string
	IsSandwichLeave     bool
	PairedApplicationID generic.ApplicationID
}

// Compute returns the chargeable days for in.
func (c *SandwichCalculator) Compute(ctx context.Context, in SandwichInput) (SandwichResult, error) {
	if in.TargetStatus != StatusApproved {
		return SandwichResult{
			DeductedDays: generic.ZeroDays(),
			Reason:       fmt.Sprintf("no deduction for status %s", in.TargetStatus),
		}, nil
	}
	period := generic.Period{Start: in.Start, End: in.End}
	if err := period.Validate(); err != nil {
		return SandwichResult{}, generic.Invalid("end_date", "end date %s is before start date %s", in.End, in.Start)
	}
	if in.IsHalfDay {
		return SandwichResult{DeductedDays: generic.Days(0.5), Reason: "half day"}, nil
	}

	days := period.Days()
	first, last, working := -1, -1, 0
	for i, d := range days {
		if c.Calendar.IsWorkingDay(d) {
			if first < 0 {
				first = i
			}
			last = i
			working++
		}
	}

	if !in.Sandwich {
		return SandwichResult{
			DeductedDays: capToRequested(in, generic.NewAmount(float64(working), generic.UnitDays), working),
			Reason:       fmt.Sprintf("%d working days", working),
		}, nil
	}

	if working == 0 {
		return c.computeNonWorkingRange(ctx, in, len(days))
	}

	charged := last - first + 1
	reasons := []string{fmt.Sprintf("%d working days", working)}
	result := SandwichResult{}
	if interior := charged - working; interior > 0 {
		result.IsSandwichLeave = true
		reasons = append(reasons, fmt.Sprintf("%d non-working days inside the range", interior))
	}

	// Stretch before the first working day of the range.
	leading := first
	if gap, boundary := c.gapBefore(in.Start); gap+leading > 0 {
		neighbour, err := c.approvedNeighbour(ctx, in, boundary, true)
		if err != nil {
			return SandwichResult{}, err
		}
		if neighbour != nil {
			charged += gap + leading
			result.IsSandwichLeave = true
			result.PairedApplicationID = neighbour.ID
			reasons = append(reasons, fmt.Sprintf("%d days bridged to application %s", gap+leading, neighbour.ID))
		}
	}

	// Stretch after the last working day of the range.
	trailing := len(days) - 1 - last
	if gap, boundary := c.gapAfter(in.End); gap+trailing > 0 {
		neighbour, err := c.approvedNeighbour(ctx, in, boundary, false)
		if err != nil {
			return SandwichResult{}, err
		}
		if neighbour != nil {
			charged += gap + trailing
			result.IsSandwichLeave = true
			if result.PairedApplicationID == "" {
				result.PairedApplicationID = neighbour.ID
			}
			reasons = append(reasons, fmt.Sprintf("%d days bridged to application %s", gap+trailing, neighbour.ID))
		}
	}

	result.DeductedDays = capToRequested(in, generic.NewAmount(float64(charged), generic.UnitDays), working)
	if !result.DeductedDays.Equal(generic.NewAmount(float64(charged), generic.UnitDays)) {
		reasons = append(reasons, fmt.Sprintf("requested %v days", in.DaysCount.Value))
	}
	result.Reason = strings.Join(reasons, "; ")
	return result, nil
}

// capToRequested lowers charge by the working days the request did not ask
// for. A DaysCount at or above the working-day count changes nothing.
func capToRequested(in SandwichInput, charge generic.Amount, working int) generic.Amount {
	if in.DaysCount == nil {
		return charge
	}
	unasked := generic.NewAmount(float64(working), generic.UnitDays).Sub(*in.DaysCount)
	if !unasked.IsPositive() {
		return charge
	}
	return charge.Sub(unasked).ClampZero()
}

// computeNonWorkingRange handles a range with no working day at all. It is
// charged only when approved leave bounds it on both sides.
func (c *SandwichCalculator) computeNonWorkingRange(ctx context.Context, in SandwichInput, length int) (SandwichResult, error) {
	gapBefore, before := c.gapBefore(in.Start)
	gapAfter, after := c.gapAfter(in.End)

	prev, err := c.approvedNeighbour(ctx, in, before, true)
	if err != nil {
		return SandwichResult{}, err
	}
	next, err := c.approvedNeighbour(ctx, in, after, false)
	if err != nil {
		return SandwichResult{}, err
	}
	if prev == nil || next == nil {
		return SandwichResult{DeductedDays: generic.ZeroDays(), Reason: "no working days in range"}, nil
	}

	charged := gapBefore + length + gapAfter
	return SandwichResult{
		DeductedDays:        generic.NewAmount(float64(charged), generic.UnitDays),
		Reason:              fmt.Sprintf("%d non-working days bridged between %s and %s", charged, prev.ID, next.ID),
		IsSandwichLeave:     true,
		PairedApplicationID: prev.ID,
	}, nil
}

// gapBefore counts consecutive non-working days immediately before day and
// returns the working day that bounds them.
func (c *SandwichCalculator) gapBefore(day generic.TimePoint) (int, generic.TimePoint) {
	gap := 0
	cur := day.AddDays(-1)
	for gap < maxBridgeGap && !c.Calendar.IsWorkingDay(cur) {
		gap++
		cur = cur.AddDays(-1)
	}
	return gap, cur
}

func (c *SandwichCalculator) gapAfter(day generic.TimePoint) (int, generic.TimePoint) {
	gap := 0
	cur := day.AddDays(1)
	for gap < maxBridgeGap && !c.Calendar.IsWorkingDay(cur) {
		gap++
		cur = cur.AddDays(1)
	}
	return gap, cur
}

// approvedNeighbour finds a full-day application of the same employee that
// was approved by ReferenceTime and ends (before=true) or starts on boundary.
func (c *SandwichCalculator) approvedNeighbour(ctx context.Context, in SandwichInput, boundary generic.TimePoint, before bool) (*Application, error) {
	if c.Applications == nil {
		return nil, nil
	}
	apps, err := c.Applications.ListApplications(ctx, ApplicationFilter{
		EmployeeID: in.EmployeeID,
		Statuses:   []Status{StatusApproved},
		From:       &boundary,
		To:         &boundary,
	})
	if err != nil {
		return nil, fmt.Errorf("sandwich neighbour lookup failed: %w", err)
	}

	for i := range apps {
		a := apps[i]
		if a.ID == in.ApplicationID || a.ID == in.Ignore || a.IsHalfDay {
			continue
		}
		if a.ApprovedAt != nil && !in.ReferenceTime.IsZero() && a.ApprovedAt.After(in.ReferenceTime) {
			continue
		}
		if before && a.EndDate.Equal(boundary) {
			return &a, nil
		}
		if !before && a.StartDate.Equal(boundary) {
			return &a, nil
		}
	}
	return nil, nil
}
