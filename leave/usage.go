package leave

import (
	"context"

	"github.com/warp/leave-engine/generic"
)

// QuarterlyUsage is days debited by approved applications, bucketed by the
// quarter of their start date.
type QuarterlyUsage struct {
	EmployeeID  generic.EmployeeID
	LeaveTypeID generic.LeaveTypeID
	Year        int
	Q1          generic.Amount
	Q2          generic.Amount
	Q3          generic.Amount
	Q4          generic.Amount
}

func newQuarterlyUsage(employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID, year int) QuarterlyUsage {
	zero := generic.ZeroDays()
	return QuarterlyUsage{EmployeeID: employeeID, LeaveTypeID: leaveTypeID, Year: year, Q1: zero, Q2: zero, Q3: zero, Q4: zero}
}

func (u *QuarterlyUsage) add(q generic.Quarter, amount generic.Amount) {
	switch q {
	case generic.Q1:
		u.Q1 = u.Q1.Add(amount)
	case generic.Q2:
		u.Q2 = u.Q2.Add(amount)
	case generic.Q3:
		u.Q3 = u.Q3.Add(amount)
	case generic.Q4:
		u.Q4 = u.Q4.Add(amount)
	}
}

// Get returns the usage of one quarter.
func (u QuarterlyUsage) Get(q generic.Quarter) generic.Amount {
	switch q {
	case generic.Q1:
		return u.Q1
	case generic.Q2:
		return u.Q2
	case generic.Q3:
		return u.Q3
	case generic.Q4:
		return u.Q4
	}
	return generic.ZeroDays()
}

func (u QuarterlyUsage) Total() generic.Amount {
	return u.Q1.Add(u.Q2).Add(u.Q3).Add(u.Q4)
}

// QuarterlyUsage reports an employee's usage of one leave type in year.
func (e *Engine) QuarterlyUsage(ctx context.Context, employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID, year int) (QuarterlyUsage, error) {
	if employeeID == "" {
		return QuarterlyUsage{}, generic.Invalid("employee_id", "is required")
	}
	if err := validateYear(year); err != nil {
		return QuarterlyUsage{}, err
	}
	from, to := generic.StartOfYear(year), generic.EndOfYear(year)
	apps, err := e.store.ListApplications(ctx, ApplicationFilter{
		EmployeeID: employeeID,
		Statuses:   []Status{StatusApproved},
		From:       &from,
		To:         &to,
	})
	if err != nil {
		return QuarterlyUsage{}, err
	}

	usage := newQuarterlyUsage(employeeID, leaveTypeID, year)
	for _, q := range generic.Quarters {
		span := q.Period(year)
		for _, a := range apps {
			if leaveTypeID != "" && a.LeaveTypeID != leaveTypeID {
				continue
			}
			if span.Contains(a.StartDate) {
				usage.add(q, a.Debit())
			}
		}
	}
	return usage, nil
}
