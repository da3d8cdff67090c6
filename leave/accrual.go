/*
accrual.go - Monthly accrual and anniversary carry-forward

MONTHLY ACCRUAL:
  For every active employee and every accruing leave type, credit the
  tenure rate for the month into the balance row of month.Year. Tenure is
  evaluated at the last day of the month. Each employee runs in its own
  transaction; one failure does not stop the batch.

  Running the same month twice is a no-op: the row remembers the last
  month it was credited for.

ANNIVERSARY:
  On an employee's work anniversary D, the row for year D.Year()-1 is
  closed and min(remaining, cap) moves into year D.Year(). Employees below
  the tenure threshold carry nothing, but their row is still closed.

CONCURRENCY:
  Employees are processed by an errgroup bounded by Config.Concurrency.
*/
package leave

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/leave-engine/generic"
)

// AccrualResult is the per-(employee, leave type) outcome of a run.
type AccrualResult struct {
	EmployeeID   generic.EmployeeID
	LeaveTypeID  generic.LeaveTypeID
	Month        generic.Month
	Success      bool
	Credited     bool // false when already accrued or not yet joined
	Rate         generic.Amount
	NewAllocated generic.Amount
	Err          error
}

// CarryForwardRunResult is the per-(employee, leave type) outcome of an
// anniversary run.
type CarryForwardRunResult struct {
	EmployeeID  generic.EmployeeID
	LeaveTypeID generic.LeaveTypeID
	FromYear    int
	Eligible    bool
	Success     bool
	Skipped     bool
	Carried     generic.Amount
	Err         error
}

// runBatched applies fn to every employee with bounded parallelism and
// flattens the results in employee order.
func runBatched[R any](limit int, employees []Employee, fn func(Employee) []R) []R {
	perEmployee := make([][]R, len(employees))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, emp := range employees {
		i, emp := i, emp
		g.Go(func() error {
			perEmployee[i] = fn(emp)
			return nil
		})
	}
	_ = g.Wait()

	var out []R
	for _, rs := range perEmployee {
		out = append(out, rs...)
	}
	return out
}

func (e *Engine) accruingTypes(ctx context.Context) ([]LeaveType, error) {
	all, err := e.leaveTypes.ListLeaveTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list leave types: %w", err)
	}
	var out []LeaveType
	for _, lt := range all {
		if lt.Accrues {
			out = append(out, lt)
		}
	}
	return out, nil
}

// =============================================================================
// MONTHLY ACCRUAL
// =============================================================================

// RunMonthlyAccrual credits month's accrual to every active employee.
func (e *Engine) RunMonthlyAccrual(ctx context.Context, month generic.Month) ([]AccrualResult, error) {
	if month.IsZero() {
		return nil, generic.Invalid("month", "is required")
	}
	logger := e.logger.With(zap.Stringer("month", month))
	logger.Info("monthly accrual started")

	employees, err := e.directory.ListActiveEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active employees: %w", err)
	}
	types, err := e.accruingTypes(ctx)
	if err != nil {
		return nil, err
	}

	results := runBatched(e.concurrency, employees, func(emp Employee) []AccrualResult {
		return e.accrueEmployee(ctx, emp, types, month)
	})

	credited, failed := 0, 0
	for _, r := range results {
		switch {
		case !r.Success:
			failed++
			logger.Warn("accrual failed",
				zap.String("employee_id", string(r.EmployeeID)),
				zap.String("leave_type_id", string(r.LeaveTypeID)),
				zap.Error(r.Err),
			)
		case r.Credited:
			credited++
			e.notify(ctx, EventBalanceAccrued, r.EmployeeID, map[string]any{
				"leave_type_id": r.LeaveTypeID,
				"month":         month.String(),
				"rate":          r.Rate.Value.String(),
				"allocated":     r.NewAllocated.Value.String(),
			})
		}
	}
	logger.Info("monthly accrual finished",
		zap.Int("employees", len(employees)),
		zap.Int("credited", credited),
		zap.Int("failed", failed),
	)
	return results, nil
}

func (e *Engine) accrueEmployee(ctx context.Context, emp Employee, types []LeaveType, month generic.Month) []AccrualResult {
	fail := func(err error) []AccrualResult {
		out := make([]AccrualResult, len(types))
		for i, lt := range types {
			out[i] = AccrualResult{EmployeeID: emp.ID, LeaveTypeID: lt.ID, Month: month, Err: err}
		}
		return out
	}

	asOf := month.End()
	if emp.JoinDate.IsZero() {
		return fail(fmt.Errorf("employee %s: %w", emp.ID, generic.ErrMissingJoinDate))
	}
	if emp.JoinDate.After(asOf) {
		out := make([]AccrualResult, len(types))
		for i, lt := range types {
			out[i] = AccrualResult{EmployeeID: emp.ID, LeaveTypeID: lt.ID, Month: month, Success: true}
		}
		return out
	}
	tenure, err := e.rates.Calculate(emp.JoinDate, asOf)
	if err != nil {
		return fail(err)
	}

	var results []AccrualResult
	err = generic.Retry(ctx, e.retry, func() error {
		return e.store.WithTx(ctx, func(tx Store) error {
			ledger := e.ledgerFor(tx)
			batch := make([]AccrualResult, 0, len(types))
			for _, lt := range types {
				key := BalanceKey{EmployeeID: emp.ID, LeaveTypeID: lt.ID, Year: month.Year}
				b, credited, err := ledger.Accrue(ctx, key, tenure.MonthlyRate, month)
				if err != nil {
					return err
				}
				batch = append(batch, AccrualResult{
					EmployeeID:   emp.ID,
					LeaveTypeID:  lt.ID,
					Month:        month,
					Success:      true,
					Credited:     credited,
					Rate:         tenure.MonthlyRate,
					NewAllocated: b.Allocated,
				})
			}
			results = batch
			return nil
		})
	})
	if err != nil {
		return fail(err)
	}
	return results
}

// =============================================================================
// ANNIVERSARY CARRY-FORWARD
// =============================================================================

// carryForwardCap is the leave type's own cap, or the engine default.
func (e *Engine) carryForwardCapFor(lt LeaveType) generic.Amount {
	if lt.CarryForward != nil {
		return *lt.CarryForward
	}
	return e.carryForwardCap
}

// RunAnniversary rolls over the balances of every employee whose work
// anniversary falls on date.
func (e *Engine) RunAnniversary(ctx context.Context, date generic.TimePoint) ([]CarryForwardRunResult, error) {
	if date.IsZero() {
		return nil, generic.Invalid("date", "is required")
	}
	logger := e.logger.With(zap.Stringer("date", date))
	logger.Info("anniversary run started")

	employees, err := e.directory.ListActiveEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active employees: %w", err)
	}
	types, err := e.accruingTypes(ctx)
	if err != nil {
		return nil, err
	}

	results := runBatched(e.concurrency, employees, func(emp Employee) []CarryForwardRunResult {
		return e.rollOverEmployee(ctx, emp, types, date)
	})

	for _, r := range results {
		if !r.Success {
			logger.Warn("carry-forward failed",
				zap.String("employee_id", string(r.EmployeeID)),
				zap.String("leave_type_id", string(r.LeaveTypeID)),
				zap.Error(r.Err),
			)
			continue
		}
		if r.Skipped {
			continue
		}
		e.notify(ctx, EventBalanceCarriedForward, r.EmployeeID, map[string]any{
			"leave_type_id": r.LeaveTypeID,
			"from_year":     r.FromYear,
			"to_year":       r.FromYear + 1,
			"carried":       r.Carried.Value.String(),
			"eligible":      r.Eligible,
		})
	}
	logger.Info("anniversary run finished", zap.Int("results", len(results)))
	return results, nil
}

func (e *Engine) rollOverEmployee(ctx context.Context, emp Employee, types []LeaveType, date generic.TimePoint) []CarryForwardRunResult {
	if emp.JoinDate.IsZero() || emp.JoinDate.After(date) {
		return nil
	}
	tenure, err := e.rates.Calculate(emp.JoinDate, date)
	if err != nil || !tenure.IsAnniversaryToday {
		return nil
	}

	fromYear := date.Year() - 1
	out := make([]CarryForwardRunResult, 0, len(types))
	for _, lt := range types {
		res := CarryForwardRunResult{
			EmployeeID:  emp.ID,
			LeaveTypeID: lt.ID,
			FromYear:    fromYear,
			Eligible:    tenure.CanCarryForward,
			Carried:     generic.ZeroDays(),
		}
		key := BalanceKey{EmployeeID: emp.ID, LeaveTypeID: lt.ID, Year: fromYear}
		limit := e.carryForwardCapFor(lt)

		err := generic.Retry(ctx, e.retry, func() error {
			return e.store.WithTx(ctx, func(tx Store) error {
				cf, err := e.ledgerFor(tx).CarryForward(ctx, key, limit, tenure.CanCarryForward)
				if err != nil {
					return err
				}
				res.Skipped = cf.Skipped
				res.Carried = cf.Carried
				return nil
			})
		})
		if err != nil {
			res.Err = err
		} else {
			res.Success = true
		}
		out = append(out, res)
	}
	return out
}
