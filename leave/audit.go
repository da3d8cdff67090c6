package leave

import (
	"context"
	"time"

	"github.com/warp/leave-engine/generic"
)

// ListAdjustments returns audit rows matching filter, oldest first.
func (e *Engine) ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]Adjustment, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, generic.Invalid("to", "is before from")
	}
	return e.store.ListAdjustments(ctx, filter)
}

// AdjustmentsForEmployee is the full audit trail of one employee.
func (e *Engine) AdjustmentsForEmployee(ctx context.Context, employeeID generic.EmployeeID) ([]Adjustment, error) {
	if employeeID == "" {
		return nil, generic.Invalid("employee_id", "is required")
	}
	return e.ListAdjustments(ctx, AdjustmentFilter{EmployeeID: employeeID})
}

// AdjustmentsInRange returns every adjustment created in [from, to].
func (e *Engine) AdjustmentsInRange(ctx context.Context, from, to time.Time) ([]Adjustment, error) {
	return e.ListAdjustments(ctx, AdjustmentFilter{From: &from, To: &to})
}
