package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// BALANCES
// =============================================================================

const balanceColumns = `id, employee_id, leave_type_id, year, allocated, used, carry_forward,
	monthly_rate, last_accrued_month, rolled_over, version, created_at, updated_at`

func getBalance(ctx context.Context, q querier, key leave.BalanceKey) (*leave.Balance, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM leave_balances
		 WHERE employee_id = ? AND leave_type_id = ? AND year = ?`,
		key.EmployeeID, key.LeaveTypeID, key.Year,
	)
	b, err := scanBalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func saveBalance(ctx context.Context, q querier, b *leave.Balance) error {
	lastAccrued := ""
	if !b.LastAccruedMonth.IsZero() {
		lastAccrued = b.LastAccruedMonth.String()
	}

	if b.IsNew() {
		_, err := q.ExecContext(ctx,
			`INSERT INTO leave_balances (`+balanceColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			b.ID, b.EmployeeID, b.LeaveTypeID, b.Year,
			b.Allocated.Value.String(), b.Used.Value.String(), b.CarryForward.Value.String(),
			b.MonthlyRate.Value.String(), lastAccrued, b.RolledOver,
			formatTimestamp(b.CreatedAt), formatTimestamp(b.UpdatedAt),
		)
		if isUniqueConstraintError(err) {
			return generic.ErrConcurrentModification
		}
		if err != nil {
			return fmt.Errorf("failed to insert balance: %w", err)
		}
		b.Version = 1
		return nil
	}

	res, err := q.ExecContext(ctx,
		`UPDATE leave_balances SET
			allocated = ?, used = ?, carry_forward = ?, monthly_rate = ?,
			last_accrued_month = ?, rolled_over = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		b.Allocated.Value.String(), b.Used.Value.String(), b.CarryForward.Value.String(),
		b.MonthlyRate.Value.String(), lastAccrued, b.RolledOver, formatTimestamp(b.UpdatedAt),
		b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.ErrConcurrentModification
	}
	b.Version++
	return nil
}

func listBalances(ctx context.Context, q querier, employeeID generic.EmployeeID, year int) ([]leave.Balance, error) {
	query := `SELECT ` + balanceColumns + ` FROM leave_balances WHERE employee_id = ?`
	args := []any{employeeID}
	if year != 0 {
		query += ` AND year = ?`
		args = append(args, year)
	}
	query += ` ORDER BY year ASC, leave_type_id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var balances []leave.Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBalance(sc scanner) (leave.Balance, error) {
	var (
		b                                            leave.Balance
		allocated, used, carryForward, rate, accrued string
		createdAt, updatedAt                         string
	)
	err := sc.Scan(&b.ID, &b.EmployeeID, &b.LeaveTypeID, &b.Year,
		&allocated, &used, &carryForward, &rate, &accrued, &b.RolledOver,
		&b.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, err
		}
		return b, fmt.Errorf("failed to scan balance: %w", err)
	}

	for _, f := range []struct {
		dst *generic.Amount
		src string
	}{{&b.Allocated, allocated}, {&b.Used, used}, {&b.CarryForward, carryForward}, {&b.MonthlyRate, rate}} {
		if *f.dst, err = parseDays(f.src); err != nil {
			return b, err
		}
	}
	if accrued != "" {
		if b.LastAccruedMonth, err = generic.ParseMonth(accrued); err != nil {
			return b, fmt.Errorf("corrupt last_accrued_month %q: %w", accrued, err)
		}
	}
	if b.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return b, err
	}
	if b.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return b, err
	}
	return b, nil
}

// =============================================================================
// APPLICATIONS
// =============================================================================

const applicationColumns = `id, employee_id, leave_type_id, start_date, end_date, days_count,
	is_half_day, half_day_period, lop_days, status, reason, comments,
	sandwich_deducted_days, is_sandwich_leave, sandwich_pair_id,
	approved_by, approved_at, acted_by, version, created_at, updated_at`

func getApplication(ctx context.Context, q querier, id generic.ApplicationID) (*leave.Application, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM leave_applications WHERE id = ?`, id)
	a, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func saveApplication(ctx context.Context, q querier, a *leave.Application) error {
	var snapshot sql.NullString
	if a.SandwichDeductedDays != nil {
		snapshot = sql.NullString{String: a.SandwichDeductedDays.Value.String(), Valid: true}
	}
	var isSandwich sql.NullBool
	if a.IsSandwichLeave != nil {
		isSandwich = sql.NullBool{Bool: *a.IsSandwichLeave, Valid: true}
	}
	var approvedAt sql.NullString
	if a.ApprovedAt != nil {
		approvedAt = sql.NullString{String: formatTimestamp(*a.ApprovedAt), Valid: true}
	}

	if a.Version == 0 {
		_, err := q.ExecContext(ctx,
			`INSERT INTO leave_applications (`+applicationColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			a.ID, a.EmployeeID, a.LeaveTypeID, formatDate(a.StartDate), formatDate(a.EndDate),
			a.DaysCount.Value.String(), a.IsHalfDay, string(a.HalfDayPeriod), a.LOPDays.Value.String(),
			string(a.Status), nullString(a.Reason), nullString(a.Comments),
			snapshot, isSandwich, nullString(string(a.SandwichPairID)),
			nullString(a.ApprovedBy), approvedAt, nullString(a.ActedBy),
			formatTimestamp(a.CreatedAt), formatTimestamp(a.UpdatedAt),
		)
		if isUniqueConstraintError(err) {
			return generic.ErrConcurrentModification
		}
		if err != nil {
			return fmt.Errorf("failed to insert application: %w", err)
		}
		a.Version = 1
		return nil
	}

	res, err := q.ExecContext(ctx,
		`UPDATE leave_applications SET
			status = ?, comments = ?, sandwich_deducted_days = ?, is_sandwich_leave = ?,
			sandwich_pair_id = ?, approved_by = ?, approved_at = ?, acted_by = ?,
			version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(a.Status), nullString(a.Comments), snapshot, isSandwich,
		nullString(string(a.SandwichPairID)), nullString(a.ApprovedBy), approvedAt, nullString(a.ActedBy),
		formatTimestamp(a.UpdatedAt), a.ID, a.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.ErrConcurrentModification
	}
	a.Version++
	return nil
}

func listApplications(ctx context.Context, q querier, filter leave.ApplicationFilter) ([]leave.Application, error) {
	var (
		where []string
		args  []any
	)
	if filter.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if filter.From != nil {
		where = append(where, "end_date >= ?")
		args = append(args, formatDate(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "start_date <= ?")
		args = append(args, formatDate(*filter.To))
	}

	query := `SELECT ` + applicationColumns + ` FROM leave_applications`
	if len(where) > 0 {
		query += ` WHERE ` + joinAnd(where)
	}
	query += ` ORDER BY start_date ASC, created_at ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []leave.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func scanApplication(sc scanner) (leave.Application, error) {
	var (
		a                                       leave.Application
		startDate, endDate, daysCount, lopDays  string
		halfDayPeriod, status                   string
		reason, comments, pairID                sql.NullString
		snapshot, approvedBy, approvedAt, acted sql.NullString
		isSandwich                              sql.NullBool
		createdAt, updatedAt                    string
	)
	err := sc.Scan(&a.ID, &a.EmployeeID, &a.LeaveTypeID, &startDate, &endDate, &daysCount,
		&a.IsHalfDay, &halfDayPeriod, &lopDays, &status, &reason, &comments,
		&snapshot, &isSandwich, &pairID, &approvedBy, &approvedAt, &acted,
		&a.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, fmt.Errorf("failed to scan application: %w", err)
	}

	if a.StartDate, err = parseDate(startDate); err != nil {
		return a, err
	}
	if a.EndDate, err = parseDate(endDate); err != nil {
		return a, err
	}
	if a.DaysCount, err = parseDays(daysCount); err != nil {
		return a, err
	}
	if a.LOPDays, err = parseDays(lopDays); err != nil {
		return a, err
	}
	a.HalfDayPeriod = leave.HalfDayPeriod(halfDayPeriod)
	a.Status = leave.Status(status)
	a.Reason = reason.String
	a.Comments = comments.String
	a.SandwichPairID = generic.ApplicationID(pairID.String)
	a.ApprovedBy = approvedBy.String
	a.ActedBy = acted.String

	if snapshot.Valid {
		amt, err := parseDays(snapshot.String)
		if err != nil {
			return a, err
		}
		a.SandwichDeductedDays = &amt
	}
	if isSandwich.Valid {
		v := isSandwich.Bool
		a.IsSandwichLeave = &v
	}
	if approvedAt.Valid {
		t, err := parseTimestamp(approvedAt.String)
		if err != nil {
			return a, err
		}
		a.ApprovedAt = &t
	}
	if a.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return a, err
	}
	if a.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return a, err
	}
	return a, nil
}

// =============================================================================
// ADJUSTMENTS (append-only)
// =============================================================================

const adjustmentColumns = `id, balance_id, employee_id, leave_type_id, year, type, amount, reason,
	previous_allocated, new_allocated, adjusted_by, created_at`

func appendAdjustment(ctx context.Context, q querier, adj leave.Adjustment) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO leave_balance_adjustments (`+adjustmentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		adj.ID, adj.BalanceID, adj.EmployeeID, adj.LeaveTypeID, adj.Year, string(adj.Type),
		adj.Amount.Value.String(), adj.Reason,
		adj.PreviousAllocated.Value.String(), adj.NewAllocated.Value.String(),
		adj.AdjustedBy, formatTimestamp(adj.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append adjustment %s: %w", adj.ID, appendOnlyError(err))
	}
	return nil
}

// appendOnlyError maps the audit trail's rejections to generic.ErrAppendOnly:
// the triggers that abort UPDATE/DELETE, and an INSERT reusing an existing id.
func appendOnlyError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "is append-only") || isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %v", generic.ErrAppendOnly, err)
	}
	return err
}

func listAdjustments(ctx context.Context, q querier, filter leave.AdjustmentFilter) ([]leave.Adjustment, error) {
	var (
		where []string
		args  []any
	)
	if filter.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.LeaveTypeID != "" {
		where = append(where, "leave_type_id = ?")
		args = append(args, filter.LeaveTypeID)
	}
	if filter.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, formatTimestamp(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "created_at <= ?")
		args = append(args, formatTimestamp(*filter.To))
	}

	query := `SELECT ` + adjustmentColumns + ` FROM leave_balance_adjustments`
	if len(where) > 0 {
		query += ` WHERE ` + joinAnd(where)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var result []leave.Adjustment
	for rows.Next() {
		var (
			adj                                    leave.Adjustment
			typ, amount, previous, next, createdAt string
		)
		if err := rows.Scan(&adj.ID, &adj.BalanceID, &adj.EmployeeID, &adj.LeaveTypeID, &adj.Year,
			&typ, &amount, &adj.Reason, &previous, &next, &adj.AdjustedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		adj.Type = leave.AdjustmentType(typ)
		if adj.Amount, err = parseDays(amount); err != nil {
			return nil, err
		}
		if adj.PreviousAllocated, err = parseDays(previous); err != nil {
			return nil, err
		}
		if adj.NewAllocated, err = parseDays(next); err != nil {
			return nil, err
		}
		if adj.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		result = append(result, adj)
	}
	return result, rows.Err()
}
