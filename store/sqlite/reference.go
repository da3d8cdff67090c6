package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REFERENCE DATA CACHE
// =============================================================================

// loadReferenceData fills the leave-type and holiday caches.
func (s *Store) loadReferenceData(ctx context.Context) error {
	types, err := s.queryLeaveTypes(ctx)
	if err != nil {
		return err
	}
	holidays, err := s.queryHolidays(ctx)
	if err != nil {
		return err
	}

	s.refMu.Lock()
	defer s.refMu.Unlock()
	s.leaveTypes = make(map[generic.LeaveTypeID]leave.LeaveType, len(types))
	for _, lt := range types {
		s.leaveTypes[lt.ID] = lt
	}
	s.holidays = holidays
	return nil
}

// =============================================================================
// EMPLOYEE DIRECTORY (leave.Directory interface)
// =============================================================================

// SaveEmployee inserts or updates an employee.
func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := e.Status
	if status == "" {
		status = leave.EmployeeActive
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, email, join_date, status, manager_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			join_date = excluded.join_date,
			status = excluded.status,
			manager_id = excluded.manager_id
	`,
		e.ID, e.Name, nullString(e.Email), nullString(formatDate(e.JoinDate)),
		string(status), nullString(string(e.ManagerID)), formatTimestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id generic.EmployeeID) (*leave.Employee, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, join_date, status, manager_id FROM employees WHERE id = ?`, id)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListActiveEmployees(ctx context.Context) ([]leave.Employee, error) {
	return s.queryEmployees(ctx,
		`SELECT id, name, email, join_date, status, manager_id FROM employees
		 WHERE status = ? ORDER BY id ASC`, string(leave.EmployeeActive))
}

// ListEmployees returns every employee regardless of status.
func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	return s.queryEmployees(ctx,
		`SELECT id, name, email, join_date, status, manager_id FROM employees ORDER BY id ASC`)
}

func (s *Store) queryEmployees(ctx context.Context, query string, args ...any) ([]leave.Employee, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func scanEmployee(sc scanner) (leave.Employee, error) {
	var (
		e                          leave.Employee
		email, joinDate, managerID sql.NullString
		status                     string
	)
	if err := sc.Scan(&e.ID, &e.Name, &email, &joinDate, &status, &managerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan employee: %w", err)
	}
	e.Email = email.String
	e.Status = leave.EmployeeStatus(status)
	e.ManagerID = generic.EmployeeID(managerID.String)
	jd, err := parseDate(joinDate.String)
	if err != nil {
		return e, fmt.Errorf("corrupt join_date %q: %w", joinDate.String, err)
	}
	e.JoinDate = jd
	return e, nil
}

// =============================================================================
// LEAVE TYPE CATALOG (leave.LeaveTypeCatalog interface)
// =============================================================================

// SaveLeaveType inserts or updates a catalog entry and refreshes the cache.
func (s *Store) SaveLeaveType(ctx context.Context, lt leave.LeaveType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var carry sql.NullString
	if lt.CarryForward != nil {
		carry = sql.NullString{String: lt.CarryForward.Value.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_types (id, name, accrues, carry_forward, sandwich, allow_half_day)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			accrues = excluded.accrues,
			carry_forward = excluded.carry_forward,
			sandwich = excluded.sandwich,
			allow_half_day = excluded.allow_half_day
	`, lt.ID, lt.Name, lt.Accrues, carry, lt.Sandwich, lt.AllowHalfDay)
	if err != nil {
		return fmt.Errorf("failed to save leave type: %w", err)
	}

	s.refMu.Lock()
	s.leaveTypes[lt.ID] = lt
	s.refMu.Unlock()
	return nil
}

func (s *Store) GetLeaveType(_ context.Context, id generic.LeaveTypeID) (*leave.LeaveType, error) {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	lt, ok := s.leaveTypes[id]
	if !ok {
		return nil, nil
	}
	return &lt, nil
}

func (s *Store) ListLeaveTypes(_ context.Context) ([]leave.LeaveType, error) {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	result := make([]leave.LeaveType, 0, len(s.leaveTypes))
	for _, lt := range s.leaveTypes {
		result = append(result, lt)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) queryLeaveTypes(ctx context.Context) ([]leave.LeaveType, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, accrues, carry_forward, sandwich, allow_half_day FROM leave_types`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave types: %w", err)
	}
	defer rows.Close()

	var types []leave.LeaveType
	for rows.Next() {
		var (
			lt    leave.LeaveType
			carry sql.NullString
		)
		if err := rows.Scan(&lt.ID, &lt.Name, &lt.Accrues, &carry, &lt.Sandwich, &lt.AllowHalfDay); err != nil {
			return nil, fmt.Errorf("failed to scan leave type: %w", err)
		}
		if carry.Valid {
			amt, err := parseDays(carry.String)
			if err != nil {
				return nil, err
			}
			lt.CarryForward = &amt
		}
		types = append(types, lt)
	}
	return types, rows.Err()
}

// =============================================================================
// HOLIDAY CALENDAR (leave.Calendar interface)
// =============================================================================

// SaveHoliday saves a holiday and refreshes the cache.
func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (id, date, name, recurring)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			name = excluded.name,
			recurring = excluded.recurring
	`, h.ID, formatDate(h.Date), h.Name, h.Recurring)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}

	holidays, err := s.queryHolidays(ctx)
	if err != nil {
		return err
	}
	s.refMu.Lock()
	s.holidays = holidays
	s.refMu.Unlock()
	return nil
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete holiday: %w", err)
	}
	holidays, err := s.queryHolidays(ctx)
	if err != nil {
		return err
	}
	s.refMu.Lock()
	s.holidays = holidays
	s.refMu.Unlock()
	return nil
}

// ListHolidays returns every holiday, oldest first.
func (s *Store) ListHolidays(_ context.Context) ([]generic.Holiday, error) {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	return append([]generic.Holiday{}, s.holidays...), nil
}

// IsWorkingDay is false on weekends and holidays. Served from the cache.
func (s *Store) IsWorkingDay(day generic.TimePoint) bool {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	cal := generic.HolidayCalendar{Holidays: s.holidays}
	return cal.IsWorkingDay(day)
}

func (s *Store) queryHolidays(ctx context.Context) ([]generic.Holiday, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, date, name, recurring FROM holidays ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var holidays []generic.Holiday
	for rows.Next() {
		var (
			h       generic.Holiday
			dateStr string
		)
		if err := rows.Scan(&h.ID, &dateStr, &h.Name, &h.Recurring); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		if h.Date, err = parseDate(dateStr); err != nil {
			return nil, fmt.Errorf("corrupt holiday date %q: %w", dateStr, err)
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}
