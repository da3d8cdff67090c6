// Package memory provides an in-memory leave.TxStore, also serving as the
// employee directory, holiday calendar and leave-type catalog in tests and dev.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	balances     map[leave.BalanceKey]leave.Balance
	applications map[generic.ApplicationID]leave.Application
	adjustments  []leave.Adjustment
	progress     leave.BatchProgress

	// Reference data has its own lock so the calendar and catalog stay
	// readable while a transaction holds mu.
	refMu      sync.RWMutex
	employees  map[generic.EmployeeID]leave.Employee
	leaveTypes map[generic.LeaveTypeID]leave.LeaveType
	holidays   []generic.Holiday
}

func New() *Memory {
	return &Memory{
		balances:     make(map[leave.BalanceKey]leave.Balance),
		applications: make(map[generic.ApplicationID]leave.Application),
		employees:    make(map[generic.EmployeeID]leave.Employee),
		leaveTypes:   make(map[generic.LeaveTypeID]leave.LeaveType),
	}
}

func (m *Memory) GetBalance(_ context.Context, key leave.BalanceKey) (*leave.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBalanceLocked(key), nil
}

func (m *Memory) SaveBalance(_ context.Context, b *leave.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveBalanceLocked(b)
}

func (m *Memory) ListBalances(_ context.Context, employeeID generic.EmployeeID, year int) ([]leave.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listBalancesLocked(employeeID, year), nil
}

func (m *Memory) GetApplication(_ context.Context, id generic.ApplicationID) (*leave.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getApplicationLocked(id), nil
}

func (m *Memory) SaveApplication(_ context.Context, a *leave.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveApplicationLocked(a)
}

func (m *Memory) ListApplications(_ context.Context, filter leave.ApplicationFilter) ([]leave.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listApplicationsLocked(filter), nil
}

// AppendAdjustment adds an audit row. Append-only.
func (m *Memory) AppendAdjustment(_ context.Context, adj leave.Adjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendAdjustmentLocked(adj)
}

func (m *Memory) appendAdjustmentLocked(adj leave.Adjustment) error {
	for _, existing := range m.adjustments {
		if existing.ID == adj.ID {
			return fmt.Errorf("adjustment %s: %w", adj.ID, generic.ErrAppendOnly)
		}
	}
	m.adjustments = append(m.adjustments, adj)
	return nil
}

func (m *Memory) ListAdjustments(_ context.Context, filter leave.AdjustmentFilter) ([]leave.Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAdjustmentsLocked(filter), nil
}

// =============================================================================
// LOCKED HELPERS - Callers hold mu
// =============================================================================

func (m *Memory) getBalanceLocked(key leave.BalanceKey) *leave.Balance {
	b, ok := m.balances[key]
	if !ok {
		return nil
	}
	return &b
}

func (m *Memory) saveBalanceLocked(b *leave.Balance) error {
	stored, exists := m.balances[b.BalanceKey]
	if b.IsNew() && exists {
		return generic.ErrConcurrentModification
	}
	if !b.IsNew() && (!exists || stored.Version != b.Version) {
		return generic.ErrConcurrentModification
	}
	b.Version++
	m.balances[b.BalanceKey] = *b
	return nil
}

func (m *Memory) listBalancesLocked(employeeID generic.EmployeeID, year int) []leave.Balance {
	var result []leave.Balance
	for _, b := range m.balances {
		if b.EmployeeID != employeeID {
			continue
		}
		if year != 0 && b.Year != year {
			continue
		}
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year < result[j].Year
		}
		return result[i].LeaveTypeID < result[j].LeaveTypeID
	})
	return result
}

func (m *Memory) getApplicationLocked(id generic.ApplicationID) *leave.Application {
	a, ok := m.applications[id]
	if !ok {
		return nil
	}
	return &a
}

func (m *Memory) saveApplicationLocked(a *leave.Application) error {
	stored, exists := m.applications[a.ID]
	if a.Version == 0 && exists {
		return generic.ErrConcurrentModification
	}
	if a.Version != 0 && (!exists || stored.Version != a.Version) {
		return generic.ErrConcurrentModification
	}
	a.Version++
	m.applications[a.ID] = *a
	return nil
}

func (m *Memory) listApplicationsLocked(filter leave.ApplicationFilter) []leave.Application {
	var result []leave.Application
	for _, a := range m.applications {
		if filter.Matches(a) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartDate.Equal(result[j].StartDate) {
			return result[i].StartDate.Before(result[j].StartDate)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (m *Memory) listAdjustmentsLocked(filter leave.AdjustmentFilter) []leave.Adjustment {
	var result []leave.Adjustment
	for _, adj := range m.adjustments {
		if filter.Matches(adj) {
			result = append(result, adj)
		}
	}
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Writers are serialized: the lock is held for the whole of fn.
func (m *Memory) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	balances     map[leave.BalanceKey]leave.Balance
	applications map[generic.ApplicationID]leave.Application
	adjustments  []leave.Adjustment
}

func (m *Memory) snapshot() memorySnapshot {
	balances := make(map[leave.BalanceKey]leave.Balance, len(m.balances))
	for k, v := range m.balances {
		balances[k] = v
	}
	apps := make(map[generic.ApplicationID]leave.Application, len(m.applications))
	for k, v := range m.applications {
		apps[k] = v
	}
	return memorySnapshot{
		balances:     balances,
		applications: apps,
		adjustments:  append([]leave.Adjustment{}, m.adjustments...),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.balances = s.balances
	m.applications = s.applications
	m.adjustments = s.adjustments
}

// txView is the Store handed to WithTx callbacks. The parent lock is held.
type txView struct {
	parent *Memory
}

func (tv *txView) GetBalance(_ context.Context, key leave.BalanceKey) (*leave.Balance, error) {
	return tv.parent.getBalanceLocked(key), nil
}

func (tv *txView) SaveBalance(_ context.Context, b *leave.Balance) error {
	return tv.parent.saveBalanceLocked(b)
}

func (tv *txView) ListBalances(_ context.Context, employeeID generic.EmployeeID, year int) ([]leave.Balance, error) {
	return tv.parent.listBalancesLocked(employeeID, year), nil
}

func (tv *txView) GetApplication(_ context.Context, id generic.ApplicationID) (*leave.Application, error) {
	return tv.parent.getApplicationLocked(id), nil
}

func (tv *txView) SaveApplication(_ context.Context, a *leave.Application) error {
	return tv.parent.saveApplicationLocked(a)
}

func (tv *txView) ListApplications(_ context.Context, filter leave.ApplicationFilter) ([]leave.Application, error) {
	return tv.parent.listApplicationsLocked(filter), nil
}

func (tv *txView) AppendAdjustment(_ context.Context, adj leave.Adjustment) error {
	return tv.parent.appendAdjustmentLocked(adj)
}

func (tv *txView) ListAdjustments(_ context.Context, filter leave.AdjustmentFilter) ([]leave.Adjustment, error) {
	return tv.parent.listAdjustmentsLocked(filter), nil
}

// =============================================================================
// REFERENCE DATA - Directory, Calendar, LeaveTypeCatalog
// =============================================================================

func (m *Memory) PutEmployee(e leave.Employee) {
	m.refMu.Lock()
	defer m.refMu.Unlock()
	m.employees[e.ID] = e
}

func (m *Memory) GetEmployee(_ context.Context, id generic.EmployeeID) (*leave.Employee, error) {
	m.refMu.RLock()
	defer m.refMu.RUnlock()
	e, ok := m.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) ListActiveEmployees(_ context.Context) ([]leave.Employee, error) {
	m.refMu.RLock()
	defer m.refMu.RUnlock()
	var result []leave.Employee
	for _, e := range m.employees {
		if e.IsActive() {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) PutLeaveType(lt leave.LeaveType) {
	m.refMu.Lock()
	defer m.refMu.Unlock()
	m.leaveTypes[lt.ID] = lt
}

func (m *Memory) GetLeaveType(_ context.Context, id generic.LeaveTypeID) (*leave.LeaveType, error) {
	m.refMu.RLock()
	defer m.refMu.RUnlock()
	lt, ok := m.leaveTypes[id]
	if !ok {
		return nil, nil
	}
	return &lt, nil
}

func (m *Memory) ListLeaveTypes(_ context.Context) ([]leave.LeaveType, error) {
	m.refMu.RLock()
	defer m.refMu.RUnlock()
	result := make([]leave.LeaveType, 0, len(m.leaveTypes))
	for _, lt := range m.leaveTypes {
		result = append(result, lt)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) AddHoliday(h generic.Holiday) {
	m.refMu.Lock()
	defer m.refMu.Unlock()
	m.holidays = append(m.holidays, h)
}

func (m *Memory) ListHolidays(_ context.Context) ([]generic.Holiday, error) {
	m.refMu.RLock()
	defer m.refMu.RUnlock()
	return append([]generic.Holiday{}, m.holidays...), nil
}

// IsWorkingDay is false on weekends and holidays.
func (m *Memory) IsWorkingDay(day generic.TimePoint) bool {
	m.refMu.RLock()
	defer m.refMu.RUnlock()
	cal := generic.HolidayCalendar{Holidays: m.holidays}
	return cal.IsWorkingDay(day)
}

// =============================================================================
// BATCH PROGRESS (leave.ProgressStore interface)
// =============================================================================

func (m *Memory) LoadBatchProgress(_ context.Context) (leave.BatchProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.progress, nil
}

func (m *Memory) SaveBatchProgress(_ context.Context, p leave.BatchProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = p
	return nil
}
