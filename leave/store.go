/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the interface between the engine and the database, plus the narrow
  contracts of the external collaborators (directory, calendar, notifications).

KEY INTERFACES:
  Store:            Balances, applications, adjustments
  TxStore:          Store + WithTx (one atomic unit per triggering event)
  Directory:        Employee join date / status / manager
  Calendar:         Working-day lookup for the sandwich calculator
  LeaveTypeCatalog: Known leave types
  ProgressStore:    How far the batch scheduler got, across restarts
  Notifier:         Fire-and-forget events

LOCKING:
  SaveBalance and SaveApplication are optimistic: a row whose Version changed
  since it was read fails with generic.ErrConcurrentModification. Inside
  WithTx the implementations additionally serialize writers, so two events
  touching the same balance row never interleave their read-modify-write.

APPEND-ONLY:
  Adjustments have AppendAdjustment and List only. No update, no delete.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - store/memory: In-memory for tests and dev
*/
package leave

import (
	"context"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// GetBalance returns nil, nil when the row does not exist yet.
	GetBalance(ctx context.Context, key BalanceKey) (*Balance, error)

	// SaveBalance inserts a new row (Version 0) or updates an existing one
	// if its Version is unchanged. On success b.Version is advanced.
	SaveBalance(ctx context.Context, b *Balance) error

	// ListBalances returns an employee's rows; year 0 means all years.
	ListBalances(ctx context.Context, employeeID generic.EmployeeID, year int) ([]Balance, error)

	// GetApplication returns nil, nil when the application does not exist.
	GetApplication(ctx context.Context, id generic.ApplicationID) (*Application, error)

	// SaveApplication follows the same optimistic rule as SaveBalance.
	SaveApplication(ctx context.Context, a *Application) error

	ListApplications(ctx context.Context, filter ApplicationFilter) ([]Application, error)

	AppendAdjustment(ctx context.Context, adj Adjustment) error
	ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]Adjustment, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// ApplicationFilter selects applications. Zero fields do not filter.
// From/To select applications whose date range overlaps [From, To].
type ApplicationFilter struct {
	EmployeeID generic.EmployeeID
	Statuses   []Status
	From       *generic.TimePoint
	To         *generic.TimePoint
}

// Matches reports whether a passes the filter. Stores without a query
// language use it directly.
func (f ApplicationFilter) Matches(a Application) bool {
	if f.EmployeeID != "" && a.EmployeeID != f.EmployeeID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if a.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && a.EndDate.Before(*f.From) {
		return false
	}
	if f.To != nil && a.StartDate.After(*f.To) {
		return false
	}
	return true
}

// AdjustmentFilter selects audit rows. From/To bound CreatedAt, inclusive.
type AdjustmentFilter struct {
	EmployeeID  generic.EmployeeID
	LeaveTypeID generic.LeaveTypeID
	From        *time.Time
	To          *time.Time
}

func (f AdjustmentFilter) Matches(a Adjustment) bool {
	if f.EmployeeID != "" && a.EmployeeID != f.EmployeeID {
		return false
	}
	if f.LeaveTypeID != "" && a.LeaveTypeID != f.LeaveTypeID {
		return false
	}
	if f.From != nil && a.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && a.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Directory is the identity/org service.
type Directory interface {
	// GetEmployee returns nil, nil for an unknown employee.
	GetEmployee(ctx context.Context, id generic.EmployeeID) (*Employee, error)
	ListActiveEmployees(ctx context.Context) ([]Employee, error)
}

// Calendar is the holiday service.
type Calendar interface {
	IsWorkingDay(day generic.TimePoint) bool
}

type LeaveTypeCatalog interface {
	// GetLeaveType returns nil, nil for an unknown leave type.
	GetLeaveType(ctx context.Context, id generic.LeaveTypeID) (*LeaveType, error)
	ListLeaveTypes(ctx context.Context) ([]LeaveType, error)
}

// BatchProgress is the last accrual month and anniversary day a scheduler
// finished. Zero fields mean nothing has run yet.
type BatchProgress struct {
	LastMonth generic.Month
	LastDay   generic.TimePoint
}

// ProgressStore keeps BatchProgress across process restarts so months and
// days missed while the process was down can be replayed in order.
type ProgressStore interface {
	LoadBatchProgress(ctx context.Context) (BatchProgress, error)
	SaveBatchProgress(ctx context.Context, p BatchProgress) error
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type EventType string

const (
	EventApplicationSubmitted  EventType = "application.submitted"
	EventBalanceAdjusted       EventType = "balance.adjusted"
	EventBalanceAccrued        EventType = "balance.accrued"
	EventBalanceCarriedForward EventType = "balance.carried_forward"
)

// ApplicationEvent is the event type for a transition into status.
func ApplicationEvent(status Status) EventType {
	return EventType("application." + string(status))
}

type Event struct {
	Type       EventType
	EmployeeID generic.EmployeeID
	Payload    map[string]any
	OccurredAt time.Time
}

// Notifier delivers events. Failures are logged by the engine and never
// roll back a ledger transaction.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }
