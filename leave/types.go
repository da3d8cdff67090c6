// Package leave implements the leave balance accounting engine: tenure-based
// accrual, sandwich-aware charging, the per-year balance ledger, the leave
// application state machine and the manual adjustment audit trail.
package leave

import (
	"fmt"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

// LeaveType is an entry of the leave-type catalog.
type LeaveType struct {
	ID           generic.LeaveTypeID
	Name         string
	Accrues      bool            // credited by the monthly accrual run
	CarryForward *generic.Amount // cap on days carried at the anniversary; nil = engine default
	Sandwich     bool            // weekends/holidays bounded by leave are charged
	AllowHalfDay bool
}

// Built-in catalog entries.
const (
	LeaveTypeAnnual generic.LeaveTypeID = "annual"
	LeaveTypeSick   generic.LeaveTypeID = "sick"
	LeaveTypeCasual generic.LeaveTypeID = "casual"
)

// =============================================================================
// APPLICATION STATUS
// =============================================================================

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
	StatusCancelled Status = "cancelled"
)

// ParseStatus converts a raw string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusApproved, StatusRejected, StatusWithdrawn, StatusCancelled:
		return st, nil
	}
	return "", generic.Invalid("status", "unknown application status %q", s)
}

type HalfDayPeriod string

const (
	HalfDayNone   HalfDayPeriod = ""
	HalfDayFirst  HalfDayPeriod = "first_half"
	HalfDaySecond HalfDayPeriod = "second_half"
)

// =============================================================================
// APPLICATION
// =============================================================================

// Application is a leave request filed by an employee.
//
// SandwichDeductedDays is the snapshot taken at approval: the chargeable days
// before LOP is subtracted. It is the only input to a later reversal.
type Application struct {
	ID            generic.ApplicationID
	EmployeeID    generic.EmployeeID
	LeaveTypeID   generic.LeaveTypeID
	StartDate     generic.TimePoint
	EndDate       generic.TimePoint
	DaysCount     generic.Amount
	IsHalfDay     bool
	HalfDayPeriod HalfDayPeriod
	LOPDays       generic.Amount
	Status        Status
	Reason        string
	Comments      string

	SandwichDeductedDays *generic.Amount
	IsSandwichLeave      *bool
	SandwichPairID       generic.ApplicationID

	ApprovedBy string
	ApprovedAt *time.Time
	ActedBy    string // last actor that changed the status

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Period returns the requested date range.
func (a Application) Period() generic.Period {
	return generic.Period{Start: a.StartDate, End: a.EndDate}
}

// BalanceYear is the ledger year the application is charged to.
func (a Application) BalanceYear() int { return a.StartDate.Year() }

// Debit is the amount removed from the balance by the approval snapshot:
// max(0, snapshot - LOP). Zero when no snapshot is held.
func (a Application) Debit() generic.Amount {
	if a.SandwichDeductedDays == nil {
		return generic.ZeroDays()
	}
	return a.SandwichDeductedDays.Sub(a.LOPDays).ClampZero()
}

func (a *Application) clearSnapshot() {
	a.SandwichDeductedDays = nil
	a.IsSandwichLeave = nil
	a.SandwichPairID = ""
}

// =============================================================================
// BALANCE
// =============================================================================

// BalanceKey identifies a balance row: one per employee, leave type and year.
type BalanceKey struct {
	EmployeeID  generic.EmployeeID
	LeaveTypeID generic.LeaveTypeID
	Year        int
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.EmployeeID, k.LeaveTypeID, k.Year)
}

// Balance is the running total for one BalanceKey. Remaining is never stored.
type Balance struct {
	ID string
	BalanceKey

	Allocated    generic.Amount
	Used         generic.Amount
	CarryForward generic.Amount // carried from the previous year, included in Allocated
	MonthlyRate  generic.Amount

	LastAccruedMonth generic.Month // accrual idempotency marker
	RolledOver       bool          // closed by the anniversary carry-forward

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBalance returns an unsaved zero balance for key.
func NewBalance(key BalanceKey) *Balance {
	return &Balance{
		BalanceKey:   key,
		Allocated:    generic.ZeroDays(),
		Used:         generic.ZeroDays(),
		CarryForward: generic.ZeroDays(),
		MonthlyRate:  generic.ZeroDays(),
	}
}

// Remaining is always Allocated - Used.
func (b Balance) Remaining() generic.Amount {
	return b.Allocated.Sub(b.Used)
}

// IsNew reports whether the row has never been persisted.
func (b Balance) IsNew() bool { return b.Version == 0 }

// =============================================================================
// ADJUSTMENT (audit trail row)
// =============================================================================

type AdjustmentType string

const (
	AdjustmentAdd      AdjustmentType = "add"
	AdjustmentSubtract AdjustmentType = "subtract"
)

func ParseAdjustmentType(s string) (AdjustmentType, error) {
	switch t := AdjustmentType(s); t {
	case AdjustmentAdd, AdjustmentSubtract:
		return t, nil
	}
	return "", generic.Invalid("type", "unknown adjustment type %q", s)
}

// Adjustment is an immutable record of one manual HR change to allocated days.
type Adjustment struct {
	ID                generic.AdjustmentID
	BalanceID         string
	EmployeeID        generic.EmployeeID
	LeaveTypeID       generic.LeaveTypeID
	Year              int
	Type              AdjustmentType
	Amount            generic.Amount
	Reason            string
	PreviousAllocated generic.Amount
	NewAllocated      generic.Amount
	AdjustedBy        string
	CreatedAt         time.Time
}

// =============================================================================
// EMPLOYEE (read from the directory collaborator)
// =============================================================================

type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeInactive EmployeeStatus = "inactive"
)

type Employee struct {
	ID        generic.EmployeeID
	Name      string
	Email     string
	JoinDate  generic.TimePoint
	Status    EmployeeStatus
	ManagerID generic.EmployeeID
}

func (e Employee) IsActive() bool { return e.Status == EmployeeActive }
