/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the leave engine's model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Employee:     EmployeeDTO, CreateEmployeeRequest
  Balance:      BalanceDTO, QuarterlyUsageDTO, TenureDTO
  Application:  ApplicationDTO, SubmitApplicationRequest, TransitionRequest, TransitionDTO
  Adjustment:   AdjustmentDTO, CreateAdjustmentRequest
  Batch runs:   AccrualRunRequest, AnniversaryRunRequest, AccrualResultDTO, CarryForwardResultDTO
  Calendar:     HolidayDTO, CreateHolidayRequest
  Scenarios:    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry validator/v10 struct tags. Shape checks (required,
  formats, enums) happen in decode(); business rules stay in the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/leavetype.go: LeaveTypeJSON
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

const timestampLayout = time.RFC3339

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	JoinDate  string `json:"join_date,omitempty"`
	Status    string `json:"status"`
	ManagerID string `json:"manager_id,omitempty"`
}

// CreateEmployeeRequest is the request to create or update an employee.
type CreateEmployeeRequest struct {
	ID        string `json:"id" validate:"required,max=64"`
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	JoinDate  string `json:"join_date" validate:"required,datetime=2006-01-02"`
	Status    string `json:"status" validate:"omitempty,oneof=active inactive"`
	ManagerID string `json:"manager_id"`
}

func toEmployeeDTO(e leave.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:        string(e.ID),
		Name:      e.Name,
		Email:     e.Email,
		Status:    string(e.Status),
		ManagerID: string(e.ManagerID),
	}
	if !e.JoinDate.IsZero() {
		dto.JoinDate = e.JoinDate.String()
	}
	return dto
}

// =============================================================================
// BALANCES
// =============================================================================

// BalanceDTO is one (employee, leave type, year) row.
type BalanceDTO struct {
	EmployeeID       string  `json:"employee_id"`
	LeaveTypeID      string  `json:"leave_type_id"`
	Year             int     `json:"year"`
	Allocated        float64 `json:"allocated_days"`
	Used             float64 `json:"used_days"`
	Remaining        float64 `json:"remaining_days"`
	CarryForward     float64 `json:"carry_forward_days"`
	MonthlyRate      float64 `json:"monthly_accrual_rate"`
	LastAccruedMonth string  `json:"last_accrued_month,omitempty"`
	RolledOver       bool    `json:"rolled_over"`
}

func toBalanceDTO(b leave.Balance) BalanceDTO {
	dto := BalanceDTO{
		EmployeeID:   string(b.EmployeeID),
		LeaveTypeID:  string(b.LeaveTypeID),
		Year:         b.Year,
		Allocated:    b.Allocated.Float(),
		Used:         b.Used.Float(),
		Remaining:    b.Remaining().Float(),
		CarryForward: b.CarryForward.Float(),
		MonthlyRate:  b.MonthlyRate.Float(),
		RolledOver:   b.RolledOver,
	}
	if !b.LastAccruedMonth.IsZero() {
		dto.LastAccruedMonth = b.LastAccruedMonth.String()
	}
	return dto
}

// QuarterlyUsageDTO reports approved usage per quarter.
type QuarterlyUsageDTO struct {
	EmployeeID  string  `json:"employee_id"`
	LeaveTypeID string  `json:"leave_type_id"`
	Year        int     `json:"year"`
	Q1          float64 `json:"q1"`
	Q2          float64 `json:"q2"`
	Q3          float64 `json:"q3"`
	Q4          float64 `json:"q4"`
	Total       float64 `json:"total"`
}

func toQuarterlyUsageDTO(u leave.QuarterlyUsage) QuarterlyUsageDTO {
	return QuarterlyUsageDTO{
		EmployeeID:  string(u.EmployeeID),
		LeaveTypeID: string(u.LeaveTypeID),
		Year:        u.Year,
		Q1:          u.Q1.Float(),
		Q2:          u.Q2.Float(),
		Q3:          u.Q3.Float(),
		Q4:          u.Q4.Float(),
		Total:       u.Total().Float(),
	}
}

// TenureDTO is the calculator output for one employee.
type TenureDTO struct {
	EmployeeID      string  `json:"employee_id"`
	JoinDate        string  `json:"join_date"`
	AsOf            string  `json:"as_of"`
	Months          int     `json:"tenure_months"`
	MonthlyRate     float64 `json:"monthly_accrual_rate"`
	CanCarryForward bool    `json:"can_carry_forward"`
	NextAnniversary string  `json:"next_anniversary"`
}

// =============================================================================
// APPLICATIONS
// =============================================================================

// ApplicationDTO represents a leave application in API responses.
type ApplicationDTO struct {
	ID                   string   `json:"id"`
	EmployeeID           string   `json:"employee_id"`
	LeaveTypeID          string   `json:"leave_type_id"`
	StartDate            string   `json:"start_date"`
	EndDate              string   `json:"end_date"`
	DaysCount            float64  `json:"days_count"`
	IsHalfDay            bool     `json:"is_half_day"`
	HalfDayPeriod        string   `json:"half_day_period,omitempty"`
	LOPDays              float64  `json:"lop_days"`
	Status               string   `json:"status"`
	Reason               string   `json:"reason,omitempty"`
	Comments             string   `json:"comments,omitempty"`
	SandwichDeductedDays *float64 `json:"sandwich_deducted_days,omitempty"`
	IsSandwichLeave      *bool    `json:"is_sandwich_leave,omitempty"`
	SandwichPairID       string   `json:"sandwich_pair_id,omitempty"`
	ApprovedBy           string   `json:"approved_by,omitempty"`
	ApprovedAt           string   `json:"approved_at,omitempty"`
	CreatedAt            string   `json:"created_at"`
	UpdatedAt            string   `json:"updated_at"`
}

func toApplicationDTO(a leave.Application) ApplicationDTO {
	dto := ApplicationDTO{
		ID:              string(a.ID),
		EmployeeID:      string(a.EmployeeID),
		LeaveTypeID:     string(a.LeaveTypeID),
		StartDate:       a.StartDate.String(),
		EndDate:         a.EndDate.String(),
		DaysCount:       a.DaysCount.Float(),
		IsHalfDay:       a.IsHalfDay,
		HalfDayPeriod:   string(a.HalfDayPeriod),
		LOPDays:         a.LOPDays.Float(),
		Status:          string(a.Status),
		Reason:          a.Reason,
		Comments:        a.Comments,
		IsSandwichLeave: a.IsSandwichLeave,
		SandwichPairID:  string(a.SandwichPairID),
		ApprovedBy:      a.ApprovedBy,
		CreatedAt:       a.CreatedAt.Format(timestampLayout),
		UpdatedAt:       a.UpdatedAt.Format(timestampLayout),
	}
	if a.SandwichDeductedDays != nil {
		v := a.SandwichDeductedDays.Float()
		dto.SandwichDeductedDays = &v
	}
	if a.ApprovedAt != nil {
		dto.ApprovedAt = a.ApprovedAt.Format(timestampLayout)
	}
	return dto
}

// SubmitApplicationRequest is the body of POST /api/employees/{id}/applications.
type SubmitApplicationRequest struct {
	LeaveTypeID   string   `json:"leave_type_id" validate:"required"`
	StartDate     string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string   `json:"end_date" validate:"required,datetime=2006-01-02"`
	DaysCount     *float64 `json:"days_count" validate:"omitempty,gt=0"`
	IsHalfDay     bool     `json:"is_half_day"`
	HalfDayPeriod string   `json:"half_day_period" validate:"omitempty,oneof=first_half second_half"`
	LOPDays       float64  `json:"lop_days" validate:"gte=0"`
	Reason        string   `json:"reason" validate:"max=500"`
}

// TransitionRequest is the body of POST /api/applications/{id}/status.
type TransitionRequest struct {
	Status   string `json:"status" validate:"required,oneof=pending approved rejected withdrawn cancelled"`
	Actor    string `json:"actor" validate:"required"`
	Comments string `json:"comments" validate:"max=500"`
}

// TransitionDTO is the outcome of a status change.
type TransitionDTO struct {
	Application ApplicationDTO `json:"application"`
	Balance     BalanceDTO     `json:"balance"`
	Effect      string         `json:"effect"`
	Warning     string         `json:"warning,omitempty"`
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// AdjustmentDTO is one audit row.
type AdjustmentDTO struct {
	ID                string  `json:"id"`
	BalanceID         string  `json:"balance_id"`
	EmployeeID        string  `json:"employee_id"`
	LeaveTypeID       string  `json:"leave_type_id"`
	Year              int     `json:"year"`
	Type              string  `json:"adjustment_type"`
	Amount            float64 `json:"days"`
	Reason            string  `json:"reason"`
	PreviousAllocated float64 `json:"previous_allocated"`
	NewAllocated      float64 `json:"new_allocated"`
	AdjustedBy        string  `json:"adjusted_by"`
	CreatedAt         string  `json:"created_at"`
}

func toAdjustmentDTO(a leave.Adjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:                string(a.ID),
		BalanceID:         a.BalanceID,
		EmployeeID:        string(a.EmployeeID),
		LeaveTypeID:       string(a.LeaveTypeID),
		Year:              a.Year,
		Type:              string(a.Type),
		Amount:            a.Amount.Float(),
		Reason:            a.Reason,
		PreviousAllocated: a.PreviousAllocated.Float(),
		NewAllocated:      a.NewAllocated.Float(),
		AdjustedBy:        a.AdjustedBy,
		CreatedAt:         a.CreatedAt.Format(timestampLayout),
	}
}

// CreateAdjustmentRequest is the body of POST /api/admin/adjustments.
type CreateAdjustmentRequest struct {
	EmployeeID  string  `json:"employee_id" validate:"required"`
	LeaveTypeID string  `json:"leave_type_id" validate:"required"`
	Year        int     `json:"year" validate:"required,gte=1900,lte=9999"`
	Type        string  `json:"adjustment_type" validate:"required,oneof=add subtract"`
	Days        float64 `json:"days" validate:"required,gt=0"`
	Reason      string  `json:"reason" validate:"required,max=500"`
	Actor       string  `json:"actor" validate:"required"`
}

// =============================================================================
// BATCH RUNS
// =============================================================================

// AccrualRunRequest triggers a monthly accrual. Empty month = current month.
type AccrualRunRequest struct {
	Month string `json:"month" validate:"omitempty,datetime=2006-01"`
}

// AnniversaryRunRequest triggers anniversary carry-forward. Empty date = today.
type AnniversaryRunRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type AccrualResultDTO struct {
	EmployeeID   string  `json:"employee_id"`
	LeaveTypeID  string  `json:"leave_type_id"`
	Month        string  `json:"month"`
	Success      bool    `json:"success"`
	Credited     bool    `json:"credited"`
	Rate         float64 `json:"rate"`
	NewAllocated float64 `json:"new_allocated"`
	Error        string  `json:"error,omitempty"`
}

func toAccrualResultDTO(r leave.AccrualResult) AccrualResultDTO {
	dto := AccrualResultDTO{
		EmployeeID:   string(r.EmployeeID),
		LeaveTypeID:  string(r.LeaveTypeID),
		Month:        r.Month.String(),
		Success:      r.Success,
		Credited:     r.Credited,
		Rate:         r.Rate.Float(),
		NewAllocated: r.NewAllocated.Float(),
	}
	if r.Err != nil {
		dto.Error = r.Err.Error()
	}
	return dto
}

type CarryForwardResultDTO struct {
	EmployeeID  string  `json:"employee_id"`
	LeaveTypeID string  `json:"leave_type_id"`
	FromYear    int     `json:"from_year"`
	Eligible    bool    `json:"eligible"`
	Success     bool    `json:"success"`
	Skipped     bool    `json:"skipped"`
	Carried     float64 `json:"carried_days"`
	Error       string  `json:"error,omitempty"`
}

func toCarryForwardResultDTO(r leave.CarryForwardRunResult) CarryForwardResultDTO {
	dto := CarryForwardResultDTO{
		EmployeeID:  string(r.EmployeeID),
		LeaveTypeID: string(r.LeaveTypeID),
		FromYear:    r.FromYear,
		Eligible:    r.Eligible,
		Success:     r.Success,
		Skipped:     r.Skipped,
		Carried:     r.Carried.Float(),
	}
	if r.Err != nil {
		dto.Error = r.Err.Error()
	}
	return dto
}

// =============================================================================
// CALENDAR
// =============================================================================

type HolidayDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

func toHolidayDTO(h generic.Holiday) HolidayDTO {
	return HolidayDTO{ID: h.ID, Date: h.Date.String(), Name: h.Name, Recurring: h.Recurring}
}

type CreateHolidayRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Name      string `json:"name" validate:"required"`
	Recurring bool   `json:"recurring"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}
