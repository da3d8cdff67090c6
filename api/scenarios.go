/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario creates an employee and drives the engine
	through one of the core ledger behaviours.

AVAILABLE SCENARIOS:

	senior-accrual:    Joined 14 months ago, monthly accrual credits 2.0 days
	lop-round-trip:    3 days with 0.9 LOP approved then withdrawn (2.1 each way)
	sandwich-weekend:  Monday approved, then the Friday before it
	manual-subtract:   Allocated 10, HR subtracts 5, one audit row
	restore-floor:     Restore larger than used floors at zero with a warning

HOW SCENARIOS WORK:
 1. Reset database (clear employees, applications, balances, audit rows)
 2. Make sure the leave-type catalog exists
 3. Create the employee
 4. Drive the engine (accrual, submit, transition, adjust)
 5. Return the key numbers so the UI or a test can check them

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "sandwich-weekend"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: shared helpers
  - factory/leavetype.go: default catalog
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

const (
	scenarioEmployee generic.EmployeeID = "demo-employee"
	scenarioActor                       = "demo-hr"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "senior-accrual",
		Name:        "Senior Accrual",
		Description: "Employee with 14 months of tenure accrues 2.0 days for the month",
	},
	{
		ID:          "lop-round-trip",
		Name:        "LOP Round Trip",
		Description: "3-day application with 0.9 LOP days debits and restores 2.1 days",
	},
	{
		ID:          "sandwich-weekend",
		Name:        "Sandwich Weekend",
		Description: "Friday approved after the following Monday bears the bridged weekend",
	},
	{
		ID:          "manual-subtract",
		Name:        "Manual Subtract",
		Description: "HR subtracts 5 of 10 allocated days, leaving one audit row",
	},
	{
		ID:          "restore-floor",
		Name:        "Restore Floor",
		Description: "Withdrawing after an external correction floors used days at zero",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context) (map[string]any, error)

var scenarioLoaders = map[string]scenarioLoader{
	"senior-accrual":   (*Handler).loadSeniorAccrualScenario,
	"lop-round-trip":   (*Handler).loadLOPRoundTripScenario,
	"sandwich-weekend": (*Handler).loadSandwichWeekendScenario,
	"manual-subtract":  (*Handler).loadManualSubtractScenario,
	"restore-floor":    (*Handler).loadRestoreFloorScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.scenario()
	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		h.fail(w, "Unknown scenario", generic.Invalid("scenario_id", "unknown scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		h.fail(w, "Failed to reset database", err)
		return
	}
	if err := h.ensureCatalog(ctx); err != nil {
		h.fail(w, "Failed to seed leave types", err)
		return
	}

	result, err := load(h, ctx)
	if err != nil {
		h.fail(w, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}
	h.setCurrentScenario(req.ScenarioID)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"result":   result,
	})
}

// ResetDatabase clears all scenario data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.fail(w, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.setCurrentScenario("")
	return nil
}

// ensureCatalog installs the built-in leave types when the catalog is empty.
func (h *Handler) ensureCatalog(ctx context.Context) error {
	existing, err := h.Store.ListLeaveTypes(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	types, err := h.Factory.ParseLeaveTypes(factory.DefaultLeaveTypesJSON)
	if err != nil {
		return err
	}
	for _, lt := range types {
		if err := h.Store.SaveLeaveType(ctx, lt); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) createScenarioEmployee(ctx context.Context, joinDate generic.TimePoint) error {
	return h.Store.SaveEmployee(ctx, leave.Employee{
		ID:       scenarioEmployee,
		Name:     "Demo Employee",
		Email:    "demo@example.com",
		JoinDate: joinDate,
		Status:   leave.EmployeeActive,
	})
}

// nextWeekday returns the first day on or after from that falls on wd.
func nextWeekday(from generic.TimePoint, wd time.Weekday) generic.TimePoint {
	d := from
	for d.Weekday() != wd {
		d = d.AddDays(1)
	}
	return d
}

// scenarioWeek is a Monday-to-Friday week at least a week out whose
// working days carry no holidays. The store was just reset, so any week works.
func (h *Handler) scenarioWeek() generic.TimePoint {
	return nextWeekday(generic.DayOf(h.now()).AddDays(7), time.Monday)
}

func (h *Handler) submitAndApprove(ctx context.Context, in leave.SubmitInput) (*leave.TransitionResult, error) {
	in.EmployeeID = scenarioEmployee
	if in.LeaveTypeID == "" {
		in.LeaveTypeID = leave.LeaveTypeAnnual
	}
	app, err := h.Engine.SubmitApplication(ctx, in)
	if err != nil {
		return nil, err
	}
	return h.transition(ctx, app.ID, leave.StatusApproved)
}

func (h *Handler) transition(ctx context.Context, id generic.ApplicationID, status leave.Status) (*leave.TransitionResult, error) {
	return h.Engine.TransitionApplication(ctx, leave.TransitionInput{
		ApplicationID: id,
		Status:        status,
		Actor:         scenarioActor,
		Comments:      "demo scenario",
	})
}

func (h *Handler) loadSeniorAccrualScenario(ctx context.Context) (map[string]any, error) {
	today := generic.DayOf(h.now())
	if err := h.createScenarioEmployee(ctx, today.AddMonths(-14)); err != nil {
		return nil, err
	}
	month := generic.MonthOf(today)
	if _, err := h.Engine.RunMonthlyAccrual(ctx, month); err != nil {
		return nil, err
	}
	b, err := h.Engine.GetBalance(ctx, scenarioEmployee, leave.LeaveTypeAnnual, month.Year)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"employee_id":    scenarioEmployee,
		"month":          month.String(),
		"allocated_days": b.Allocated.Float(),
		"monthly_rate":   b.MonthlyRate.Float(),
	}, nil
}

func (h *Handler) loadLOPRoundTripScenario(ctx context.Context) (map[string]any, error) {
	today := generic.DayOf(h.now())
	if err := h.createScenarioEmployee(ctx, today.AddMonths(-14)); err != nil {
		return nil, err
	}
	monday := h.scenarioWeek()
	approved, err := h.submitAndApprove(ctx, leave.SubmitInput{
		StartDate: monday,
		EndDate:   monday.AddDays(2),
		LOPDays:   generic.Days(0.9),
		Reason:    "family event",
	})
	if err != nil {
		return nil, err
	}
	withdrawn, err := h.transition(ctx, approved.Application.ID, leave.StatusWithdrawn)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"application_id":      approved.Application.ID,
		"used_after_approval": approved.Balance.Used.Float(),
		"used_after_withdraw": withdrawn.Balance.Used.Float(),
	}, nil
}

func (h *Handler) loadSandwichWeekendScenario(ctx context.Context) (map[string]any, error) {
	today := generic.DayOf(h.now())
	if err := h.createScenarioEmployee(ctx, today.AddMonths(-14)); err != nil {
		return nil, err
	}
	friday := h.scenarioWeek().AddDays(4)
	monday := friday.AddDays(3)

	mon, err := h.submitAndApprove(ctx, leave.SubmitInput{StartDate: monday, EndDate: monday, Reason: "long weekend"})
	if err != nil {
		return nil, err
	}
	fri, err := h.submitAndApprove(ctx, leave.SubmitInput{StartDate: friday, EndDate: friday, Reason: "long weekend"})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"monday_application_id": mon.Application.ID,
		"friday_application_id": fri.Application.ID,
		"monday_charged":        mon.Application.SandwichDeductedDays.Float(),
		"friday_charged":        fri.Application.SandwichDeductedDays.Float(),
		"used_days":             fri.Balance.Used.Float(),
	}, nil
}

func (h *Handler) loadManualSubtractScenario(ctx context.Context) (map[string]any, error) {
	today := generic.DayOf(h.now())
	if err := h.createScenarioEmployee(ctx, today.AddMonths(-14)); err != nil {
		return nil, err
	}
	adjust := func(typ leave.AdjustmentType, days float64, reason string) (*leave.Balance, *leave.Adjustment, error) {
		return h.Engine.AdjustBalance(ctx, leave.AdjustInput{
			EmployeeID:  scenarioEmployee,
			LeaveTypeID: leave.LeaveTypeAnnual,
			Year:        today.Year(),
			Type:        typ,
			Amount:      generic.Days(days),
			Reason:      reason,
			Actor:       scenarioActor,
		})
	}
	if _, _, err := adjust(leave.AdjustmentAdd, 10, "opening balance"); err != nil {
		return nil, err
	}
	b, adj, err := adjust(leave.AdjustmentSubtract, 5, "correction")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"adjustment_id":      adj.ID,
		"previous_allocated": adj.PreviousAllocated.Float(),
		"new_allocated":      adj.NewAllocated.Float(),
		"allocated_days":     b.Allocated.Float(),
	}, nil
}

func (h *Handler) loadRestoreFloorScenario(ctx context.Context) (map[string]any, error) {
	today := generic.DayOf(h.now())
	if err := h.createScenarioEmployee(ctx, today.AddMonths(-14)); err != nil {
		return nil, err
	}
	monday := h.scenarioWeek()
	approved, err := h.submitAndApprove(ctx, leave.SubmitInput{StartDate: monday, EndDate: monday.AddDays(2)})
	if err != nil {
		return nil, err
	}

	// Simulate an out-of-band correction that left used below the snapshot.
	b, err := h.Store.GetBalance(ctx, approved.Balance.BalanceKey)
	if err != nil {
		return nil, err
	}
	b.Used = generic.Days(1)
	if err := h.Store.SaveBalance(ctx, b); err != nil {
		return nil, err
	}

	withdrawn, err := h.transition(ctx, approved.Application.ID, leave.StatusWithdrawn)
	if err != nil {
		return nil, err
	}
	result := map[string]any{
		"application_id": approved.Application.ID,
		"used_days":      withdrawn.Balance.Used.Float(),
	}
	if withdrawn.Warning != nil {
		result["warning"] = withdrawn.Warning.String()
	}
	return result, nil
}
