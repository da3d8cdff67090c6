/*
engine.go - The engine's API surface

PURPOSE:
  Entry point for the application layer. Every operation that mutates a
  balance runs in exactly one store transaction, retried a bounded number of
  times when it loses an optimistic-locking race.

OPERATIONS:
  SubmitApplication      no ledger effect
  TransitionApplication  state machine + sandwich snapshot + ledger
  AdjustBalance          manual HR change + audit row
  RunMonthlyAccrual      see accrual.go
  RunAnniversary         see accrual.go
  GetBalance             read {allocated, used, remaining, carry_forward}

NOTIFICATIONS:
  Sent after commit. A failing notifier is logged and ignored.

SEE ALSO:
  - statemachine.go: Allowed transitions
  - sandwich.go: Chargeable day computation
  - ledger.go: Mutation rules
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
)

// Config wires the engine. Store, Directory and LeaveTypes are required.
type Config struct {
	Store      TxStore
	Directory  Directory
	Calendar   Calendar
	LeaveTypes LeaveTypeCatalog
	Notifier   Notifier
	Logger     *zap.Logger

	Rates           *TenureRates
	CarryForwardCap *generic.Amount // default cap when a leave type has none
	Retry           *generic.RetryPolicy
	Concurrency     int // employees processed in parallel by batch runs
	Now             func() time.Time
}

// Engine is the leave balance accounting engine.
type Engine struct {
	store      TxStore
	directory  Directory
	calendar   Calendar
	leaveTypes LeaveTypeCatalog
	notifier   Notifier
	logger     *zap.Logger

	rates           TenureRates
	carryForwardCap generic.Amount
	retry           generic.RetryPolicy
	concurrency     int
	now             func() time.Time
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		store:           cfg.Store,
		directory:       cfg.Directory,
		calendar:        cfg.Calendar,
		leaveTypes:      cfg.LeaveTypes,
		notifier:        cfg.Notifier,
		logger:          cfg.Logger,
		rates:           DefaultTenureRates(),
		carryForwardCap: generic.Days(10),
		retry:           generic.DefaultRetryPolicy,
		concurrency:     cfg.Concurrency,
		now:             cfg.Now,
	}
	if e.calendar == nil {
		e.calendar = generic.WeekendCalendar{}
	}
	if e.notifier == nil {
		e.notifier = NopNotifier{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.Named("leave.engine")
	if cfg.Rates != nil {
		e.rates = *cfg.Rates
	}
	if cfg.CarryForwardCap != nil {
		e.carryForwardCap = *cfg.CarryForwardCap
	}
	if cfg.Retry != nil {
		e.retry = *cfg.Retry
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *Engine) ledgerFor(store Store) *Ledger {
	l := NewLedger(store, e.logger)
	l.now = e.now
	return l
}

func (e *Engine) notify(ctx context.Context, typ EventType, employeeID generic.EmployeeID, payload map[string]any) {
	event := Event{Type: typ, EmployeeID: employeeID, Payload: payload, OccurredAt: e.now().UTC()}
	if err := e.notifier.Notify(ctx, event); err != nil {
		e.logger.Warn("notification failed",
			zap.String("event", string(typ)),
			zap.String("employee_id", string(employeeID)),
			zap.Error(err),
		)
	}
}

func (e *Engine) employee(ctx context.Context, id generic.EmployeeID) (*Employee, error) {
	if id == "" {
		return nil, generic.Invalid("employee_id", "is required")
	}
	emp, err := e.directory.GetEmployee(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get employee %s: %w", id, err)
	}
	if emp == nil {
		return nil, &generic.NotFoundError{Kind: "employee", ID: string(id)}
	}
	return emp, nil
}

func (e *Engine) leaveType(ctx context.Context, id generic.LeaveTypeID) (*LeaveType, error) {
	if id == "" {
		return nil, generic.Invalid("leave_type_id", "is required")
	}
	lt, err := e.leaveTypes.GetLeaveType(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get leave type %s: %w", id, err)
	}
	if lt == nil {
		return nil, generic.Invalid("leave_type_id", "unknown leave type %q", id)
	}
	return lt, nil
}

// =============================================================================
// SUBMIT
// =============================================================================

type SubmitInput struct {
	EmployeeID    generic.EmployeeID
	LeaveTypeID   generic.LeaveTypeID
	StartDate     generic.TimePoint
	EndDate       generic.TimePoint
	DaysCount     *generic.Amount // nil = working days in the range (0.5 for a half day)
	IsHalfDay     bool
	HalfDayPeriod HalfDayPeriod
	LOPDays       generic.Amount
	Reason        string
}

// SubmitApplication files a pending application. No ledger effect.
func (e *Engine) SubmitApplication(ctx context.Context, in SubmitInput) (*Application, error) {
	e.logger.Debug("submit application requested",
		zap.String("employee_id", string(in.EmployeeID)),
		zap.String("leave_type_id", string(in.LeaveTypeID)),
		zap.Stringer("start_date", in.StartDate),
		zap.Stringer("end_date", in.EndDate),
	)

	days, err := e.validateSubmit(ctx, in)
	if err != nil {
		e.logger.Warn("submit application validation failed", zap.Error(err))
		return nil, err
	}

	now := e.now().UTC()
	app := &Application{
		ID:            generic.ApplicationID(uuid.NewString()),
		EmployeeID:    in.EmployeeID,
		LeaveTypeID:   in.LeaveTypeID,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		DaysCount:     days,
		IsHalfDay:     in.IsHalfDay,
		HalfDayPeriod: in.HalfDayPeriod,
		LOPDays:       in.LOPDays,
		Status:        StatusPending,
		Reason:        in.Reason,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = generic.Retry(ctx, e.retry, func() error {
		return e.store.WithTx(ctx, func(tx Store) error {
			if err := checkOverlap(ctx, tx, app); err != nil {
				return err
			}
			return tx.SaveApplication(ctx, app)
		})
	})
	if err != nil {
		e.logger.Warn("submit application failed", zap.Error(err))
		return nil, err
	}

	e.logger.Info("submit application success",
		zap.String("application_id", string(app.ID)),
		zap.String("employee_id", string(app.EmployeeID)),
	)
	e.notify(ctx, EventApplicationSubmitted, app.EmployeeID, map[string]any{
		"application_id": app.ID,
		"leave_type_id":  app.LeaveTypeID,
		"start_date":     app.StartDate.String(),
		"end_date":       app.EndDate.String(),
		"days_count":     app.DaysCount.Value.String(),
	})
	return app, nil
}

func (e *Engine) validateSubmit(ctx context.Context, in SubmitInput) (generic.Amount, error) {
	zero := generic.ZeroDays()
	if in.StartDate.IsZero() {
		return zero, generic.Invalid("start_date", "is required")
	}
	if in.EndDate.IsZero() {
		return zero, generic.Invalid("end_date", "is required")
	}
	period := generic.Period{Start: in.StartDate, End: in.EndDate}
	if period.Validate() != nil {
		return zero, generic.Invalid("end_date", "end date %s is before start date %s", in.EndDate, in.StartDate)
	}

	emp, err := e.employee(ctx, in.EmployeeID)
	if err != nil {
		return zero, err
	}
	if !emp.IsActive() {
		return zero, generic.Invalid("employee_id", "employee %s is not active", emp.ID)
	}
	lt, err := e.leaveType(ctx, in.LeaveTypeID)
	if err != nil {
		return zero, err
	}

	var nominal generic.Amount
	if in.IsHalfDay {
		if !lt.AllowHalfDay {
			return zero, generic.Invalid("is_half_day", "leave type %s does not allow half days", lt.ID)
		}
		if !in.StartDate.Equal(in.EndDate) {
			return zero, generic.Invalid("end_date", "a half day must start and end on the same date")
		}
		if in.HalfDayPeriod != HalfDayFirst && in.HalfDayPeriod != HalfDaySecond {
			return zero, generic.Invalid("half_day_period", "must be %q or %q", HalfDayFirst, HalfDaySecond)
		}
		nominal = generic.Days(0.5)
	} else {
		if in.HalfDayPeriod != HalfDayNone {
			return zero, generic.Invalid("half_day_period", "only allowed for half days")
		}
		working := 0
		for _, d := range period.Days() {
			if e.calendar.IsWorkingDay(d) {
				working++
			}
		}
		nominal = generic.NewAmount(float64(working), generic.UnitDays)
	}

	days := nominal
	if in.DaysCount != nil {
		days = *in.DaysCount
		calendarDays := generic.NewAmount(float64(len(period.Days())), generic.UnitDays)
		if days.GreaterThan(calendarDays) {
			return zero, generic.Invalid("days_count", "%v exceeds the %v calendar days requested", days.Value, calendarDays.Value)
		}
	}
	if !days.IsPositive() {
		return zero, generic.Invalid("days_count", "the requested range contains no working days")
	}

	if in.LOPDays.IsNegative() {
		return zero, generic.Invalid("lop_days", "must not be negative")
	}
	if in.LOPDays.GreaterThan(days) {
		return zero, generic.Invalid("lop_days", "%v exceeds days_count %v", in.LOPDays.Value, days.Value)
	}
	return days, nil
}

// checkOverlap rejects an application that overlaps a pending or approved
// one. Two half days on the same date may coexist if their halves differ.
func checkOverlap(ctx context.Context, tx Store, app *Application) error {
	existing, err := tx.ListApplications(ctx, ApplicationFilter{
		EmployeeID: app.EmployeeID,
		Statuses:   []Status{StatusPending, StatusApproved},
		From:       &app.StartDate,
		To:         &app.EndDate,
	})
	if err != nil {
		return fmt.Errorf("overlap check failed: %w", err)
	}
	for _, other := range existing {
		if other.ID == app.ID {
			continue
		}
		if app.IsHalfDay && other.IsHalfDay && app.HalfDayPeriod != other.HalfDayPeriod {
			continue
		}
		return generic.Invalid("start_date", "overlaps %s application %s", other.Status, other.ID)
	}
	return nil
}

// =============================================================================
// TRANSITION
// =============================================================================

type TransitionInput struct {
	ApplicationID generic.ApplicationID
	Status        Status
	Actor         string
	Comments      string
}

// TransitionResult is the updated application and its balance snapshot.
type TransitionResult struct {
	Application Application
	Balance     Balance
	Effect      Effect
	Sandwich    *SandwichResult
	Warning     *InsufficientBalanceWarning
	Released    []Application // partners whose bridged days a reversal gave back
}

// TransitionApplication moves an application to a new status and applies the
// ledger effect of the (old, new) pair in one transaction.
func (e *Engine) TransitionApplication(ctx context.Context, in TransitionInput) (*TransitionResult, error) {
	e.logger.Debug("transition application requested",
		zap.String("application_id", string(in.ApplicationID)),
		zap.String("target_status", string(in.Status)),
		zap.String("actor", in.Actor),
	)
	if in.ApplicationID == "" {
		return nil, generic.Invalid("application_id", "is required")
	}
	if _, err := ParseStatus(string(in.Status)); err != nil {
		return nil, err
	}
	if in.Actor == "" {
		return nil, generic.Invalid("actor", "is required")
	}

	var result *TransitionResult
	err := generic.Retry(ctx, e.retry, func() error {
		var err error
		result, err = e.transition(ctx, in)
		return err
	})
	if err != nil {
		e.logger.Warn("transition application failed",
			zap.String("application_id", string(in.ApplicationID)),
			zap.Error(err),
		)
		return nil, err
	}

	app := result.Application
	e.logger.Info("transition application success",
		zap.String("application_id", string(app.ID)),
		zap.String("status", string(app.Status)),
		zap.Stringer("effect", result.Effect),
		zap.String("used", result.Balance.Used.Value.String()),
	)
	payload := map[string]any{
		"application_id": app.ID,
		"status":         app.Status,
		"actor":          in.Actor,
		"remaining":      result.Balance.Remaining().Value.String(),
	}
	if app.SandwichDeductedDays != nil {
		payload["deducted_days"] = app.SandwichDeductedDays.Value.String()
	}
	e.notify(ctx, ApplicationEvent(app.Status), app.EmployeeID, payload)
	return result, nil
}

func (e *Engine) transition(ctx context.Context, in TransitionInput) (*TransitionResult, error) {
	var result *TransitionResult
	err := e.store.WithTx(ctx, func(tx Store) error {
		app, err := tx.GetApplication(ctx, in.ApplicationID)
		if err != nil {
			return fmt.Errorf("get application %s: %w", in.ApplicationID, err)
		}
		if app == nil {
			return &generic.NotFoundError{Kind: "application", ID: string(in.ApplicationID)}
		}

		effect, err := TransitionEffect(app.Status, in.Status)
		if err != nil {
			return err
		}

		ledger := e.ledgerFor(tx)
		key := BalanceKey{EmployeeID: app.EmployeeID, LeaveTypeID: app.LeaveTypeID, Year: app.BalanceYear()}
		now := e.now().UTC()
		res := &TransitionResult{Effect: effect}

		var balance *Balance
		switch effect {
		case EffectDebit:
			lt, err := e.leaveType(ctx, app.LeaveTypeID)
			if err != nil {
				return err
			}
			calc := NewSandwichCalculator(e.calendar, tx)
			sw, err := calc.Compute(ctx, SandwichInput{
				EmployeeID:    app.EmployeeID,
				ApplicationID: app.ID,
				Start:         app.StartDate,
				End:           app.EndDate,
				IsHalfDay:     app.IsHalfDay,
				TargetStatus:  in.Status,
				ReferenceTime: now,
				Sandwich:      lt.Sandwich,
				DaysCount:     &app.DaysCount,
			})
			if err != nil {
				return err
			}
			snapshot := sw.DeductedDays
			isSandwich := sw.IsSandwichLeave
			app.SandwichDeductedDays = &snapshot
			app.IsSandwichLeave = &isSandwich
			app.SandwichPairID = sw.PairedApplicationID
			app.ApprovedBy = in.Actor
			app.ApprovedAt = &now
			res.Sandwich = &sw

			balance, err = ledger.DebitUsed(ctx, key, app.Debit())
			if err != nil {
				return err
			}

		case EffectRestore:
			// The snapshot is authoritative; the calendar may have changed since.
			balance, res.Warning, err = ledger.RestoreUsed(ctx, key, app.Debit())
			if err != nil {
				return err
			}
			res.Released, err = e.releaseBridges(ctx, tx, ledger, app, now)
			if err != nil {
				return err
			}
			if len(res.Released) > 0 {
				if balance, err = ledger.Load(ctx, key); err != nil {
					return err
				}
			}
			app.clearSnapshot()

		default:
			balance, err = ledger.Load(ctx, key)
			if err != nil {
				return err
			}
		}

		app.Status = in.Status
		app.ActedBy = in.Actor
		if in.Comments != "" {
			app.Comments = in.Comments
		}
		app.UpdatedAt = now
		if err := tx.SaveApplication(ctx, app); err != nil {
			return fmt.Errorf("save application %s: %w", app.ID, err)
		}

		res.Application = *app
		res.Balance = *balance
		result = res
		return nil
	})
	return result, err
}

// releaseBridges runs while reversed is still approved in tx. Every approved
// application of the same employee that was charged for days bridged to
// reversed gets those days back: its snapshot drops to what it would have
// been charged without reversed, and the difference is restored.
func (e *Engine) releaseBridges(ctx context.Context, tx Store, ledger *Ledger, reversed *Application, now time.Time) ([]Application, error) {
	from := reversed.StartDate.AddDays(-(maxBridgeGap + 1))
	to := reversed.EndDate.AddDays(maxBridgeGap + 1)
	candidates, err := tx.ListApplications(ctx, ApplicationFilter{
		EmployeeID: reversed.EmployeeID,
		Statuses:   []Status{StatusApproved},
		From:       &from,
		To:         &to,
	})
	if err != nil {
		return nil, fmt.Errorf("list sandwich partners of %s: %w", reversed.ID, err)
	}

	calc := NewSandwichCalculator(e.calendar, tx)
	var released []Application
	for i := range candidates {
		partner := candidates[i]
		if partner.ID == reversed.ID || partner.SandwichDeductedDays == nil || partner.ApprovedAt == nil ||
			partner.IsSandwichLeave == nil || !*partner.IsSandwichLeave {
			continue
		}
		lt, err := e.leaveType(ctx, partner.LeaveTypeID)
		if err != nil {
			return nil, err
		}
		in := SandwichInput{
			EmployeeID:    partner.EmployeeID,
			ApplicationID: partner.ID,
			Start:         partner.StartDate,
			End:           partner.EndDate,
			IsHalfDay:     partner.IsHalfDay,
			TargetStatus:  StatusApproved,
			ReferenceTime: *partner.ApprovedAt,
			Sandwich:      lt.Sandwich,
			DaysCount:     &partner.DaysCount,
		}
		with, err := calc.Compute(ctx, in)
		if err != nil {
			return nil, err
		}
		in.Ignore = reversed.ID
		without, err := calc.Compute(ctx, in)
		if err != nil {
			return nil, err
		}

		// Never release more than the partner's snapshot holds above the
		// un-bridged charge; the snapshot may predate calendar changes.
		bridged := with.DeductedDays.Sub(without.DeductedDays).
			Min(partner.SandwichDeductedDays.Sub(without.DeductedDays))
		if !bridged.IsPositive() {
			continue
		}

		debitBefore := partner.Debit()
		snapshot := partner.SandwichDeductedDays.Sub(bridged)
		isSandwich := without.IsSandwichLeave
		partner.SandwichDeductedDays = &snapshot
		partner.IsSandwichLeave = &isSandwich
		partner.SandwichPairID = without.PairedApplicationID
		partner.UpdatedAt = now

		partnerKey := BalanceKey{EmployeeID: partner.EmployeeID, LeaveTypeID: partner.LeaveTypeID, Year: partner.BalanceYear()}
		if _, _, err := ledger.RestoreUsed(ctx, partnerKey, debitBefore.Sub(partner.Debit())); err != nil {
			return nil, err
		}
		if err := tx.SaveApplication(ctx, &partner); err != nil {
			return nil, fmt.Errorf("save application %s: %w", partner.ID, err)
		}
		e.logger.Info("sandwich bridge released",
			zap.String("application_id", string(partner.ID)),
			zap.String("reversed_id", string(reversed.ID)),
			zap.String("released_days", bridged.Value.String()),
		)
		released = append(released, partner)
	}
	return released, nil
}

// =============================================================================
// MANUAL ADJUSTMENT
// =============================================================================

type AdjustInput struct {
	EmployeeID  generic.EmployeeID
	LeaveTypeID generic.LeaveTypeID
	Year        int
	Type        AdjustmentType
	Amount      generic.Amount
	Reason      string
	Actor       string
}

// AdjustBalance applies a manual HR adjustment and records it in the audit trail.
func (e *Engine) AdjustBalance(ctx context.Context, in AdjustInput) (*Balance, *Adjustment, error) {
	e.logger.Debug("adjust balance requested",
		zap.String("employee_id", string(in.EmployeeID)),
		zap.String("leave_type_id", string(in.LeaveTypeID)),
		zap.Int("year", in.Year),
		zap.String("type", string(in.Type)),
		zap.String("amount", in.Amount.Value.String()),
	)
	if _, err := e.employee(ctx, in.EmployeeID); err != nil {
		return nil, nil, err
	}
	if _, err := e.leaveType(ctx, in.LeaveTypeID); err != nil {
		return nil, nil, err
	}
	if err := validateYear(in.Year); err != nil {
		return nil, nil, err
	}
	if _, err := ParseAdjustmentType(string(in.Type)); err != nil {
		return nil, nil, err
	}
	if in.Reason == "" {
		return nil, nil, generic.Invalid("reason", "is required")
	}
	if in.Actor == "" {
		return nil, nil, generic.Invalid("actor", "is required")
	}

	var (
		balance *Balance
		adj     *Adjustment
	)
	err := generic.Retry(ctx, e.retry, func() error {
		return e.store.WithTx(ctx, func(tx Store) error {
			var err error
			balance, adj, err = e.ledgerFor(tx).ManualAdjust(ctx, ManualAdjustment{
				Key:    BalanceKey{EmployeeID: in.EmployeeID, LeaveTypeID: in.LeaveTypeID, Year: in.Year},
				Type:   in.Type,
				Amount: in.Amount,
				Reason: in.Reason,
				Actor:  in.Actor,
			})
			return err
		})
	})
	if err != nil {
		e.logger.Warn("adjust balance failed", zap.Error(err))
		return nil, nil, err
	}

	e.logger.Info("adjust balance success",
		zap.String("adjustment_id", string(adj.ID)),
		zap.String("previous_allocated", adj.PreviousAllocated.Value.String()),
		zap.String("new_allocated", adj.NewAllocated.Value.String()),
	)
	e.notify(ctx, EventBalanceAdjusted, in.EmployeeID, map[string]any{
		"adjustment_id":      adj.ID,
		"leave_type_id":      in.LeaveTypeID,
		"year":               in.Year,
		"type":               in.Type,
		"amount":             in.Amount.Value.String(),
		"previous_allocated": adj.PreviousAllocated.Value.String(),
		"new_allocated":      adj.NewAllocated.Value.String(),
	})
	return balance, adj, nil
}

func validateYear(year int) error {
	if year < 1900 || year > 9999 {
		return generic.Invalid("year", "out of range: %d", year)
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

// GetBalance returns the balance row, or a zero balance if no event has
// created it yet.
func (e *Engine) GetBalance(ctx context.Context, employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID, year int) (Balance, error) {
	if employeeID == "" {
		return Balance{}, generic.Invalid("employee_id", "is required")
	}
	if leaveTypeID == "" {
		return Balance{}, generic.Invalid("leave_type_id", "is required")
	}
	if err := validateYear(year); err != nil {
		return Balance{}, err
	}
	b, err := e.ledgerFor(e.store).Load(ctx, BalanceKey{EmployeeID: employeeID, LeaveTypeID: leaveTypeID, Year: year})
	if err != nil {
		return Balance{}, err
	}
	return *b, nil
}

func (e *Engine) ListBalances(ctx context.Context, employeeID generic.EmployeeID, year int) ([]Balance, error) {
	return e.store.ListBalances(ctx, employeeID, year)
}

func (e *Engine) GetApplication(ctx context.Context, id generic.ApplicationID) (*Application, error) {
	app, err := e.store.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, &generic.NotFoundError{Kind: "application", ID: string(id)}
	}
	return app, nil
}

func (e *Engine) ListApplications(ctx context.Context, filter ApplicationFilter) ([]Application, error) {
	return e.store.ListApplications(ctx, filter)
}

// Tenure evaluates an employee's tenure at asOf (zero = today).
func (e *Engine) Tenure(ctx context.Context, employeeID generic.EmployeeID, asOf generic.TimePoint) (Tenure, error) {
	emp, err := e.employee(ctx, employeeID)
	if err != nil {
		return Tenure{}, err
	}
	if asOf.IsZero() {
		asOf = generic.DayOf(e.now())
	}
	return e.rates.Calculate(emp.JoinDate, asOf)
}
