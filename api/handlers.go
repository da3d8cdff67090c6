/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response,
  JSON serialization and shape validation, and delegates to leave.Engine.

ENDPOINTS:
  Employees:
    GET    /api/employees                          List employees
    POST   /api/employees                          Create or update employee
    GET    /api/employees/{id}                     Employee details
    GET    /api/employees/{id}/balances?year=      All balances for a year
    GET    /api/employees/{id}/balances/{type}     One balance (zero if absent)
    GET    /api/employees/{id}/usage/{type}?year=  Quarterly usage
    GET    /api/employees/{id}/tenure?as_of=       Tenure and accrual rate
    GET    /api/employees/{id}/adjustments         Audit trail
    GET    /api/employees/{id}/applications        Applications (?status=)
    POST   /api/employees/{id}/applications        Submit application

  Applications:
    GET    /api/applications/pending               Awaiting a decision
    GET    /api/applications/{id}                  Application details
    POST   /api/applications/{id}/status           Status change (ledger effect)

  Catalog and calendar:
    GET    /api/leave-types                        Leave-type catalog
    POST   /api/leave-types                        Upsert from factory JSON
    GET    /api/holidays                           Holiday calendar
    POST   /api/holidays                           Add holiday
    DELETE /api/holidays/{id}                      Remove holiday

  Admin:
    POST   /api/admin/adjustments                  Manual balance adjustment
    GET    /api/admin/adjustments?from=&to=        Adjustments in a time range
    POST   /api/admin/accrual                      Run monthly accrual
    POST   /api/admin/anniversary                  Run anniversary carry-forward

ERROR HANDLING:
  Errors are returned as JSON with an HTTP status derived from the error:
  - 400: Validation errors, invalid adjustments
  - 404: Employee or application not found
  - 409: Invalid status transition
  - 503: Concurrency retries exhausted (safe to retry)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *leave.Engine
	Store   *sqlite.Store
	Factory *factory.LeaveTypeFactory

	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time

	// Track currently loaded scenario
	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a new handler over the engine and its SQLite store.
func NewHandler(engine *leave.Engine, store *sqlite.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:   engine,
		Store:    store,
		Factory:  factory.NewLeaveTypeFactory(),
		logger:   logger.Named("api"),
		validate: newValidator(),
		now:      time.Now,
	}
}

// newValidator reports field names by their json tag.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates its struct tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return generic.Invalid("body", "invalid JSON: %v", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			switch e.Tag() {
			case "required":
				return generic.Invalid(e.Field(), "is required")
			case "datetime":
				return generic.Invalid(e.Field(), "must match %s", e.Param())
			case "oneof":
				return generic.Invalid(e.Field(), "must be one of [%s]", e.Param())
			default:
				return generic.Invalid(e.Field(), "failed %q check", e.Tag())
			}
		}
		return generic.Invalid("body", "%v", err)
	}
	return nil
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		h.fail(w, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))

	emp, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to get employee", err)
		return
	}
	if emp == nil {
		h.fail(w, "Employee not found", &generic.NotFoundError{Kind: "employee", ID: string(id)})
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// CreateEmployee creates or updates an employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	joinDate, err := parseDateField("join_date", req.JoinDate)
	if err != nil {
		h.fail(w, "Invalid join_date", err)
		return
	}

	emp := leave.Employee{
		ID:        generic.EmployeeID(req.ID),
		Name:      req.Name,
		Email:     req.Email,
		JoinDate:  joinDate,
		Status:    leave.EmployeeStatus(req.Status),
		ManagerID: generic.EmployeeID(req.ManagerID),
	}
	if emp.Status == "" {
		emp.Status = leave.EmployeeActive
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		h.fail(w, "Failed to create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// ListBalances returns every balance row of an employee for ?year= (default:
// current year).
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	year, err := h.yearParam(r)
	if err != nil {
		h.fail(w, "Invalid year", err)
		return
	}

	balances, err := h.Engine.ListBalances(r.Context(), id, year)
	if err != nil {
		h.fail(w, "Failed to list balances", err)
		return
	}
	dtos := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = toBalanceDTO(b)
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": dtos})
}

// GetBalance returns one balance; a missing row reads as zero.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	leaveType := generic.LeaveTypeID(chi.URLParam(r, "type"))
	year, err := h.yearParam(r)
	if err != nil {
		h.fail(w, "Invalid year", err)
		return
	}

	b, err := h.Engine.GetBalance(r.Context(), id, leaveType, year)
	if err != nil {
		h.fail(w, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// GetQuarterlyUsage returns approved usage per quarter.
func (h *Handler) GetQuarterlyUsage(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	leaveType := generic.LeaveTypeID(chi.URLParam(r, "type"))
	year, err := h.yearParam(r)
	if err != nil {
		h.fail(w, "Invalid year", err)
		return
	}

	usage, err := h.Engine.QuarterlyUsage(r.Context(), id, leaveType, year)
	if err != nil {
		h.fail(w, "Failed to get usage", err)
		return
	}
	writeJSON(w, http.StatusOK, toQuarterlyUsageDTO(usage))
}

// GetTenure evaluates tenure at ?as_of= (default: today).
func (h *Handler) GetTenure(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	var asOf generic.TimePoint
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		var err error
		if asOf, err = parseDateField("as_of", raw); err != nil {
			h.fail(w, "Invalid as_of", err)
			return
		}
	}

	t, err := h.Engine.Tenure(r.Context(), id, asOf)
	if err != nil {
		h.fail(w, "Failed to compute tenure", err)
		return
	}
	writeJSON(w, http.StatusOK, TenureDTO{
		EmployeeID:      string(id),
		JoinDate:        t.JoinDate.String(),
		AsOf:            t.AsOf.String(),
		Months:          t.Months,
		MonthlyRate:     t.MonthlyRate.Float(),
		CanCarryForward: t.CanCarryForward,
		NextAnniversary: t.NextAnniversary.String(),
	})
}

// =============================================================================
// APPLICATION HANDLERS
// =============================================================================

// SubmitApplication records a pending application. No ledger effect.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))

	var req SubmitApplicationRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	start, err := parseDateField("start_date", req.StartDate)
	if err != nil {
		h.fail(w, "Invalid start_date", err)
		return
	}
	end, err := parseDateField("end_date", req.EndDate)
	if err != nil {
		h.fail(w, "Invalid end_date", err)
		return
	}

	in := leave.SubmitInput{
		EmployeeID:    id,
		LeaveTypeID:   generic.LeaveTypeID(req.LeaveTypeID),
		StartDate:     start,
		EndDate:       end,
		IsHalfDay:     req.IsHalfDay,
		HalfDayPeriod: leave.HalfDayPeriod(req.HalfDayPeriod),
		LOPDays:       generic.Days(req.LOPDays),
		Reason:        req.Reason,
	}
	if req.DaysCount != nil {
		d := generic.Days(*req.DaysCount)
		in.DaysCount = &d
	}

	app, err := h.Engine.SubmitApplication(r.Context(), in)
	if err != nil {
		h.fail(w, "Failed to submit application", err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationDTO(*app))
}

// ListEmployeeApplications returns an employee's applications (?status=a,b).
func (h *Handler) ListEmployeeApplications(w http.ResponseWriter, r *http.Request) {
	filter := leave.ApplicationFilter{EmployeeID: generic.EmployeeID(chi.URLParam(r, "id"))}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st, err := leave.ParseStatus(strings.TrimSpace(s))
			if err != nil {
				h.fail(w, "Invalid status", err)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	h.listApplications(w, r, filter)
}

// ListPendingApplications returns every application awaiting a decision.
func (h *Handler) ListPendingApplications(w http.ResponseWriter, r *http.Request) {
	h.listApplications(w, r, leave.ApplicationFilter{Statuses: []leave.Status{leave.StatusPending}})
}

func (h *Handler) listApplications(w http.ResponseWriter, r *http.Request, filter leave.ApplicationFilter) {
	apps, err := h.Engine.ListApplications(r.Context(), filter)
	if err != nil {
		h.fail(w, "Failed to list applications", err)
		return
	}
	dtos := make([]ApplicationDTO, len(apps))
	for i, a := range apps {
		dtos[i] = toApplicationDTO(a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": dtos})
}

// GetApplication returns a single application.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.Engine.GetApplication(r.Context(), generic.ApplicationID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Failed to get application", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(*app))
}

// TransitionApplication changes an application's status and applies its
// ledger effect.
// POST /api/applications/{id}/status
func (h *Handler) TransitionApplication(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}

	res, err := h.Engine.TransitionApplication(r.Context(), leave.TransitionInput{
		ApplicationID: generic.ApplicationID(chi.URLParam(r, "id")),
		Status:        leave.Status(req.Status),
		Actor:         req.Actor,
		Comments:      req.Comments,
	})
	if err != nil {
		h.fail(w, "Failed to change application status", err)
		return
	}

	dto := TransitionDTO{
		Application: toApplicationDTO(res.Application),
		Balance:     toBalanceDTO(res.Balance),
		Effect:      res.Effect.String(),
	}
	if res.Warning != nil {
		dto.Warning = res.Warning.String()
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ADJUSTMENT HANDLERS
// =============================================================================

// CreateAdjustment applies a manual HR change and writes the audit row.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req CreateAdjustmentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}

	b, adj, err := h.Engine.AdjustBalance(r.Context(), leave.AdjustInput{
		EmployeeID:  generic.EmployeeID(req.EmployeeID),
		LeaveTypeID: generic.LeaveTypeID(req.LeaveTypeID),
		Year:        req.Year,
		Type:        leave.AdjustmentType(req.Type),
		Amount:      generic.Days(req.Days),
		Reason:      req.Reason,
		Actor:       req.Actor,
	})
	if err != nil {
		h.fail(w, "Failed to create adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"adjustment": toAdjustmentDTO(*adj),
		"balance":    toBalanceDTO(*b),
	})
}

// ListEmployeeAdjustments returns an employee's audit trail.
func (h *Handler) ListEmployeeAdjustments(w http.ResponseWriter, r *http.Request) {
	adjs, err := h.Engine.AdjustmentsForEmployee(r.Context(), generic.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Failed to list adjustments", err)
		return
	}
	writeAdjustments(w, adjs)
}

// ListAdjustmentsInRange returns adjustments created in [from, to] (RFC 3339).
func (h *Handler) ListAdjustmentsInRange(w http.ResponseWriter, r *http.Request) {
	filter := leave.AdjustmentFilter{
		EmployeeID:  generic.EmployeeID(r.URL.Query().Get("employee_id")),
		LeaveTypeID: generic.LeaveTypeID(r.URL.Query().Get("leave_type_id")),
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.fail(w, "Invalid "+p.name, generic.Invalid(p.name, "must be RFC 3339"))
			return
		}
		*p.dst = &t
	}

	adjs, err := h.Engine.ListAdjustments(r.Context(), filter)
	if err != nil {
		h.fail(w, "Failed to list adjustments", err)
		return
	}
	writeAdjustments(w, adjs)
}

func writeAdjustments(w http.ResponseWriter, adjs []leave.Adjustment) {
	dtos := make([]AdjustmentDTO, len(adjs))
	for i, a := range adjs {
		dtos[i] = toAdjustmentDTO(a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"adjustments": dtos})
}

// =============================================================================
// BATCH RUN HANDLERS
// =============================================================================

// TriggerAccrual runs the monthly accrual on demand.
// POST /api/admin/accrual {"month": "2025-03"}
func (h *Handler) TriggerAccrual(w http.ResponseWriter, r *http.Request) {
	var req AccrualRunRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	month := generic.MonthOf(generic.DayOf(h.now()))
	if req.Month != "" {
		var err error
		if month, err = generic.ParseMonth(req.Month); err != nil {
			h.fail(w, "Invalid month", generic.Invalid("month", "%v", err))
			return
		}
	}

	results, err := h.Engine.RunMonthlyAccrual(r.Context(), month)
	if err != nil {
		h.fail(w, "Failed to run accrual", err)
		return
	}
	dtos := make([]AccrualResultDTO, len(results))
	for i, res := range results {
		dtos[i] = toAccrualResultDTO(res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": month.String(), "results": dtos})
}

// TriggerAnniversary runs anniversary carry-forward on demand.
// POST /api/admin/anniversary {"date": "2025-01-15"}
func (h *Handler) TriggerAnniversary(w http.ResponseWriter, r *http.Request) {
	var req AnniversaryRunRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	date := generic.DayOf(h.now())
	if req.Date != "" {
		var err error
		if date, err = parseDateField("date", req.Date); err != nil {
			h.fail(w, "Invalid date", err)
			return
		}
	}

	results, err := h.Engine.RunAnniversary(r.Context(), date)
	if err != nil {
		h.fail(w, "Failed to run anniversary", err)
		return
	}
	dtos := make([]CarryForwardResultDTO, len(results))
	for i, res := range results {
		dtos[i] = toCarryForwardResultDTO(res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date.String(), "results": dtos})
}

// =============================================================================
// LEAVE TYPE CATALOG
// =============================================================================

// ListLeaveTypes returns the catalog in factory JSON form.
func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Store.ListLeaveTypes(r.Context())
	if err != nil {
		h.fail(w, "Failed to list leave types", err)
		return
	}
	dtos := make([]factory.LeaveTypeJSON, len(types))
	for i, lt := range types {
		dtos[i] = h.Factory.ToJSON(lt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpsertLeaveType creates or replaces one catalog entry.
func (h *Handler) UpsertLeaveType(w http.ResponseWriter, r *http.Request) {
	var req factory.LeaveTypeJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, "Invalid request body", generic.Invalid("body", "invalid JSON: %v", err))
		return
	}
	lt, err := h.Factory.FromJSON(req)
	if err != nil {
		h.fail(w, "Invalid leave type", err)
		return
	}
	if err := h.Store.SaveLeaveType(r.Context(), lt); err != nil {
		h.fail(w, "Failed to save leave type", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Factory.ToJSON(lt))
}

// =============================================================================
// HOLIDAY ENDPOINTS
// =============================================================================

// ListHolidays returns all holidays.
// GET /api/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Store.ListHolidays(r.Context())
	if err != nil {
		h.fail(w, "Failed to get holidays", err)
		return
	}
	dtos := make([]HolidayDTO, 0, len(holidays))
	for _, hol := range holidays {
		dtos = append(dtos, toHolidayDTO(hol))
	}
	writeJSON(w, http.StatusOK, map[string]any{"holidays": dtos})
}

// CreateHoliday creates a new holiday.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	date, err := parseDateField("date", req.Date)
	if err != nil {
		h.fail(w, "Invalid date", err)
		return
	}

	holiday := generic.Holiday{
		ID:        "holiday-" + uuid.NewString(),
		Date:      date,
		Name:      req.Name,
		Recurring: req.Recurring,
	}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		h.fail(w, "Failed to create holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTO(holiday))
}

// DeleteHoliday deletes a holiday.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "Failed to delete holiday", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
		var verr *generic.ValidationError
		if errors.As(err, &verr) {
			resp.Field = verr.Field
		}
	}
	writeJSON(w, status, resp)
}

// statusFor maps the engine's error taxonomy onto HTTP.
func statusFor(err error) int {
	var exhausted *generic.RetryExhaustedError
	switch {
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrInvalidTransition), errors.Is(err, generic.ErrAppendOnly):
		return http.StatusConflict
	case errors.As(err, &exhausted), generic.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server-side failures are logged.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Int("status", status), zap.Error(err))
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, message, err)
}

func parseDateField(field, raw string) (generic.TimePoint, error) {
	tp, err := generic.ParseDate(raw)
	if err != nil {
		return generic.TimePoint{}, generic.Invalid(field, "must be YYYY-MM-DD, got %q", raw)
	}
	return tp, nil
}

func (h *Handler) yearParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return h.now().Year(), nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, generic.Invalid("year", "must be an integer, got %q", raw)
	}
	return year, nil
}

func (h *Handler) setCurrentScenario(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = id
}

func (h *Handler) scenario() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.currentScenario
}
