/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Employee CRUD and request validation
- Application lifecycle over HTTP (submit, approve, withdraw, sandwich)
- Manual adjustments and the audit trail queries
- Accrual runs, catalog, holidays, tenure and usage reads
- Error taxonomy to HTTP status mapping
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// Wednesday, 5 March 2025.
var testNow = time.Date(2025, time.March, 5, 9, 0, 0, 0, time.UTC)

type testServer struct {
	t       *testing.T
	handler *Handler
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := func() time.Time { return testNow }
	engine := leave.NewEngine(leave.Config{
		Store:      store,
		Directory:  store,
		Calendar:   store,
		LeaveTypes: store,
		Retry:      &generic.RetryPolicy{Attempts: 3},
		Now:        now,
	})
	h := NewHandler(engine, store, nil)
	h.now = now
	require.NoError(t, h.ensureCatalog(context.Background()))

	return &testServer{t: t, handler: h, router: NewRouter(h, nil)}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createEmployee(id, joinDate string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/employees", map[string]any{
		"id": id, "name": "Employee " + id, "email": id + "@example.com", "join_date": joinDate,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) submit(employeeID string, body map[string]any) ApplicationDTO {
	s.t.Helper()
	if _, ok := body["leave_type_id"]; !ok {
		body["leave_type_id"] = "annual"
	}
	rec := s.do(http.MethodPost, "/api/employees/"+employeeID+"/applications", body)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[ApplicationDTO](s.t, rec)
}

func (s *testServer) setStatus(appID, status string) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.do(http.MethodPost, "/api/applications/"+appID+"/status", map[string]any{
		"status": status, "actor": "manager-1",
	})
}

func (s *testServer) approve(appID string) TransitionDTO {
	s.t.Helper()
	rec := s.setStatus(appID, "approved")
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[TransitionDTO](s.t, rec)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestEmployees_CreateAndGet(t *testing.T) {
	// GIVEN: A fresh server
	s := newTestServer(t)

	// WHEN: An employee is created
	s.createEmployee("emp-1", "2024-01-15")

	// THEN: It can be read back, alone and in the list
	rec := s.do(http.MethodGet, "/api/employees/emp-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	emp := decodeBody[EmployeeDTO](t, rec)
	assert.Equal(t, "Employee emp-1", emp.Name)
	assert.Equal(t, "2024-01-15", emp.JoinDate)
	assert.Equal(t, "active", emp.Status)

	list := decodeBody[[]EmployeeDTO](t, s.do(http.MethodGet, "/api/employees", nil))
	assert.Len(t, list, 1)

	// AND: An unknown employee is a 404
	rec = s.do(http.MethodGet, "/api/employees/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateEmployee_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"missing id", map[string]any{"name": "A", "join_date": "2024-01-01"}, "id"},
		{"missing join date", map[string]any{"id": "e", "name": "A"}, "join_date"},
		{"malformed join date", map[string]any{"id": "e", "name": "A", "join_date": "2024-13-01"}, "join_date"},
		{"bad email", map[string]any{"id": "e", "name": "A", "join_date": "2024-01-01", "email": "nope"}, "email"},
		{"bad status", map[string]any{"id": "e", "name": "A", "join_date": "2024-01-01", "status": "gone"}, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			rec := s.do(http.MethodPost, "/api/employees", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.field, decodeBody[ErrorResponse](t, rec).Field)
		})
	}
}

func TestMalformedJSON_IsBadRequest(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/employees", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "body", decodeBody[ErrorResponse](t, rec).Field)
}

// =============================================================================
// APPLICATIONS
// =============================================================================

func TestApplication_LOPRoundTrip(t *testing.T) {
	// GIVEN: A senior employee and a Mon-Wed application with 0.9 LOP days
	s := newTestServer(t)
	s.createEmployee("emp-1", "2023-06-01")
	app := s.submit("emp-1", map[string]any{
		"start_date": "2025-03-10", "end_date": "2025-03-12", "lop_days": 0.9,
	})
	assert.Equal(t, "pending", app.Status)
	assert.Equal(t, 3.0, app.DaysCount)
	assert.Nil(t, app.SandwichDeductedDays)

	// WHEN: It is approved
	approved := s.approve(app.ID)

	// THEN: 2.1 days are debited and the snapshot is recorded
	assert.Equal(t, "debit", approved.Effect)
	require.NotNil(t, approved.Application.SandwichDeductedDays)
	assert.InDelta(t, 3.0, *approved.Application.SandwichDeductedDays, 1e-9)
	assert.InDelta(t, 2.1, approved.Balance.Used, 1e-9)
	assert.Equal(t, "manager-1", approved.Application.ApprovedBy)

	// WHEN: It is withdrawn
	rec := s.setStatus(app.ID, "withdrawn")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	withdrawn := decodeBody[TransitionDTO](t, rec)

	// THEN: Exactly the same amount comes back and the snapshot is cleared
	assert.Equal(t, "restore", withdrawn.Effect)
	assert.InDelta(t, 0, withdrawn.Balance.Used, 1e-9)
	assert.Nil(t, withdrawn.Application.SandwichDeductedDays)

	bal := decodeBody[BalanceDTO](t, s.do(http.MethodGet, "/api/employees/emp-1/balances/annual?year=2025", nil))
	assert.InDelta(t, 0, bal.Used, 1e-9)

	// AND: A withdrawn application cannot be approved again
	rec = s.setStatus(app.ID, "approved")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestApplication_SandwichOverHTTP(t *testing.T) {
	// GIVEN: Monday 17 March approved first
	s := newTestServer(t)
	s.createEmployee("emp-1", "2023-06-01")
	monday := s.submit("emp-1", map[string]any{"start_date": "2025-03-17", "end_date": "2025-03-17"})
	friday := s.submit("emp-1", map[string]any{"start_date": "2025-03-14", "end_date": "2025-03-14"})
	s.approve(monday.ID)

	// WHEN: Friday 14 March is approved second
	res := s.approve(friday.ID)

	// THEN: Friday bears the bridged weekend
	require.NotNil(t, res.Application.SandwichDeductedDays)
	assert.InDelta(t, 3.0, *res.Application.SandwichDeductedDays, 1e-9)
	require.NotNil(t, res.Application.IsSandwichLeave)
	assert.True(t, *res.Application.IsSandwichLeave)
	assert.Equal(t, monday.ID, res.Application.SandwichPairID)
	assert.InDelta(t, 4.0, res.Balance.Used, 1e-9)
	assert.InDelta(t, -4.0, res.Balance.Remaining, 1e-9)
}

func TestApplication_ListAndFilter(t *testing.T) {
	s := newTestServer(t)
	s.createEmployee("emp-1", "2023-06-01")
	a := s.submit("emp-1", map[string]any{"start_date": "2025-03-10", "end_date": "2025-03-10"})
	s.submit("emp-1", map[string]any{"start_date": "2025-03-11", "end_date": "2025-03-11"})
	s.approve(a.ID)

	type listBody struct {
		Applications []ApplicationDTO `json:"applications"`
	}

	all := decodeBody[listBody](t, s.do(http.MethodGet, "/api/employees/emp-1/applications", nil))
	assert.Len(t, all.Applications, 2)

	approved := decodeBody[listBody](t, s.do(http.MethodGet, "/api/employees/emp-1/applications?status=approved", nil))
	require.Len(t, approved.Applications, 1)
	assert.Equal(t, a.ID, approved.Applications[0].ID)

	pending := decodeBody[listBody](t, s.do(http.MethodGet, "/api/applications/pending", nil))
	assert.Len(t, pending.Applications, 1)

	rec := s.do(http.MethodGet, "/api/employees/emp-1/applications?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	got := decodeBody[ApplicationDTO](t, s.do(http.MethodGet, "/api/applications/"+a.ID, nil))
	assert.Equal(t, "approved", got.Status)
}

func TestApplication_Errors(t *testing.T) {
	s := newTestServer(t)
	s.createEmployee("emp-1", "2023-06-01")

	t.Run("unknown application", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, s.setStatus("app-missing", "approved").Code)
		assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/applications/app-missing", nil).Code)
	})

	t.Run("unknown status", func(t *testing.T) {
		rec := s.setStatus("app-missing", "done")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "status", decodeBody[ErrorResponse](t, rec).Field)
	})

	t.Run("end before start", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/api/employees/emp-1/applications", map[string]any{
			"leave_type_id": "annual", "start_date": "2025-03-12", "end_date": "2025-03-10",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("LOP exceeds days", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/api/employees/emp-1/applications", map[string]any{
			"leave_type_id": "annual", "start_date": "2025-03-10", "end_date": "2025-03-10", "lop_days": 2,
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "lop_days", decodeBody[ErrorResponse](t, rec).Field)
	})

	t.Run("unknown employee", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/api/employees/nobody/applications", map[string]any{
			"leave_type_id": "annual", "start_date": "2025-03-10", "end_date": "2025-03-10",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func TestAdjustments_AddSubtractAndAudit(t *testing.T) {
	// GIVEN: An employee
	s := newTestServer(t)
	s.createEmployee("emp-1", "2023-06-01")
	adjust := func(typ string, days float64) *httptest.ResponseRecorder {
		return s.do(http.MethodPost, "/api/admin/adjustments", map[string]any{
			"employee_id": "emp-1", "leave_type_id": "annual", "year": 2025,
			"adjustment_type": typ, "days": days, "reason": "correction", "actor": "hr-1",
		})
	}

	// WHEN: HR adds 10 then subtracts 5
	require.Equal(t, http.StatusCreated, adjust("add", 10).Code)
	rec := adjust("subtract", 5)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: Allocated is 5 and the audit row records the before/after
	body := decodeBody[struct {
		Adjustment AdjustmentDTO `json:"adjustment"`
		Balance    BalanceDTO    `json:"balance"`
	}](t, rec)
	assert.InDelta(t, 5.0, body.Balance.Allocated, 1e-9)
	assert.InDelta(t, 10.0, body.Adjustment.PreviousAllocated, 1e-9)
	assert.InDelta(t, 5.0, body.Adjustment.NewAllocated, 1e-9)
	assert.Equal(t, "hr-1", body.Adjustment.AdjustedBy)

	type adjBody struct {
		Adjustments []AdjustmentDTO `json:"adjustments"`
	}
	trail := decodeBody[adjBody](t, s.do(http.MethodGet, "/api/employees/emp-1/adjustments", nil))
	assert.Len(t, trail.Adjustments, 2)

	ranged := decodeBody[adjBody](t, s.do(http.MethodGet,
		"/api/admin/adjustments?from=2025-03-01T00:00:00Z&to=2025-03-31T00:00:00Z", nil))
	assert.Len(t, ranged.Adjustments, 2)

	// AND: Subtracting more than allocated is refused
	assert.Equal(t, http.StatusBadRequest, adjust("subtract", 6).Code)

	// AND: Bad range bounds are refused
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/admin/adjustments?from=yesterday", nil).Code)
}

func TestAdjustments_Validation(t *testing.T) {
	s := newTestServer(t)
	s.createEmployee("emp-1", "2023-06-01")

	rec := s.do(http.MethodPost, "/api/admin/adjustments", map[string]any{
		"employee_id": "emp-1", "leave_type_id": "annual", "year": 2025,
		"adjustment_type": "multiply", "days": 1, "reason": "x", "actor": "hr-1",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "adjustment_type", decodeBody[ErrorResponse](t, rec).Field)

	rec = s.do(http.MethodPost, "/api/admin/adjustments", map[string]any{
		"employee_id": "emp-1", "leave_type_id": "annual", "year": 2025,
		"adjustment_type": "add", "days": 1, "actor": "hr-1",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "reason", decodeBody[ErrorResponse](t, rec).Field)
}

// =============================================================================
// BATCH RUNS
// =============================================================================

func TestTriggerAccrual_Idempotent(t *testing.T) {
	// GIVEN: A senior employee
	s := newTestServer(t)
	s.createEmployee("emp-1", "2023-06-01")

	type runBody struct {
		Month   string             `json:"month"`
		Results []AccrualResultDTO `json:"results"`
	}

	// WHEN: March accrual runs
	rec := s.do(http.MethodPost, "/api/admin/accrual", map[string]any{"month": "2025-03"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeBody[runBody](t, rec)

	// THEN: Only annual accrues, at the senior rate
	require.Len(t, first.Results, 1)
	assert.Equal(t, "annual", first.Results[0].LeaveTypeID)
	assert.True(t, first.Results[0].Credited)
	assert.InDelta(t, 2.0, first.Results[0].Rate, 1e-9)

	// WHEN: The same month runs again
	second := decodeBody[runBody](t, s.do(http.MethodPost, "/api/admin/accrual", map[string]any{"month": "2025-03"}))

	// THEN: Nothing more is credited
	require.Len(t, second.Results, 1)
	assert.False(t, second.Results[0].Credited)

	bal := decodeBody[BalanceDTO](t, s.do(http.MethodGet, "/api/employees/emp-1/balances/annual?year=2025", nil))
	assert.InDelta(t, 2.0, bal.Allocated, 1e-9)
	assert.Equal(t, "2025-03", bal.LastAccruedMonth)

	// AND: An empty body means the current month
	current := decodeBody[runBody](t, s.do(http.MethodPost, "/api/admin/accrual", map[string]any{}))
	assert.Equal(t, "2025-03", current.Month)

	// AND: A malformed month is refused
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/admin/accrual", map[string]any{"month": "March"}).Code)
}

func TestTriggerAnniversary_NoEmployeesDue(t *testing.T) {
	s := newTestServer(t)
	s.createEmployee("emp-1", "2023-06-01")

	rec := s.do(http.MethodPost, "/api/admin/anniversary", map[string]any{"date": "2025-03-05"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[struct {
		Date    string                  `json:"date"`
		Results []CarryForwardResultDTO `json:"results"`
	}](t, rec)
	assert.Equal(t, "2025-03-05", body.Date)
	assert.Empty(t, body.Results)
}

// =============================================================================
// READS
// =============================================================================

func TestReads_TenureUsageAndBalances(t *testing.T) {
	s := newTestServer(t)
	s.createEmployee("emp-1", "2024-01-15")
	app := s.submit("emp-1", map[string]any{"start_date": "2025-03-10", "end_date": "2025-03-11"})
	s.approve(app.ID)

	tenure := decodeBody[TenureDTO](t, s.do(http.MethodGet, "/api/employees/emp-1/tenure?as_of=2025-03-05", nil))
	assert.Equal(t, 13, tenure.Months)
	assert.InDelta(t, 2.0, tenure.MonthlyRate, 1e-9)
	assert.True(t, tenure.CanCarryForward)
	assert.Equal(t, "2026-01-15", tenure.NextAnniversary)

	usage := decodeBody[QuarterlyUsageDTO](t, s.do(http.MethodGet, "/api/employees/emp-1/usage/annual?year=2025", nil))
	assert.InDelta(t, 2.0, usage.Q1, 1e-9)
	assert.InDelta(t, 2.0, usage.Total, 1e-9)

	balances := decodeBody[struct {
		Balances []BalanceDTO `json:"balances"`
	}](t, s.do(http.MethodGet, "/api/employees/emp-1/balances", nil))
	require.Len(t, balances.Balances, 1)
	assert.Equal(t, 2025, balances.Balances[0].Year)

	// A row nothing has touched reads as zero
	sick := decodeBody[BalanceDTO](t, s.do(http.MethodGet, "/api/employees/emp-1/balances/sick?year=2025", nil))
	assert.Zero(t, sick.Allocated)
	assert.Zero(t, sick.Used)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/employees/emp-1/balances/annual?year=abc", nil).Code)
}

// =============================================================================
// CATALOG AND CALENDAR
// =============================================================================

func TestLeaveTypes(t *testing.T) {
	s := newTestServer(t)

	list := decodeBody[[]map[string]any](t, s.do(http.MethodGet, "/api/leave-types", nil))
	assert.Len(t, list, 3)

	rec := s.do(http.MethodPost, "/api/leave-types", map[string]any{"id": "study", "name": "Study Leave"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	list = decodeBody[[]map[string]any](t, s.do(http.MethodGet, "/api/leave-types", nil))
	assert.Len(t, list, 4)

	rec = s.do(http.MethodPost, "/api/leave-types", map[string]any{"name": "No ID"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "id", decodeBody[ErrorResponse](t, rec).Field)
}

func TestHolidays_CreateListDelete(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/holidays", map[string]any{"date": "2025-12-25", "name": "Christmas", "recurring": true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[HolidayDTO](t, rec)
	assert.Contains(t, created.ID, "holiday-")
	assert.False(t, s.handler.Store.IsWorkingDay(generic.NewTimePoint(2026, time.December, 25)))

	type holidaysBody struct {
		Holidays []HolidayDTO `json:"holidays"`
	}
	list := decodeBody[holidaysBody](t, s.do(http.MethodGet, "/api/holidays", nil))
	require.Len(t, list.Holidays, 1)

	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/api/holidays/"+created.ID, nil).Code)
	list = decodeBody[holidaysBody](t, s.do(http.MethodGet, "/api/holidays", nil))
	assert.Empty(t, list.Holidays)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", nil).Code)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", generic.Invalid("x", "bad"), http.StatusBadRequest},
		{"adjustment", fmt.Errorf("wrap: %w", generic.ErrInvalidAdjustment), http.StatusBadRequest},
		{"not found", &generic.NotFoundError{Kind: "employee", ID: "e"}, http.StatusNotFound},
		{"transition", &generic.TransitionError{From: "withdrawn", To: "approved"}, http.StatusConflict},
		{"append-only", fmt.Errorf("append adjustment: %w", generic.ErrAppendOnly), http.StatusConflict},
		{"conflict", generic.ErrConcurrentModification, http.StatusServiceUnavailable},
		{"exhausted", &generic.RetryExhaustedError{Attempts: 3, Last: generic.ErrConcurrentModification}, http.StatusServiceUnavailable},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestFail_SetsRetryAfterOnConflict(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()

	s.handler.fail(rec, "Failed", &generic.RetryExhaustedError{Attempts: 3, Last: generic.ErrConcurrentModification})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "Failed", body.Error)
	assert.Contains(t, body.Details, "gave up after 3 attempts")
}
