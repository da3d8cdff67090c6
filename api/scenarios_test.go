/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario drives the engine to the documented numbers.
	Scenarios double as end-to-end checks of the ledger over SQLite.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func scenarioApp(t *testing.T, result map[string]any, key string) generic.ApplicationID {
	t.Helper()
	id, ok := result[key].(string)
	require.True(t, ok, "missing %s in %v", key, result)
	return generic.ApplicationID(id)
}

func loadScenario(t *testing.T, s *testServer, id string) map[string]any {
	t.Helper()
	rec := s.do(http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[struct {
		Status   string         `json:"status"`
		Scenario string         `json:"scenario"`
		Result   map[string]any `json:"result"`
	}](t, rec)
	assert.Equal(t, "loaded", body.Status)
	assert.Equal(t, id, body.Scenario)
	return body.Result
}

func TestScenario_SeniorAccrual(t *testing.T) {
	// GIVEN: An employee who joined 14 months ago
	// WHEN: The scenario runs the accrual for the current month
	// THEN: 2.0 days are credited at the senior rate
	s := newTestServer(t)

	result := loadScenario(t, s, "senior-accrual")

	assert.Equal(t, "2025-03", result["month"])
	assert.InDelta(t, 2.0, result["allocated_days"], 1e-9)
	assert.InDelta(t, 2.0, result["monthly_rate"], 1e-9)
}

func TestScenario_LOPRoundTrip(t *testing.T) {
	// GIVEN: A 3-day application with 0.9 LOP days
	// WHEN: It is approved then withdrawn
	// THEN: 2.1 days leave and 2.1 days come back
	s := newTestServer(t)

	result := loadScenario(t, s, "lop-round-trip")

	assert.InDelta(t, 2.1, result["used_after_approval"], 1e-9)
	assert.InDelta(t, 0.0, result["used_after_withdraw"], 1e-9)

	app, err := s.handler.Engine.GetApplication(context.Background(), scenarioApp(t, result, "application_id"))
	require.NoError(t, err)
	assert.Equal(t, leave.StatusWithdrawn, app.Status)
	assert.Nil(t, app.SandwichDeductedDays)
}

func TestScenario_SandwichWeekend(t *testing.T) {
	// GIVEN: Monday approved first
	// WHEN: The Friday before it is approved
	// THEN: Friday carries 1 day plus the bridged weekend
	s := newTestServer(t)

	result := loadScenario(t, s, "sandwich-weekend")

	assert.InDelta(t, 1.0, result["monday_charged"], 1e-9)
	assert.InDelta(t, 3.0, result["friday_charged"], 1e-9)
	assert.InDelta(t, 4.0, result["used_days"], 1e-9)

	friday, err := s.handler.Engine.GetApplication(context.Background(), scenarioApp(t, result, "friday_application_id"))
	require.NoError(t, err)
	require.NotNil(t, friday.IsSandwichLeave)
	assert.True(t, *friday.IsSandwichLeave)
	assert.Equal(t, scenarioApp(t, result, "monday_application_id"), friday.SandwichPairID)
}

func TestScenario_ManualSubtract(t *testing.T) {
	s := newTestServer(t)

	result := loadScenario(t, s, "manual-subtract")

	assert.InDelta(t, 10.0, result["previous_allocated"], 1e-9)
	assert.InDelta(t, 5.0, result["new_allocated"], 1e-9)
	assert.InDelta(t, 5.0, result["allocated_days"], 1e-9)

	adjs, err := s.handler.Engine.AdjustmentsForEmployee(context.Background(), scenarioEmployee)
	require.NoError(t, err)
	require.Len(t, adjs, 2)
	assert.Equal(t, leave.AdjustmentSubtract, adjs[1].Type)
}

func TestScenario_RestoreFloor(t *testing.T) {
	// GIVEN: 3 days debited, then used corrected to 1 outside the engine
	// WHEN: The application is withdrawn
	// THEN: Used floors at zero and the shortfall is reported
	s := newTestServer(t)

	result := loadScenario(t, s, "restore-floor")

	assert.InDelta(t, 0.0, result["used_days"], 1e-9)
	assert.Contains(t, result["warning"], "floored at zero")
}

func TestScenario_ReloadResetsState(t *testing.T) {
	// GIVEN: One scenario already loaded
	s := newTestServer(t)
	loadScenario(t, s, "sandwich-weekend")

	// WHEN: Another scenario is loaded
	loadScenario(t, s, "manual-subtract")

	// THEN: Only the new scenario's data remains
	apps, err := s.handler.Engine.ListApplications(context.Background(), leave.ApplicationFilter{EmployeeID: scenarioEmployee})
	require.NoError(t, err)
	assert.Empty(t, apps)

	current := decodeBody[ScenarioDTO](t, s.do(http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "manual-subtract", current.ID)
}

func TestScenarios_ListUnknownAndReset(t *testing.T) {
	s := newTestServer(t)

	list := decodeBody[[]ScenarioDTO](t, s.do(http.MethodGet, "/api/scenarios", nil))
	assert.Len(t, list, len(scenarioLoaders))
	for _, sc := range list {
		assert.Contains(t, scenarioLoaders, sc.ID)
	}

	rec := s.do(http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "nope"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "scenario_id", decodeBody[ErrorResponse](t, rec).Field)

	loadScenario(t, s, "senior-accrual")
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/scenarios/reset", nil).Code)

	employees := decodeBody[[]EmployeeDTO](t, s.do(http.MethodGet, "/api/employees", nil))
	assert.Empty(t, employees)
	assert.Equal(t, "null\n", s.do(http.MethodGet, "/api/scenarios/current", nil).Body.String())

	// The catalog survives a reset
	types := decodeBody[[]map[string]any](t, s.do(http.MethodGet, "/api/leave-types", nil))
	assert.Len(t, types, 3)
}
