package leave_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// March 2025: Mon 3, Fri 7, Sat 8, Sun 9, Mon 10 ... Fri 14, Mon 17.
func day(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

func mar(d int) generic.TimePoint { return day(2025, time.March, d) }

func days(n float64) generic.Amount { return generic.Days(n) }

func ptr[T any](v T) *T { return &v }

func assertDays(t *testing.T, want float64, got generic.Amount, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, got.Equal(days(want)),
		append([]any{"expected %v days, got %v", want, got.Value.String()}, msgAndArgs...)...)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx    context.Context
	store  *memory.Memory
	clock  *clock
	engine *leave.Engine
}

const (
	emp1     generic.EmployeeID = "emp-1"
	approver                    = "manager-1"
)

func seedLeaveTypes(m *memory.Memory) {
	m.PutLeaveType(leave.LeaveType{
		ID: leave.LeaveTypeAnnual, Name: "Annual Leave", Accrues: true,
		CarryForward: ptr(days(10)), Sandwich: true, AllowHalfDay: true,
	})
	m.PutLeaveType(leave.LeaveType{
		ID: leave.LeaveTypeSick, Name: "Sick Leave", AllowHalfDay: true,
	})
	m.PutLeaveType(leave.LeaveType{
		ID: leave.LeaveTypeCasual, Name: "Casual Leave", Sandwich: true,
	})
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := memory.New()
	seedLeaveTypes(m)
	m.PutEmployee(leave.Employee{
		ID: emp1, Name: "Asha", JoinDate: day(2024, time.January, 15), Status: leave.EmployeeActive,
	})

	c := &clock{now: time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)}
	return &fixture{
		ctx:   context.Background(),
		store: m,
		clock: c,
		engine: leave.NewEngine(leave.Config{
			Store:      m,
			Directory:  m,
			Calendar:   m,
			LeaveTypes: m,
			Retry:      &generic.RetryPolicy{Attempts: 3},
			Now:        c.Now,
		}),
	}
}

func (f *fixture) submit(t *testing.T, start, end generic.TimePoint, lop float64) *leave.Application {
	t.Helper()
	app, err := f.engine.SubmitApplication(f.ctx, leave.SubmitInput{
		EmployeeID:  emp1,
		LeaveTypeID: leave.LeaveTypeAnnual,
		StartDate:   start,
		EndDate:     end,
		LOPDays:     days(lop),
	})
	require.NoError(t, err)
	return app
}

func (f *fixture) transition(id generic.ApplicationID, status leave.Status) (*leave.TransitionResult, error) {
	f.clock.Advance(time.Minute)
	return f.engine.TransitionApplication(f.ctx, leave.TransitionInput{
		ApplicationID: id,
		Status:        status,
		Actor:         approver,
	})
}

func (f *fixture) mustTransition(t *testing.T, id generic.ApplicationID, status leave.Status) *leave.TransitionResult {
	t.Helper()
	res, err := f.transition(id, status)
	require.NoError(t, err)
	return res
}

func (f *fixture) balance(t *testing.T, year int) leave.Balance {
	t.Helper()
	b, err := f.engine.GetBalance(f.ctx, emp1, leave.LeaveTypeAnnual, year)
	require.NoError(t, err)
	return b
}

// assertInvariants checks used >= 0 and remaining == allocated - used.
func assertInvariants(t *testing.T, b leave.Balance) {
	t.Helper()
	assert.False(t, b.Used.IsNegative(), "used days must never be negative")
	assert.True(t, b.Remaining().Equal(b.Allocated.Sub(b.Used)))
}
