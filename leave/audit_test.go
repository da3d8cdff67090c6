package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func (f *fixture) adjust(t *testing.T, typ leave.AdjustmentType, amount float64) *leave.Adjustment {
	t.Helper()
	f.clock.Advance(time.Hour)
	_, adj, err := f.engine.AdjustBalance(f.ctx, leave.AdjustInput{
		EmployeeID: emp1, LeaveTypeID: leave.LeaveTypeAnnual, Year: 2025,
		Type: typ, Amount: days(amount), Reason: "audit test", Actor: "hr-1",
	})
	require.NoError(t, err)
	return adj
}

func TestAdjustmentsAreAudited(t *testing.T) {
	f := newFixture(t)
	first := f.adjust(t, leave.AdjustmentAdd, 3)
	second := f.adjust(t, leave.AdjustmentSubtract, 1)

	all, err := f.engine.AdjustmentsForEmployee(f.ctx, emp1)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
	assertDays(t, 3, all[1].PreviousAllocated)
	assertDays(t, 2, all[1].NewAllocated)
	assert.Equal(t, f.balance(t, 2025).ID, all[1].BalanceID)

	inRange, err := f.engine.AdjustmentsInRange(f.ctx, second.CreatedAt, second.CreatedAt)
	require.NoError(t, err)
	require.Len(t, inRange, 1)
	assert.Equal(t, second.ID, inRange[0].ID)
}

func TestAdjustBalance_Validation(t *testing.T) {
	f := newFixture(t)
	valid := leave.AdjustInput{
		EmployeeID: emp1, LeaveTypeID: leave.LeaveTypeAnnual, Year: 2025,
		Type: leave.AdjustmentAdd, Amount: days(1), Reason: "r", Actor: "hr-1",
	}
	tests := []struct {
		name   string
		mutate func(in *leave.AdjustInput)
	}{
		{"zero amount", func(in *leave.AdjustInput) { in.Amount = days(0) }},
		{"negative amount", func(in *leave.AdjustInput) { in.Amount = days(-2) }},
		{"missing reason", func(in *leave.AdjustInput) { in.Reason = "" }},
		{"missing actor", func(in *leave.AdjustInput) { in.Actor = "" }},
		{"bad type", func(in *leave.AdjustInput) { in.Type = "multiply" }},
		{"bad year", func(in *leave.AdjustInput) { in.Year = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, _, err := f.engine.AdjustBalance(f.ctx, in)
			assert.True(t, generic.IsClientError(err), "got %v", err)
		})
	}

	all, err := f.engine.AdjustmentsForEmployee(f.ctx, emp1)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestListAdjustments_RejectsInvertedRange(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	_, err := f.engine.AdjustmentsInRange(f.ctx, now, now.Add(-time.Hour))
	assert.ErrorIs(t, err, generic.ErrValidation)
}
