package factory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func TestParseLeaveTypes_Default(t *testing.T) {
	types, err := NewLeaveTypeFactory().ParseLeaveTypes(DefaultLeaveTypesJSON)
	require.NoError(t, err)
	require.Len(t, types, 3)

	annual := types[0]
	assert.Equal(t, leave.LeaveTypeAnnual, annual.ID)
	assert.True(t, annual.Accrues)
	assert.True(t, annual.Sandwich)
	require.NotNil(t, annual.CarryForward)
	assert.True(t, annual.CarryForward.Equal(generic.Days(10)))

	sick := types[1]
	assert.Equal(t, leave.LeaveTypeSick, sick.ID)
	assert.False(t, sick.Accrues)
	assert.False(t, sick.Sandwich)
	assert.Nil(t, sick.CarryForward)
}

func TestParseLeaveTypes_Rejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{`},
		{"empty", `[]`},
		{"bad id", `[{"id": "Annual Leave", "name": "x"}]`},
		{"missing name", `[{"id": "annual"}]`},
		{"negative cap", `[{"id": "annual", "name": "A", "carry_forward_cap": -1}]`},
		{"duplicate", `[{"id": "a", "name": "A"}, {"id": "a", "name": "B"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLeaveTypeFactory().ParseLeaveTypes(tt.json)
			assert.Error(t, err)
		})
	}
}

func TestToJSON_RoundTripsCap(t *testing.T) {
	f := NewLeaveTypeFactory()
	limit := generic.Days(7.5)
	lj := f.ToJSON(leave.LeaveType{ID: "annual", Name: "Annual", Accrues: true, CarryForward: &limit})

	require.NotNil(t, lj.CarryForwardCap)
	assert.Equal(t, 7.5, *lj.CarryForwardCap)

	back, err := f.FromJSON(lj)
	require.NoError(t, err)
	assert.True(t, back.CarryForward.Equal(limit))
}

func TestLoadFile(t *testing.T) {
	f := NewLeaveTypeFactory()

	builtin, err := f.LoadFile("")
	require.NoError(t, err)
	assert.Len(t, builtin, 3)

	path := filepath.Join(t.TempDir(), "types.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": "study", "name": "Study Leave", "allow_half_day": true}]`), 0o600))
	custom, err := f.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, custom, 1)
	assert.Equal(t, generic.LeaveTypeID("study"), custom[0].ID)

	_, err = f.LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
