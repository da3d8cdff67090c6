/*
Package factory provides JSON to Go leave-type conversion.

PURPOSE:
  Converts JSON leave-type definitions into leave.LeaveType catalog entries,
  so HR can change which types accrue, sandwich or carry forward without a
  code change.

JSON SCHEMA:
  [
    {
      "id": "annual",
      "name": "Annual Leave",
      "accrues": true,
      "carry_forward_cap": 10,
      "sandwich": true,
      "allow_half_day": true
    }
  ]

  carry_forward_cap omitted = engine default cap.

USAGE:
  f := factory.NewLeaveTypeFactory()
  types, err := f.ParseLeaveTypes(factory.DefaultLeaveTypesJSON)

SEE ALSO:
  - leave/types.go: LeaveType definition
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// LeaveTypeJSON is the JSON representation of a leave type.
type LeaveTypeJSON struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Accrues         bool     `json:"accrues"`
	CarryForwardCap *float64 `json:"carry_forward_cap,omitempty"`
	Sandwich        bool     `json:"sandwich"`
	AllowHalfDay    bool     `json:"allow_half_day"`
}

// DefaultLeaveTypesJSON is the built-in catalog.
const DefaultLeaveTypesJSON = `[
  {"id": "annual", "name": "Annual Leave", "accrues": true, "carry_forward_cap": 10, "sandwich": true, "allow_half_day": true},
  {"id": "sick", "name": "Sick Leave", "accrues": false, "sandwich": false, "allow_half_day": true},
  {"id": "casual", "name": "Casual Leave", "accrues": false, "sandwich": true, "allow_half_day": true}
]`

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// =============================================================================
// FACTORY
// =============================================================================

// LeaveTypeFactory converts JSON to leave types.
type LeaveTypeFactory struct{}

func NewLeaveTypeFactory() *LeaveTypeFactory {
	return &LeaveTypeFactory{}
}

// ParseLeaveTypes parses a JSON array of leave types.
func (f *LeaveTypeFactory) ParseLeaveTypes(jsonStr string) ([]leave.LeaveType, error) {
	var items []LeaveTypeJSON
	if err := json.Unmarshal([]byte(jsonStr), &items); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("leave type catalog is empty")
	}

	seen := make(map[string]bool, len(items))
	types := make([]leave.LeaveType, 0, len(items))
	for _, item := range items {
		lt, err := f.FromJSON(item)
		if err != nil {
			return nil, err
		}
		if seen[item.ID] {
			return nil, fmt.Errorf("duplicate leave type %q", item.ID)
		}
		seen[item.ID] = true
		types = append(types, lt)
	}
	return types, nil
}

// LoadFile reads a catalog from path, or the built-in one when path is empty.
func (f *LeaveTypeFactory) LoadFile(path string) ([]leave.LeaveType, error) {
	if path == "" {
		return f.ParseLeaveTypes(DefaultLeaveTypesJSON)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read leave types file: %w", err)
	}
	return f.ParseLeaveTypes(string(data))
}

// FromJSON converts one LeaveTypeJSON.
func (f *LeaveTypeFactory) FromJSON(lj LeaveTypeJSON) (leave.LeaveType, error) {
	if !idPattern.MatchString(lj.ID) {
		return leave.LeaveType{}, generic.Invalid("id", "invalid leave type id %q", lj.ID)
	}
	if lj.Name == "" {
		return leave.LeaveType{}, generic.Invalid("name", "leave type %q: name is required", lj.ID)
	}

	lt := leave.LeaveType{
		ID:           generic.LeaveTypeID(lj.ID),
		Name:         lj.Name,
		Accrues:      lj.Accrues,
		Sandwich:     lj.Sandwich,
		AllowHalfDay: lj.AllowHalfDay,
	}
	if lj.CarryForwardCap != nil {
		if *lj.CarryForwardCap < 0 {
			return leave.LeaveType{}, generic.Invalid("carry_forward_cap", "leave type %q: must not be negative", lj.ID)
		}
		limit := generic.Days(*lj.CarryForwardCap)
		lt.CarryForward = &limit
	}
	return lt, nil
}

// ToJSON converts a leave type back to JSON form.
func (f *LeaveTypeFactory) ToJSON(lt leave.LeaveType) LeaveTypeJSON {
	lj := LeaveTypeJSON{
		ID:           string(lt.ID),
		Name:         lt.Name,
		Accrues:      lt.Accrues,
		Sandwich:     lt.Sandwich,
		AllowHalfDay: lt.AllowHalfDay,
	}
	if lt.CarryForward != nil {
		v := lt.CarryForward.Float()
		lj.CarryForwardCap = &v
	}
	return lj
}
