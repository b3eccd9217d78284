package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_EnsureCreatesDefaultEntry(t *testing.T) {
	s := NewStore()
	s.Ensure(222001)
	s.Ensure(222001)

	assert.Equal(t, 1, s.Count())

	e, err := s.Get(222001)
	require.NoError(t, err)
	assert.Equal(t, RoleDefault, e.Role)
	assert.False(t, e.IsTriggering)
	assert.Equal(t, DefaultTriggerThreshold, e.TriggerThreshold)
	assert.Equal(t, ConditionGreaterThan, e.TriggerCondition)
}

func TestStore_Assign(t *testing.T) {
	s := NewStore()
	s.AssignAsSensor(222001)
	s.AssignAsController(111000)
	s.AssignAsActuator(222005, "Activating sprinklers!")

	sensor, err := s.Get(222001)
	require.NoError(t, err)
	assert.Equal(t, RoleSensor, sensor.Role)

	controller, err := s.Get(111000)
	require.NoError(t, err)
	assert.Equal(t, RoleController, controller.Role)

	actuator, err := s.Get(222005)
	require.NoError(t, err)
	assert.Equal(t, RoleActuator, actuator.Role)
	assert.Equal(t, "Activating sprinklers!", actuator.TriggerMessage)

	err = s.Assign(222006, Role(9), "")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestStore_MissingEntry(t *testing.T) {
	s := NewStore()

	_, err := s.Get(1)
	assert.ErrorIs(t, err, ErrEntryNotFound)
	assert.ErrorIs(t, s.MarkTriggering(1), ErrEntryNotFound)
	assert.ErrorIs(t, s.SetTrigger(1, 10, ConditionLessThan), ErrEntryNotFound)
}

func TestStore_MarkTriggeringAndReassign(t *testing.T) {
	s := NewStore()
	s.AssignAsActuator(222007, "Contacting the RFS.")
	require.NoError(t, s.MarkTriggering(222007))

	e, _ := s.Get(222007)
	assert.True(t, e.IsTriggering)

	// Demoting an actuator clears its trigger state
	s.AssignAsSensor(222007)
	e, _ = s.Get(222007)
	assert.False(t, e.IsTriggering)
}

func TestEntry_Evaluate(t *testing.T) {
	tests := []struct {
		name      string
		threshold int64
		condition Condition
		readings  []int64
		want      int64
		met       bool
	}{
		{"greater than fires", 37000, ConditionGreaterThan, []int64{9002, 37011}, 37011, true},
		{"greater than at threshold", 37000, ConditionGreaterThan, []int64{37000}, 0, false},
		{"less than fires", 100, ConditionLessThan, []int64{500, 20}, 20, true},
		{"equal fires", 9006, ConditionEqual, []int64{9002, 9006}, 9006, true},
		{"no readings", 0, ConditionGreaterThan, nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Entry{TriggerThreshold: tt.threshold, TriggerCondition: tt.condition}
			got, met := e.Evaluate(tt.readings)
			assert.Equal(t, tt.met, met)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_SetTrigger(t *testing.T) {
	s := NewStore()
	s.AssignAsActuator(222010, "Activating emergency sirens!")

	require.NoError(t, s.SetTrigger(222010, 50, ConditionLessThan))
	e, _ := s.Get(222010)
	assert.Equal(t, int64(50), e.TriggerThreshold)
	assert.Equal(t, ConditionLessThan, e.TriggerCondition)

	assert.ErrorIs(t, s.SetTrigger(222010, 50, Condition(7)), ErrInvalidCondition)
}

func TestParse(t *testing.T) {
	r, err := ParseRole("actuator")
	require.NoError(t, err)
	assert.Equal(t, RoleActuator, r)
	_, err = ParseRole("relay")
	assert.ErrorIs(t, err, ErrInvalidRole)

	c, err := ParseCondition("lt")
	require.NoError(t, err)
	assert.Equal(t, ConditionLessThan, c)
	_, err = ParseCondition("between")
	assert.ErrorIs(t, err, ErrInvalidCondition)
}

func TestStore_AllAndRestore(t *testing.T) {
	s := NewStore()
	s.Ensure(3)
	s.Ensure(1)
	s.AssignAsSensor(2)

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, uint64(1), all[0].Address)
	assert.Equal(t, uint64(3), all[2].Address)

	other := NewStore()
	other.Restore(all)
	assert.Equal(t, 3, other.Count())
	e, err := other.Get(2)
	require.NoError(t, err)
	assert.Equal(t, RoleSensor, e.Role)
}
