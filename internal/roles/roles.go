// Package roles keeps the per-node role bookkeeping used to decide which
// actuators fire when aggregated readings cross their threshold.
package roles

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrEntryNotFound    = errors.New("role entry not found")
	ErrInvalidRole      = errors.New("invalid node role")
	ErrInvalidCondition = errors.New("invalid trigger condition")
)

// Role is the function a node serves in the application layer
type Role int

const (
	RoleDefault Role = iota
	RoleSensor
	RoleController
	RoleActuator
)

func (r Role) String() string {
	switch r {
	case RoleDefault:
		return "Default"
	case RoleSensor:
		return "Sensor"
	case RoleController:
		return "Controller"
	case RoleActuator:
		return "Actuator"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole converts a role name into a Role
func ParseRole(s string) (Role, error) {
	switch s {
	case "default", "Default":
		return RoleDefault, nil
	case "sensor", "Sensor":
		return RoleSensor, nil
	case "controller", "Controller":
		return RoleController, nil
	case "actuator", "Actuator":
		return RoleActuator, nil
	}
	return RoleDefault, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Condition compares a reading against an actuator threshold
type Condition int

const (
	ConditionGreaterThan Condition = iota
	ConditionLessThan
	ConditionEqual
)

func (c Condition) String() string {
	switch c {
	case ConditionGreaterThan:
		return "GreaterThan"
	case ConditionLessThan:
		return "LessThan"
	case ConditionEqual:
		return "Equal"
	default:
		return fmt.Sprintf("Condition(%d)", int(c))
	}
}

// ParseCondition converts a condition name into a Condition
func ParseCondition(s string) (Condition, error) {
	switch s {
	case "gt", "GreaterThan", "greater-than":
		return ConditionGreaterThan, nil
	case "lt", "LessThan", "less-than":
		return ConditionLessThan, nil
	case "eq", "Equal", "equal":
		return ConditionEqual, nil
	}
	return ConditionGreaterThan, fmt.Errorf("%w: %q", ErrInvalidCondition, s)
}

// Holds reports whether reading satisfies the condition against threshold
func (c Condition) Holds(reading, threshold int64) bool {
	switch c {
	case ConditionGreaterThan:
		return reading > threshold
	case ConditionLessThan:
		return reading < threshold
	case ConditionEqual:
		return reading == threshold
	}
	return false
}

const (
	// DefaultTriggerThreshold is the threshold new actuators start with
	DefaultTriggerThreshold int64 = 37000
	// DefaultTriggerCondition is the condition new actuators start with
	DefaultTriggerCondition = ConditionGreaterThan
)

// Entry is the role record of a single node
type Entry struct {
	Address          uint64    `json:"address"`
	Role             Role      `json:"role"`
	IsTriggering     bool      `json:"isTriggeringExternalService"`
	TriggerMessage   string    `json:"triggerMessage"`
	TriggerThreshold int64     `json:"triggerThreshold"`
	TriggerCondition Condition `json:"triggerCondition"`
}

// Evaluate returns the first reading that satisfies the entry's trigger
func (e Entry) Evaluate(readings []int64) (int64, bool) {
	for _, r := range readings {
		if e.TriggerCondition.Holds(r, e.TriggerThreshold) {
			return r, true
		}
	}
	return 0, false
}

// Store is a thread-safe in-memory role registry
type Store struct {
	mu      sync.RWMutex
	entries map[uint64]*Entry
}

// NewStore creates an empty role store
func NewStore() *Store {
	return &Store{
		entries: make(map[uint64]*Entry),
	}
}

// Ensure creates a Default entry for address if none exists yet
func (s *Store) Ensure(address uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLocked(address)
}

func (s *Store) ensureLocked(address uint64) *Entry {
	e, ok := s.entries[address]
	if !ok {
		e = &Entry{
			Address:          address,
			Role:             RoleDefault,
			TriggerThreshold: DefaultTriggerThreshold,
			TriggerCondition: DefaultTriggerCondition,
		}
		s.entries[address] = e
	}
	return e
}

// AssignAsSensor marks address as a sensor
func (s *Store) AssignAsSensor(address uint64) {
	s.assign(address, RoleSensor, "")
}

// AssignAsController marks address as a controller
func (s *Store) AssignAsController(address uint64) {
	s.assign(address, RoleController, "")
}

// AssignAsActuator marks address as an actuator announcing message when triggered
func (s *Store) AssignAsActuator(address uint64, message string) {
	s.assign(address, RoleActuator, message)
}

func (s *Store) assign(address uint64, role Role, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.ensureLocked(address)
	e.Role = role
	e.TriggerMessage = message
	if role != RoleActuator {
		e.IsTriggering = false
	}
}

// Assign sets an arbitrary role
func (s *Store) Assign(address uint64, role Role, message string) error {
	if role < RoleDefault || role > RoleActuator {
		return fmt.Errorf("%w: %d", ErrInvalidRole, int(role))
	}
	s.assign(address, role, message)
	return nil
}

// SetTrigger changes the threshold and condition of an existing entry
func (s *Store) SetTrigger(address uint64, threshold int64, condition Condition) error {
	if condition < ConditionGreaterThan || condition > ConditionEqual {
		return fmt.Errorf("%w: %d", ErrInvalidCondition, int(condition))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[address]
	if !ok {
		return fmt.Errorf("address %d: %w", address, ErrEntryNotFound)
	}
	e.TriggerThreshold = threshold
	e.TriggerCondition = condition
	return nil
}

// Get returns a copy of the entry for address
func (s *Store) Get(address uint64) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[address]
	if !ok {
		return Entry{}, fmt.Errorf("address %d: %w", address, ErrEntryNotFound)
	}
	return *e, nil
}

// MarkTriggering records that the node is triggering its external service
func (s *Store) MarkTriggering(address uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[address]
	if !ok {
		return fmt.Errorf("address %d: %w", address, ErrEntryNotFound)
	}
	e.IsTriggering = true
	return nil
}

// Count returns the number of entries
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// All returns every entry ordered by address
func (s *Store) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Restore replaces the store content with the given entries
func (s *Store) Restore(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[uint64]*Entry, len(entries))
	for i := range entries {
		e := entries[i]
		s.entries[e.Address] = &e
	}
}
