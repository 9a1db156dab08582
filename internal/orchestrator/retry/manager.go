// Package retry tracks execution attempts per iteration.
//
// The retry engine opens a fresh attempt budget at the start of every
// iteration, records the outcome kind of each attempt and the reason the
// loop stopped. The history is kept for the run summary and for debugging.
package retry

import (
	"maps"
	"slices"
	"sync"
)

// Stop reasons recorded when an attempt loop ends.
const (
	StopSucceeded = "succeeded"
	StopPending   = "pending"
	StopNoChange  = "no_change"
	StopExhausted = "exhausted"
)

// IterationState tracks the attempts made within one iteration.
type IterationState struct {
	Iteration   int      `json:"iteration"`
	Attempts    int      `json:"attempts"`
	MaxAttempts int      `json:"max_attempts"`
	Kinds       []string `json:"kinds,omitempty"` // outcome kind per attempt
	StopReason  string   `json:"stop_reason,omitempty"`
	Succeeded   bool     `json:"succeeded,omitempty"`
	Pending     bool     `json:"pending,omitempty"`
}

// Manager manages attempt state for iterations.
// It is thread-safe and can be used concurrently.
type Manager struct {
	mu     sync.RWMutex
	states map[int]*IterationState
}

// NewManager creates a new retry manager.
func NewManager() *Manager {
	return &Manager{
		states: make(map[int]*IterationState),
	}
}

// Begin opens a fresh attempt budget for an iteration, discarding any
// earlier state for it.
func (m *Manager) Begin(iteration, maxAttempts int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[iteration] = &IterationState{
		Iteration:   iteration,
		MaxAttempts: maxAttempts,
		Kinds:       make([]string, 0, maxAttempts),
	}
}

// CanAttempt reports whether the iteration has budget left and has not
// already reached a terminal outcome.
func (m *Manager) CanAttempt(iteration int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[iteration]
	if !exists {
		return false
	}
	return state.Attempts < state.MaxAttempts && !state.Succeeded && !state.Pending
}

// Remaining returns how many attempts are left in the iteration's budget.
func (m *Manager) Remaining(iteration int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[iteration]
	if !exists {
		return 0
	}
	return max(state.MaxAttempts-state.Attempts, 0)
}

// RecordAttempt records the outcome of one attempt.
func (m *Manager) RecordAttempt(iteration int, kind string, success, pending bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.states[iteration]
	if !exists {
		return
	}
	state.Attempts++
	state.Kinds = append(state.Kinds, kind)
	state.Succeeded = success
	state.Pending = pending
}

// Stop records why the attempt loop ended.
func (m *Manager) Stop(iteration int, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, exists := m.states[iteration]; exists {
		state.StopReason = reason
	}
}

// GetState returns a copy of the iteration's state, or nil if not found.
func (m *Manager) GetState(iteration int) *IterationState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[iteration]
	if !exists {
		return nil
	}
	return copyState(state)
}

// GetFailedIterations returns, in order, the iterations whose attempt loop
// ended without success or a pending outcome.
func (m *Manager) GetFailedIterations() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var failed []int
	for iteration, state := range m.states {
		if state.StopReason != "" && !state.Succeeded && !state.Pending {
			failed = append(failed, iteration)
		}
	}
	slices.Sort(failed)
	return failed
}

// TotalAttempts returns the number of attempts across all iterations.
func (m *Manager) TotalAttempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, state := range m.states {
		total += state.Attempts
	}
	return total
}

// ResetAll clears all attempt state.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states = make(map[int]*IterationState)
}

// GetAllStates returns copies of all iteration states ordered by iteration.
func (m *Manager) GetAllStates() []*IterationState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := slices.Sorted(maps.Keys(m.states))
	result := make([]*IterationState, 0, len(keys))
	for _, k := range keys {
		result = append(result, copyState(m.states[k]))
	}
	return result
}

func copyState(s *IterationState) *IterationState {
	c := *s
	c.Kinds = slices.Clone(s.Kinds)
	return &c
}
