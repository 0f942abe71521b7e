package hashcat

import (
	"sync"
	"time"
)

// LifecycleState is the state of a single hashcat run
type LifecycleState int

const (
	// StateNew means the controller has not been launched
	StateNew LifecycleState = iota
	// StateStarting means the process was spawned but has not reported status yet
	StateStarting
	// StateRunning means at least one status line was accepted
	StateRunning
	// StateDone means the process exited (or never started) and cleanup ran
	StateDone
)

// String returns a human-readable representation of the lifecycle state
func (s LifecycleState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal returns true if no further transition is possible
func (s LifecycleState) IsTerminal() bool {
	return s == StateDone
}

// stateManager tracks lifecycle transitions. States only move forward, so a
// late or repeated transition request is rejected instead of rewinding.
type stateManager struct {
	mu             sync.RWMutex
	current        LifecycleState
	stateChangedAt time.Time
}

func newStateManager() *stateManager {
	return &stateManager{
		current:        StateNew,
		stateChangedAt: time.Now(),
	}
}

// TransitionTo moves to next if it is ahead of the current state
func (m *stateManager) TransitionTo(next LifecycleState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if next <= m.current {
		return false
	}
	m.current = next
	m.stateChangedAt = time.Now()
	return true
}

// transitionFrom moves from -> to atomically, failing if the state is not from
func (m *stateManager) transitionFrom(from, to LifecycleState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != from || to <= from {
		return false
	}
	m.current = to
	m.stateChangedAt = time.Now()
	return true
}

// GetState returns the current state
func (m *stateManager) GetState() LifecycleState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// GetStateInfo returns the current state and when it was entered
func (m *stateManager) GetStateInfo() (LifecycleState, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.stateChangedAt
}

// TimeSinceStateChange returns how long the run has been in the current state
func (m *stateManager) TimeSinceStateChange() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Since(m.stateChangedAt)
}
