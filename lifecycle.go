package hostbridge

// LifecycleState models the per-instance plugin state machine.
//
// State transitions:
//
//	Created → Starting → Running → Stopping → Stopped
//	Any non-terminal state → Failed
type LifecycleState uint8

const (
	// StateCreated means the instance exists but has not been started.
	StateCreated LifecycleState = iota
	// StateStarting means the startup hook is running.
	StateStarting
	// StateRunning means the instance accepts and dispatches requests.
	StateRunning
	// StateStopping means shutdown has begun; new work is rejected.
	StateStopping
	// StateStopped means the instance has shut down cleanly.
	StateStopped
	// StateFailed means the instance hit a fatal error and must be discarded.
	StateFailed
)

// StateInvalid is returned by the boundary for handles that do not exist.
const StateInvalid uint8 = 255

func (s LifecycleState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CanTransitionTo reports whether the state machine allows moving from s
// to target.
func (s LifecycleState) CanTransitionTo(target LifecycleState) bool {
	switch {
	case s == StateCreated && target == StateStarting:
		return true
	case s == StateStarting && target == StateRunning:
		return true
	case s == StateRunning && target == StateStopping:
		return true
	case s == StateStopping && target == StateStopped:
		return true
	case target == StateFailed && !s.IsTerminal():
		return true
	default:
		return false
	}
}

// CanDispatch reports whether requests may be admitted in this state.
func (s LifecycleState) CanDispatch() bool {
	return s == StateRunning
}

// IsTerminal reports whether the instance can never leave this state.
func (s LifecycleState) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// StateFromCode converts a boundary state byte back into a LifecycleState.
// The second return is false for StateInvalid or any unassigned byte.
func StateFromCode(code uint8) (LifecycleState, bool) {
	if code > uint8(StateFailed) {
		return StateFailed, false
	}
	return LifecycleState(code), true
}
