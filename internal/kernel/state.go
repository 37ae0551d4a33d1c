package kernel

// State is the kernel's lifecycle state.
type State int32

const (
	// StateIdle means no process is running.
	StateIdle State = iota
	// StateStarting means a process was spawned and has not signalled
	// readiness yet.
	StateStarting
	// StateReady means the process is waiting for input.
	StateReady
	// StateExecuting means an execution is current.
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	default:
		return "unknown"
	}
}

// Running reports whether a process is attached.
func (s State) Running() bool {
	return s != StateIdle
}
