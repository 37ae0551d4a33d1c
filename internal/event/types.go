package event

import (
	"time"

	"github.com/Iron-Ham/holrepl/internal/execution"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier such as "execution.output".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeSessionStarted   = "session.started"
	TypeSessionStopped   = "session.stopped"
	TypeStateChanged     = "session.state_changed"
	TypeExecutionQueued  = "execution.queued"
	TypeExecutionStarted = "execution.started"
	TypeExecutionOutput  = "execution.output"
	TypeExecutionEnded   = "execution.ended"
	TypeOverflow         = "overflow"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Session Lifecycle Events
// -----------------------------------------------------------------------------

// SessionStartedEvent is emitted once the REPL has signalled readiness.
type SessionStartedEvent struct {
	baseEvent
	Pid        int
	WorkDir    string
	Executable string
}

// NewSessionStartedEvent creates a SessionStartedEvent.
func NewSessionStartedEvent(pid int, workDir, executable string) SessionStartedEvent {
	return SessionStartedEvent{
		baseEvent:  newBaseEvent(TypeSessionStarted),
		Pid:        pid,
		WorkDir:    workDir,
		Executable: executable,
	}
}

// SessionStoppedEvent is emitted when the kernel returns to idle.
type SessionStoppedEvent struct {
	baseEvent
	Pid    int
	Reason string // "stopped", "process exited", "start rejected", ...
	Err    error  // set when the process died unexpectedly
}

// NewSessionStoppedEvent creates a SessionStoppedEvent.
func NewSessionStoppedEvent(pid int, reason string, err error) SessionStoppedEvent {
	return SessionStoppedEvent{
		baseEvent: newBaseEvent(TypeSessionStopped),
		Pid:       pid,
		Reason:    reason,
		Err:       err,
	}
}

// StateChangedEvent is emitted on every kernel state transition.
type StateChangedEvent struct {
	baseEvent
	Previous string
	Current  string
}

// NewStateChangedEvent creates a StateChangedEvent.
func NewStateChangedEvent(previous, current string) StateChangedEvent {
	return StateChangedEvent{
		baseEvent: newBaseEvent(TypeStateChanged),
		Previous:  previous,
		Current:   current,
	}
}

// -----------------------------------------------------------------------------
// Execution Events
// -----------------------------------------------------------------------------

// ExecutionQueuedEvent is emitted when a submission waits behind another.
type ExecutionQueuedEvent struct {
	baseEvent
	Execution *execution.Execution
	Position  int // 1-based position in the queue
}

// NewExecutionQueuedEvent creates an ExecutionQueuedEvent.
func NewExecutionQueuedEvent(exec *execution.Execution, position int) ExecutionQueuedEvent {
	return ExecutionQueuedEvent{
		baseEvent: newBaseEvent(TypeExecutionQueued),
		Execution: exec,
		Position:  position,
	}
}

// ExecutionStartedEvent is emitted when an execution becomes current and its
// text has been written to the process.
type ExecutionStartedEvent struct {
	baseEvent
	Execution *execution.Execution
}

// NewExecutionStartedEvent creates an ExecutionStartedEvent.
func NewExecutionStartedEvent(exec *execution.Execution) ExecutionStartedEvent {
	return ExecutionStartedEvent{
		baseEvent: newBaseEvent(TypeExecutionStarted),
		Execution: exec,
	}
}

// ExecutionOutputEvent carries output attributed to an execution.
type ExecutionOutputEvent struct {
	baseEvent
	Execution *execution.Execution
	Text      string
	IsError   bool
}

// NewExecutionOutputEvent creates an ExecutionOutputEvent.
func NewExecutionOutputEvent(exec *execution.Execution, text string, isError bool) ExecutionOutputEvent {
	return ExecutionOutputEvent{
		baseEvent: newBaseEvent(TypeExecutionOutput),
		Execution: exec,
		Text:      text,
		IsError:   isError,
	}
}

// ExecutionEndedEvent is emitted exactly once per execution.
type ExecutionEndedEvent struct {
	baseEvent
	Execution *execution.Execution
}

// NewExecutionEndedEvent creates an ExecutionEndedEvent.
func NewExecutionEndedEvent(exec *execution.Execution) ExecutionEndedEvent {
	return ExecutionEndedEvent{
		baseEvent: newBaseEvent(TypeExecutionEnded),
		Execution: exec,
	}
}

// OverflowEvent carries output that arrived while no execution was current,
// such as banners, asynchronous messages, or rejected startup output.
type OverflowEvent struct {
	baseEvent
	Text    string
	IsError bool
}

// NewOverflowEvent creates an OverflowEvent.
func NewOverflowEvent(text string, isError bool) OverflowEvent {
	return OverflowEvent{
		baseEvent: newBaseEvent(TypeOverflow),
		Text:      text,
		IsError:   isError,
	}
}
