// Package execution tracks a single unit of text submitted to the REPL:
// its accumulated output, its success flag and its lifecycle.
package execution

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an Execution.
type Status int

const (
	StatusNotStarted Status = iota
	StatusRunning
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusRunning:
		return "running"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Common end reasons.
const (
	ReasonCompleted     = "completed"
	ReasonInterrupted   = "interrupted"
	ReasonCancelled     = "cancelled"
	ReasonProcessExited = "process exited"
	ReasonNotStarted    = "process is not started"
)

// Observer receives an execution's output and its end notification.
// Calls are made on the goroutine that drives the execution and never
// while the execution's lock is held.
type Observer interface {
	OnOutput(e *Execution, text string, isError bool)
	OnEnd(e *Execution)
}

// Option configures a new Execution.
type Option func(*Execution)

// WithDisplay sets the text shown to the user in place of the submitted text.
func WithDisplay(display string) Option {
	return func(e *Execution) { e.display = display }
}

// WithErrorMarker marks the execution failed once its accumulated output
// contains marker. An empty marker disables the check.
func WithErrorMarker(marker string) Option {
	return func(e *Execution) { e.errorMarker = marker }
}

// WithLineBuffering holds partial output lines back from the observer until a
// newline arrives or the execution ends. The output buffer itself is always
// updated immediately.
func WithLineBuffering() Option {
	return func(e *Execution) { e.lineBuffered = true }
}

// Execution is one submitted unit of text. It is created by the kernel,
// driven from the kernel goroutine, and may be read from any goroutine.
type Execution struct {
	id           string
	text         string
	display      string
	errorMarker  string
	lineBuffered bool

	mu        sync.Mutex
	observer  Observer
	status    Status
	success   bool
	reason    string
	output    strings.Builder
	tail      string // last len(errorMarker)-1 bytes of output
	pending   [2]string
	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
	done      chan struct{}
}

// New creates an execution for text. It starts NotStarted and successful.
func New(text string, opts ...Option) *Execution {
	e := &Execution{
		id:        uuid.NewString(),
		text:      text,
		display:   text,
		success:   true,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bind sets the observer. It replaces any previous observer.
func (e *Execution) Bind(o Observer) {
	e.mu.Lock()
	e.observer = o
	e.mu.Unlock()
}

// Start records the start time. It has no effect unless the execution has
// not started yet.
func (e *Execution) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusNotStarted {
		return
	}
	e.status = StatusRunning
	e.startedAt = time.Now()
}

// Append adds output to the execution. Output after End is dropped.
func (e *Execution) Append(text string, isError bool) {
	if text == "" {
		return
	}

	e.mu.Lock()
	if e.status == StatusEnded {
		e.mu.Unlock()
		return
	}

	e.output.WriteString(text)
	if isError {
		e.success = false
	}
	if e.errorMarker != "" {
		window := e.tail + text
		if strings.Contains(window, e.errorMarker) {
			e.success = false
		}
		if keep := len(e.errorMarker) - 1; len(window) > keep {
			window = window[len(window)-keep:]
		}
		e.tail = window
	}

	emit := text
	if e.lineBuffered {
		emit = e.splitLines(text, isError)
	}
	observer := e.observer
	e.mu.Unlock()

	if observer != nil && emit != "" {
		observer.OnOutput(e, emit, isError)
	}
}

// splitLines returns the complete lines available on the stream and keeps
// the partial remainder. Caller holds mu.
func (e *Execution) splitLines(text string, isError bool) string {
	idx := streamIndex(isError)
	buffered := e.pending[idx] + text
	cut := strings.LastIndexByte(buffered, '\n')
	if cut < 0 {
		e.pending[idx] = buffered
		return ""
	}
	e.pending[idx] = buffered[cut+1:]
	return buffered[:cut+1]
}

func streamIndex(isError bool) int {
	if isError {
		return 1
	}
	return 0
}

// End finalizes the execution and notifies the observer. Only the first call
// has any effect.
func (e *Execution) End(reason string) {
	e.finish(reason, false)
}

// Fail marks the execution failed and ends it. It has no effect on an
// execution that already ended.
func (e *Execution) Fail(reason string) {
	e.finish(reason, true)
}

func (e *Execution) finish(reason string, failed bool) {
	e.mu.Lock()
	if e.status == StatusEnded {
		e.mu.Unlock()
		return
	}
	if failed {
		e.success = false
	}
	e.status = StatusEnded
	e.reason = reason
	e.endedAt = time.Now()
	flushOut, flushErr := e.pending[0], e.pending[1]
	e.pending = [2]string{}
	observer := e.observer
	e.mu.Unlock()

	if observer != nil {
		if flushOut != "" {
			observer.OnOutput(e, flushOut, false)
		}
		if flushErr != "" {
			observer.OnOutput(e, flushErr, true)
		}
		observer.OnEnd(e)
	}
	close(e.done)
}

// Done returns a channel closed after the execution ends and its observer
// has been notified.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the execution ends or ctx is done.
func (e *Execution) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ID returns the execution's unique identifier.
func (e *Execution) ID() string { return e.id }

// Text returns the submitted text.
func (e *Execution) Text() string { return e.text }

// Display returns the text shown to the user.
func (e *Execution) Display() string { return e.display }

// Output returns everything appended so far.
func (e *Execution) Output() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.output.String()
}

// Success reports whether the execution has not failed.
func (e *Execution) Success() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.success
}

// Status returns the lifecycle state.
func (e *Execution) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Reason returns the end reason, empty until the execution ends.
func (e *Execution) Reason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reason
}

// Duration returns the time between Start and End, or since Start while
// running. It is zero for executions that never started.
func (e *Execution) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.startedAt.IsZero():
		return 0
	case e.endedAt.IsZero():
		return time.Since(e.startedAt)
	default:
		return e.endedAt.Sub(e.startedAt)
	}
}

// CreatedAt returns when the execution was submitted.
func (e *Execution) CreatedAt() time.Time { return e.createdAt }
