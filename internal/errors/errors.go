// Package errors provides centralized error definitions and error handling
// utilities for holrepl. It defines the sentinel errors, the typed errors for
// each failure class of a REPL session, and classification helpers that the
// session layer uses to decide what is shown to the user and what is only
// logged.
//
// # Error Taxonomy
//
//   - SpawnError: the REPL executable is missing or cannot be executed.
//     Returned from Kernel.Start; the session stays idle.
//   - NotRunningError: an operation that needs a live process was invoked
//     while idle. User-facing, never fatal.
//   - ProcessDeathError: the process exited while the session believed it
//     was alive. Every in-flight and queued execution fails with it.
//   - PreprocessError: goal or subgoal text could not be extracted.
//
// Execution failures (error marker in output, stderr data) are recorded on
// the execution itself and never surface as Go errors from kernel calls.
//
// # Usage
//
//	err := errors.NewSpawnError("/opt/hol/bin/hol", cause)
//	if errors.Is(err, errors.ErrSpawnFailed) { ... }
//
//	var spawnErr *errors.SpawnError
//	if errors.As(err, &spawnErr) { ... }
//
//	if errors.IsUserFacing(err) { notifier.ShowError(err.Error()) }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Session-related sentinel errors
var (
	// ErrSessionActive indicates a start request while a session is already active.
	ErrSessionActive = New("session already active")
	// ErrNoActiveSession indicates a session-requiring command with no session.
	ErrNoActiveSession = New("no active session")
	// ErrWorkspaceLocked indicates another holrepl process owns the workspace session.
	ErrWorkspaceLocked = New("workspace session is locked by another process")
)

// Process-related sentinel errors
var (
	// ErrNotRunning indicates that the REPL process is not started.
	ErrNotRunning = New("process is not started")
	// ErrSpawnFailed indicates that the REPL process could not be spawned.
	ErrSpawnFailed = New("failed to spawn process")
	// ErrStartRejected indicates the process wrote to stderr before becoming ready.
	ErrStartRejected = New("process failed to become ready")
	// ErrProcessExited indicates that the process exited unexpectedly.
	ErrProcessExited = New("process exited")
	// ErrSignalUnsupported indicates the platform cannot deliver the requested signal.
	ErrSignalUnsupported = New("signal not supported on this platform")
)

// Preprocessing sentinel errors
var (
	// ErrNoGoal indicates that no goal could be extracted at the cursor.
	ErrNoGoal = New("unable to extract goal")
	// ErrNoSubgoal indicates that no subgoal could be extracted from the selection.
	ErrNoSubgoal = New("unable to extract subgoal")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrClosed indicates use of a component after Close.
	ErrClosed = New("closed")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// HolreplError is the base interface for all holrepl errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type HolreplError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Process Errors
// -----------------------------------------------------------------------------

// SpawnError reports that the REPL executable could not be started.
//
// Example:
//
//	err := errors.NewSpawnError("/opt/hol/bin/hol", execErr).WithWorkDir("/proj")
//	fmt.Println(err) // "spawn error [exe=/opt/hol/bin/hol, cwd=/proj]: failed to spawn process: ..."
type SpawnError struct {
	baseError
	Executable string
	WorkDir    string
}

// NewSpawnError creates a new SpawnError.
func NewSpawnError(executable string, cause error) *SpawnError {
	return &SpawnError{
		baseError: baseError{
			message:    ErrSpawnFailed.Error(),
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
		Executable: executable,
	}
}

// WithWorkDir adds the working directory to the error context.
func (e *SpawnError) WithWorkDir(dir string) *SpawnError {
	e.WorkDir = dir
	return e
}

// Error returns the formatted error message.
func (e *SpawnError) Error() string {
	var parts []string
	if e.Executable != "" {
		parts = append(parts, fmt.Sprintf("exe=%s", e.Executable))
	}
	if e.WorkDir != "" {
		parts = append(parts, fmt.Sprintf("cwd=%s", e.WorkDir))
	}

	prefix := "spawn error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("spawn error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is matches other SpawnErrors and ErrSpawnFailed, then defers to the cause.
func (e *SpawnError) Is(target error) bool {
	if _, ok := target.(*SpawnError); ok {
		return true
	}
	if target == ErrSpawnFailed {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// NotRunningError reports an operation that requires a live process.
//
// Example:
//
//	err := errors.NewNotRunningError("interrupt")
//	fmt.Println(err) // "interrupt: process is not started"
type NotRunningError struct {
	baseError
	Operation string
}

// NewNotRunningError creates a new NotRunningError for the named operation.
func NewNotRunningError(operation string) *NotRunningError {
	return &NotRunningError{
		baseError: baseError{
			message:    ErrNotRunning.Error(),
			severity:   SeverityWarning,
			userFacing: true,
		},
		Operation: operation,
	}
}

// Error returns the formatted error message.
func (e *NotRunningError) Error() string {
	if e.Operation == "" {
		return e.message
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.message)
}

// Is matches other NotRunningErrors and ErrNotRunning.
func (e *NotRunningError) Is(target error) bool {
	if _, ok := target.(*NotRunningError); ok {
		return true
	}
	return target == ErrNotRunning
}

// ProcessDeathError reports that the REPL process exited while in use.
type ProcessDeathError struct {
	baseError
	Pid int
}

// NewProcessDeathError creates a new ProcessDeathError. The cause is the
// wait error of the process, which is nil for a clean exit.
func NewProcessDeathError(pid int, cause error) *ProcessDeathError {
	return &ProcessDeathError{
		baseError: baseError{
			message:    ErrProcessExited.Error(),
			cause:      cause,
			severity:   SeverityCritical,
			userFacing: true,
		},
		Pid: pid,
	}
}

// Error returns the formatted error message.
func (e *ProcessDeathError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s [pid=%d]: %v", e.message, e.Pid, e.cause)
	}
	return fmt.Sprintf("%s [pid=%d]", e.message, e.Pid)
}

// Is matches other ProcessDeathErrors and ErrProcessExited.
func (e *ProcessDeathError) Is(target error) bool {
	if _, ok := target.(*ProcessDeathError); ok {
		return true
	}
	if target == ErrProcessExited {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// Session and Preprocessing Errors
// -----------------------------------------------------------------------------

// SessionError represents errors related to workspace session management.
//
// Example:
//
//	err := errors.NewSessionError("cannot start", errors.ErrSessionActive).WithWorkspace("/proj")
type SessionError struct {
	baseError
	Workspace string
}

// NewSessionError creates a new SessionError.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithWorkspace adds the workspace root to the error context.
func (e *SessionError) WithWorkspace(root string) *SessionError {
	e.Workspace = root
	return e
}

// WithSeverity sets the error severity.
func (e *SessionError) WithSeverity(s Severity) *SessionError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	prefix := "session error"
	if e.Workspace != "" {
		prefix = fmt.Sprintf("session error [workspace=%s]", e.Workspace)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SessionError) Is(target error) bool {
	if _, ok := target.(*SessionError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// PreprocessError reports text that could not be turned into a REPL command.
type PreprocessError struct {
	baseError
	Offset int
}

// NewPreprocessError creates a new PreprocessError wrapping one of the
// preprocessing sentinels.
func NewPreprocessError(cause error, offset int) *PreprocessError {
	return &PreprocessError{
		baseError: baseError{
			message:    "preprocess",
			cause:      cause,
			severity:   SeverityWarning,
			userFacing: true,
		},
		Offset: offset,
	}
}

// Error returns the message of the wrapped sentinel, which is what users see.
func (e *PreprocessError) Error() string {
	if e.cause == nil {
		return e.message
	}
	if e.Offset >= 0 {
		return fmt.Sprintf("%v (offset %d)", e.cause, e.Offset)
	}
	return e.cause.Error()
}

// TimeoutError represents an operation that did not finish in time.
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    ErrTimeout.Error(),
			severity:   SeverityWarning,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Duration)
}

// Is matches other TimeoutErrors and ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	return target == ErrTimeout
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsUserFacing returns true if the error message is safe to display to end users.
// Typed holrepl errors report their own flag; the session and preprocessing
// sentinels are user-facing even when wrapped with fmt.Errorf.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var holErr HolreplError
	if As(err, &holErr) {
		return holErr.IsUserFacing()
	}

	for _, sentinel := range []error{ErrSessionActive, ErrNoActiveSession, ErrWorkspaceLocked, ErrNotRunning, ErrNoGoal, ErrNoSubgoal} {
		if Is(err, sentinel) {
			return true
		}
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement HolreplError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var holErr HolreplError
	if As(err, &holErr) {
		return holErr.Severity()
	}

	return SeverityError
}

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to read deps file")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
