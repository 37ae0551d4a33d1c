package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogFileName is the name of the log file inside Options.Dir.
const LogFileName = "debug.log"

// Options configures NewLogger.
type Options struct {
	// Dir is the directory holding debug.log. Empty means stderr.
	Dir string
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string
	// Rotation enables size-based rotation when MaxSizeMB > 0.
	Rotation RotationConfig
}

// output is the destination shared by a root Logger and its children.
type output struct {
	mu     sync.Mutex
	closer io.Closer
}

// Logger writes structured log lines tagged with session, execution and
// component attributes. Children derived with the With* methods share the
// parent's destination. It is safe for concurrent use.
type Logger struct {
	slog *slog.Logger
	out  *output
}

// NewLogger creates a Logger that writes JSON lines to {Dir}/debug.log,
// or to stderr when Dir is empty.
func NewLogger(opts Options) (*Logger, error) {
	if opts.Dir == "" {
		return NewWithWriter(os.Stderr, opts.Level), nil
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w, err := openLogFile(filepath.Join(opts.Dir, LogFileName), opts.Rotation)
	if err != nil {
		return nil, err
	}
	l := NewWithWriter(w, opts.Level)
	l.out.closer = w
	return l, nil
}

func openLogFile(path string, rotation RotationConfig) (io.WriteCloser, error) {
	if rotation.MaxSizeMB > 0 {
		return NewRotatingWriter(path, rotation)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// NewWithWriter creates a Logger writing JSON lines to w.
func NewWithWriter(w io.Writer, level string) *Logger {
	return newLogger(slog.NewJSONHandler(w, handlerOptions(level)))
}

// NewConsole creates a Logger writing key=value lines to w, for warnings
// shown on a terminal when no log file is configured.
func NewConsole(w io.Writer, level string) *Logger {
	return newLogger(slog.NewTextHandler(w, handlerOptions(level)))
}

func newLogger(h slog.Handler) *Logger {
	return &Logger{slog: slog.New(h), out: &output{}}
}

func handlerOptions(level string) *slog.HandlerOptions {
	return &slog.HandlerOptions{Level: slogLevel(level)}
}

// slogLevel maps a level name to slog.Level, defaulting to INFO.
func slogLevel(level string) slog.Level {
	switch ParseLevel(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithSession returns a child Logger tagged with the workspace session ID.
func (l *Logger) WithSession(sessionID string) *Logger {
	return l.derive(slog.String("session_id", sessionID))
}

// WithExecution returns a child Logger tagged with an execution ID.
func (l *Logger) WithExecution(executionID string) *Logger {
	return l.derive(slog.String("execution_id", executionID))
}

// WithComponent returns a child Logger tagged with a component name
// such as "kernel", "process" or "notebook".
func (l *Logger) WithComponent(component string) *Logger {
	return l.derive(slog.String("component", component))
}

// With returns a child Logger with key-value attributes. Pairs whose key is
// not a string are dropped.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	attrs := make([]any, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			attrs = append(attrs, slog.Any(key, args[i+1]))
		}
	}
	return &Logger{slog: l.slog.With(attrs...), out: l.out}
}

func (l *Logger) derive(attr slog.Attr) *Logger {
	return &Logger{slog: l.slog.With(attr), out: l.out}
}

// Debug logs a message at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Log(context.Background(), slog.LevelDebug, msg, args...)
}

// Info logs a message at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Log(context.Background(), slog.LevelInfo, msg, args...)
}

// Warn logs a message at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Log(context.Background(), slog.LevelWarn, msg, args...)
}

// Error logs a message at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Log(context.Background(), slog.LevelError, msg, args...)
}

// Enabled reports whether messages at level would be written. Callers use
// it to skip building large attributes such as raw REPL output.
func (l *Logger) Enabled(level string) bool {
	return l.slog.Enabled(context.Background(), slogLevel(level))
}

// Close closes the log file. Children share the file, so closing any of
// them closes it for all. Closing a writer-backed logger is a no-op.
func (l *Logger) Close() error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.closer == nil {
		return nil
	}
	err := l.out.closer.Close()
	l.out.closer = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// NopLogger returns a Logger that discards all log output.
func NopLogger() *Logger {
	return newLogger(slog.NewJSONHandler(io.Discard, handlerOptions(LevelError)))
}

// ParseLevel normalizes a user-provided level string.
// Returns LevelInfo if the level string is not recognized.
func ParseLevel(level string) string {
	switch up := strings.ToUpper(level); up {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return up
	default:
		return LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
