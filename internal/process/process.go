package process

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Iron-Ham/holrepl/internal/errors"
)

// ErrNotRunning is returned by Write and Signal once the process has exited
// or been killed.
var ErrNotRunning = errors.ErrNotRunning

// Stream identifies which output pipe a chunk came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Signal is a portable signal name.
type Signal int

const (
	// SignalTerm asks the REPL to exit.
	SignalTerm Signal = iota
	// SignalInt interrupts the running evaluation.
	SignalInt
)

func (s Signal) String() string {
	switch s {
	case SignalTerm:
		return "TERM"
	case SignalInt:
		return "INT"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Scope selects who receives a signal.
type Scope int

const (
	// ScopeGroup signals the child's whole process group.
	ScopeGroup Scope = iota
	// ScopeProcess signals only the direct child.
	ScopeProcess
)

// Config describes the process to spawn.
type Config struct {
	// WorkDir is the child's working directory.
	WorkDir string
	// Executable is the path of the binary to run.
	Executable string
	// Args are passed to the executable.
	Args []string
	// Env overrides entries of the inherited environment ("KEY=value").
	Env []string
	// Term is forced into TERM. Defaults to "dumb".
	Term string
	// ReadBufferSize is the size of each pipe read. Defaults to 32KiB.
	ReadBufferSize int
	// ExitDrainTimeout bounds how long output is still read after the child
	// has been reaped, for helpers that inherited its output. Defaults to
	// 250ms.
	ExitDrainTimeout time.Duration
}

const (
	defaultReadBufferSize   = 32 * 1024
	defaultExitDrainTimeout = 250 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.Term == "" {
		c.Term = "dumb"
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = defaultReadBufferSize
	}
	if c.ExitDrainTimeout <= 0 {
		c.ExitDrainTimeout = defaultExitDrainTimeout
	}
	return c
}

// environ returns the inherited environment with overrides applied.
func (c Config) environ() []string {
	overrides := append([]string{"TERM=" + c.Term}, c.Env...)
	keys := make(map[string]bool, len(overrides))
	for _, kv := range overrides {
		if k, _, ok := strings.Cut(kv, "="); ok {
			keys[k] = true
		}
	}

	env := make([]string, 0, len(os.Environ())+len(overrides))
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok && keys[k] {
			continue
		}
		env = append(env, kv)
	}
	return append(env, overrides...)
}

// Listener receives a process's output and its exit.
//
// OnData is called from reader goroutines; chunks on one stream arrive in
// order, chunks on different streams may interleave. OnExit is called exactly
// once, after the child has been reaped and its output drained, or after
// Config.ExitDrainTimeout if something else still holds the output open.
type Listener interface {
	OnData(stream Stream, chunk []byte)
	OnExit(err error)
}

// Channel is a running child process.
type Channel interface {
	// Write queues bytes for the child's stdin. It never waits for the child
	// to read them.
	Write(p []byte) error
	// Signal delivers sig to the child or its process group.
	Signal(sig Signal, scope Scope) error
	// Alive reports whether the child has a PID, has not been killed and has
	// not reported an exit status.
	Alive() bool
	// Pid returns the child's process ID.
	Pid() int
	// Done is closed after OnExit has been delivered.
	Done() <-chan struct{}
}

// Spawner starts child processes.
type Spawner interface {
	Spawn(ctx context.Context, cfg Config, l Listener) (Channel, error)
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are ignored.
type ListenerFuncs struct {
	Data func(stream Stream, chunk []byte)
	Exit func(err error)
}

func (f ListenerFuncs) OnData(stream Stream, chunk []byte) {
	if f.Data != nil {
		f.Data(stream, chunk)
	}
}

func (f ListenerFuncs) OnExit(err error) {
	if f.Exit != nil {
		f.Exit(err)
	}
}

// Resizer is implemented by channels backed by a pseudo-terminal.
type Resizer interface {
	Resize(cols, rows int) error
}
