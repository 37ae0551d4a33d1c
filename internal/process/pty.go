//go:build unix

package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/Iron-Ham/holrepl/internal/errors"
	"github.com/Iron-Ham/holrepl/internal/logging"
)

// PTYSpawner runs the child on a pseudo-terminal. stdout and stderr are
// merged and reported as Stdout. The terminal echoes input back, so the
// kernel must use prompt-based completion with this spawner.
type PTYSpawner struct {
	Cols   int
	Rows   int
	Logger *logging.Logger
}

// Spawn implements Spawner.
func (s PTYSpawner) Spawn(ctx context.Context, cfg Config, l Listener) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	cmd := exec.Command(cfg.Executable, cfg.Args...)
	cmd.Dir = cfg.WorkDir
	cmd.Env = cfg.environ()

	// pty.Start makes the child a session leader, which also makes it the
	// leader of its process group.
	size := &pty.Winsize{Cols: uint16(max(s.Cols, 20)), Rows: uint16(max(s.Rows, 5))}
	ptmx, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return nil, errors.NewSpawnError(cfg.Executable, err).WithWorkDir(cfg.WorkDir)
	}

	logger := s.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	chLogger := logger.WithComponent("process").With("pid", cmd.Process.Pid, "pty", true)
	ch := &ptyChannel{
		cmd: cmd,
		// ptmx is also read from, so run closes it once output is drained.
		stdin:    newStdinWriter(ptmx, nil, chLogger),
		ptmx:     ptmx,
		pid:      cmd.Process.Pid,
		listener: l,
		done:     make(chan struct{}),
		logger:   chLogger,
	}
	ch.logger.Debug("process spawned", "executable", cfg.Executable, "args", cfg.Args, "cwd", cfg.WorkDir)

	go ch.run(cfg.ReadBufferSize, cfg.ExitDrainTimeout)
	return ch, nil
}

type ptyChannel struct {
	cmd      *exec.Cmd
	stdin    *stdinWriter
	ptmx     *os.File
	pid      int
	listener Listener
	logger   *logging.Logger

	mu     sync.Mutex
	killed bool
	exited bool

	done chan struct{}
}

func (c *ptyChannel) run(bufSize int, grace time.Duration) {
	drained := make(chan struct{})
	go func() {
		// Reads fail with EIO once every holder of the terminal closes it.
		pump(Stdout, c.ptmx, bufSize, c.listener)
		close(drained)
	}()

	err := reap(c.cmd)

	c.mu.Lock()
	c.exited = true
	c.mu.Unlock()
	c.stdin.close()

	awaitDrain(drained, grace, c.logger, c.ptmx)

	c.logger.Debug("process exited", "error", err)
	c.listener.OnExit(err)
	close(c.done)
}

func (c *ptyChannel) Write(p []byte) error {
	if !c.Alive() {
		return ErrNotRunning
	}
	return writeErr(c.pid, c.stdin.enqueue(p))
}

func (c *ptyChannel) Signal(sig Signal, scope Scope) error {
	if !c.Alive() {
		return ErrNotRunning
	}
	if err := sendSignal(c.cmd.Process, c.pid, sig, scope); err != nil {
		return fmt.Errorf("send %s to pid %d: %w", sig, c.pid, err)
	}
	if sig == SignalTerm {
		c.mu.Lock()
		c.killed = true
		c.mu.Unlock()
	}
	return nil
}

func (c *ptyChannel) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid > 0 && !c.killed && !c.exited
}

func (c *ptyChannel) Pid() int { return c.pid }

func (c *ptyChannel) Done() <-chan struct{} { return c.done }

// Resize changes the terminal size seen by the child.
func (c *ptyChannel) Resize(cols, rows int) error {
	return pty.Setsize(c.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

var _ Resizer = (*ptyChannel)(nil)

// NewSpawner returns a PTYSpawner when usePTY is set, otherwise a PipeSpawner.
func NewSpawner(usePTY bool, cols, rows int, logger *logging.Logger) Spawner {
	if usePTY {
		return PTYSpawner{Cols: cols, Rows: rows, Logger: logger}
	}
	return PipeSpawner{Logger: logger}
}
