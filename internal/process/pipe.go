package process

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/holrepl/internal/errors"
	"github.com/Iron-Ham/holrepl/internal/logging"
)

// PipeSpawner starts the child with separate stdin, stdout and stderr pipes.
// On unix the child leads its own process group so group signals reach any
// helpers it starts.
type PipeSpawner struct {
	Logger *logging.Logger
}

// Spawn implements Spawner. ctx only bounds the spawn itself; the child
// outlives it.
func (s PipeSpawner) Spawn(ctx context.Context, cfg Config, l Listener) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	cmd := exec.Command(cfg.Executable, cfg.Args...)
	cmd.Dir = cfg.WorkDir
	cmd.Env = cfg.environ()
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.NewSpawnError(cfg.Executable, err).WithWorkDir(cfg.WorkDir)
	}

	logger := s.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	chLogger := logger.WithComponent("process").With("pid", cmd.Process.Pid)
	ch := &pipeChannel{
		cmd:      cmd,
		stdin:    newStdinWriter(stdin, stdin, chLogger),
		pid:      cmd.Process.Pid,
		listener: l,
		done:     make(chan struct{}),
		logger:   chLogger,
	}
	ch.logger.Debug("process spawned", "executable", cfg.Executable, "args", cfg.Args, "cwd", cfg.WorkDir)

	go ch.run(cfg.ReadBufferSize, cfg.ExitDrainTimeout, stdout, stderr)
	return ch, nil
}

type pipeChannel struct {
	cmd      *exec.Cmd
	stdin    *stdinWriter
	pid      int
	listener Listener
	logger   *logging.Logger

	mu     sync.Mutex
	killed bool
	exited bool

	done chan struct{}
}

// run reaps the child while both pipes drain. cmd.Wait is not used because
// it closes the read ends as soon as the child exits, losing buffered
// output. A helper the REPL started may keep the pipes open after the REPL
// itself is gone, so draining is bounded by grace once the child is reaped.
func (c *pipeChannel) run(bufSize int, grace time.Duration, stdout, stderr io.ReadCloser) {
	var wg conc.WaitGroup
	wg.Go(func() { pump(Stdout, stdout, bufSize, c.listener) })
	wg.Go(func() { pump(Stderr, stderr, bufSize, c.listener) })
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	err := reap(c.cmd)

	c.mu.Lock()
	c.exited = true
	c.mu.Unlock()
	c.stdin.close()

	awaitDrain(drained, grace, c.logger, stdout, stderr)

	c.logger.Debug("process exited", "error", err)
	c.listener.OnExit(err)
	close(c.done)
}

// reap waits for the child itself, not for its I/O. The result matches what
// cmd.Wait would have returned.
func reap(cmd *exec.Cmd) error {
	state, err := cmd.Process.Wait()
	if err != nil {
		return err
	}
	cmd.ProcessState = state
	if !state.Success() {
		return &exec.ExitError{ProcessState: state}
	}
	return nil
}

// awaitDrain waits for the readers to finish, closing the read ends if they
// are still open after grace. The read ends are closed either way. A reader
// on a blocking descriptor may not notice the close, so the wait after it is
// bounded too.
func awaitDrain(drained <-chan struct{}, grace time.Duration, logger *logging.Logger, readers ...io.Closer) {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-drained:
	case <-timer.C:
		logger.Warn("output still open after exit, closing it", "grace", grace)
		for _, r := range readers {
			r.Close()
		}
		timer.Reset(grace)
		select {
		case <-drained:
		case <-timer.C:
			logger.Warn("reader still blocked after close")
		}
	}
	for _, r := range readers {
		r.Close()
	}
}

func pump(stream Stream, r io.Reader, bufSize int, l Listener) {
	buf := make([]byte, bufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			l.OnData(stream, chunk)
		}
		if err != nil {
			return
		}
	}
}

// Write queues p for the child's stdin and returns without waiting for the
// child to read it.
func (c *pipeChannel) Write(p []byte) error {
	if !c.Alive() {
		return ErrNotRunning
	}
	return writeErr(c.pid, c.stdin.enqueue(p))
}

func writeErr(pid int, err error) error {
	if err == nil || errors.Is(err, ErrNotRunning) {
		return err
	}
	return fmt.Errorf("write to pid %d: %w", pid, err)
}

func (c *pipeChannel) Signal(sig Signal, scope Scope) error {
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
	c.logger.Debug("signal sent", "signal", sig.String(), "group", scope == ScopeGroup)
	return nil
}

func (c *pipeChannel) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid > 0 && !c.killed && !c.exited
}

func (c *pipeChannel) Pid() int { return c.pid }

func (c *pipeChannel) Done() <-chan struct{} { return c.done }
