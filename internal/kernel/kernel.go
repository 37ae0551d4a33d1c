package kernel

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/holrepl/internal/config"
	"github.com/Iron-Ham/holrepl/internal/errors"
	"github.com/Iron-Ham/holrepl/internal/event"
	"github.com/Iron-Ham/holrepl/internal/execution"
	"github.com/Iron-Ham/holrepl/internal/logging"
	"github.com/Iron-Ham/holrepl/internal/process"
)

// DefaultPromptPattern matches the HOL prompt on an otherwise empty line.
const DefaultPromptPattern = `^> $`

// Stop reasons carried by SessionStoppedEvent.
const (
	StopReasonStopped       = "stopped"
	StopReasonProcessExited = "process exited"
	StopReasonRejected      = "start rejected"
	StopReasonTimeout       = "start timed out"
	StopReasonCanceled      = "start canceled"
	StopReasonClosed        = "closed"
)

// Options configures a Kernel.
type Options struct {
	// Spawner starts the REPL. Defaults to a PipeSpawner.
	Spawner process.Spawner
	// Bus receives every kernel event. Defaults to a private bus.
	Bus *event.Bus
	// Logger defaults to a no-op logger.
	Logger *logging.Logger

	// Completion is config.CompletionSentinel (default) or config.CompletionDebounce.
	Completion string
	// DebounceWindow is the quiet period after a prompt in debounce mode.
	DebounceWindow time.Duration
	// PromptPattern is matched against the last stdout line in debounce mode.
	PromptPattern string
	// ReadyTimeout bounds Start. Zero waits until ctx is done.
	ReadyTimeout time.Duration

	// ErrorMarker marks executions failed when it appears in their output.
	ErrorMarker string
	// Terminator is appended to submissions that do not already end with it.
	Terminator string
	// LineBuffered holds partial lines back from sinks.
	LineBuffered bool

	// Term, Env and ReadBufferSize are passed to the spawner.
	Term           string
	Env            []string
	ReadBufferSize int
}

// OptionsFromConfig maps the kernel and repl sections of cfg onto Options.
// Spawner, Bus and Logger are left for the caller.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Completion:     cfg.Kernel.Completion,
		DebounceWindow: cfg.Kernel.DebounceWindow(),
		PromptPattern:  cfg.Kernel.PromptPattern,
		ReadyTimeout:   cfg.Kernel.ReadyTimeout(),
		ErrorMarker:    cfg.Kernel.ErrorMarker,
		Terminator:     cfg.Kernel.Terminator,
		LineBuffered:   cfg.Kernel.LineBuffered,
		Term:           cfg.Repl.Term,
		ReadBufferSize: cfg.Repl.ReadBufferSize,
	}
}

// StartOptions describes the process to launch.
type StartOptions struct {
	WorkDir    string
	Executable string
	Args       []string
}

type sessionInfo struct {
	pid        int
	workDir    string
	executable string
}

// Kernel demultiplexes one REPL process's output onto a FIFO of executions.
//
// All state changes happen on a single loop goroutine fed by an unbounded
// mailbox. Public methods post to the mailbox; Submit returns immediately,
// while Start, Interrupt, Stop and Sync wait for the loop to answer and so
// must not be called from an event handler.
type Kernel struct {
	opts   Options
	bus    *event.Bus
	logger *logging.Logger
	obs    *observer

	box       *mailbox
	loopDone  chan struct{}
	closeOnce sync.Once

	state   atomic.Int32
	pending atomic.Int32
	starts  atomic.Int32 // Start calls waiting for the loop
	current atomic.Pointer[execution.Execution]
	info    atomic.Pointer[sessionInfo]

	// Owned by the loop goroutine.
	ch         process.Channel
	gen        uint64
	running    *execution.Execution
	queue      []*execution.Execution
	starting   *startRequest
	detector   completion
	readyTimer *time.Timer
	quietTimer *time.Timer
	quietSeq   uint64
}

// New creates a Kernel and starts its loop. Call Close to release it.
func New(opts Options) (*Kernel, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if opts.Spawner == nil {
		opts.Spawner = process.PipeSpawner{Logger: opts.Logger}
	}
	if opts.Bus == nil {
		opts.Bus = event.NewBus(opts.Logger)
	}

	var detector completion
	switch opts.Completion {
	case "", config.CompletionSentinel:
		opts.Completion = config.CompletionSentinel
		detector = sentinelCompletion{}
	case config.CompletionDebounce:
		pattern := opts.PromptPattern
		if pattern == "" {
			pattern = DefaultPromptPattern
		}
		prompt, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid prompt pattern %q: %w", pattern, err)
		}
		if opts.DebounceWindow <= 0 {
			return nil, fmt.Errorf("debounce completion needs a positive window")
		}
		detector = newDebounceCompletion(prompt)
	default:
		return nil, fmt.Errorf("unknown completion strategy %q", opts.Completion)
	}

	k := &Kernel{
		opts:     opts,
		bus:      opts.Bus,
		logger:   opts.Logger.WithComponent("kernel"),
		box:      newMailbox(),
		loopDone: make(chan struct{}),
		detector: detector,
	}
	k.obs = &observer{k: k}
	go k.loop()
	return k, nil
}

// Bus returns the bus the kernel publishes on.
func (k *Kernel) Bus() *event.Bus { return k.bus }

// State returns the current state.
func (k *Kernel) State() State { return State(k.state.Load()) }

// Pending returns the number of queued executions.
func (k *Kernel) Pending() int { return int(k.pending.Load()) }

// Current returns the running execution, or nil.
func (k *Kernel) Current() *execution.Execution { return k.current.Load() }

// Pid returns the REPL's process ID, or 0 when idle.
func (k *Kernel) Pid() int {
	if info := k.info.Load(); info != nil {
		return info.pid
	}
	return 0
}

// WorkDir returns the REPL's working directory, or "" when idle.
func (k *Kernel) WorkDir() string {
	if info := k.info.Load(); info != nil {
		return info.workDir
	}
	return ""
}

// Executable returns the REPL binary path, or "" when idle.
func (k *Kernel) Executable() string {
	if info := k.info.Load(); info != nil {
		return info.executable
	}
	return ""
}

// Start spawns the REPL and waits until it signals readiness, ReadyTimeout
// elapses or ctx is done. Output on stderr before readiness rejects the
// start. Returns errors.ErrSessionActive unless the kernel is idle.
func (k *Kernel) Start(ctx context.Context, opts StartOptions) error {
	k.starts.Add(1)
	defer k.starts.Add(-1)

	req := &startRequest{ctx: ctx, opts: opts, reply: make(chan error, 1)}
	if !k.box.put(startMsg{req: req}) {
		return errors.ErrClosed
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		k.box.put(cancelStartMsg{req: req})
		select {
		case err := <-req.reply:
			return err
		case <-k.loopDone:
			return ctx.Err()
		}
	}
}

// Submit queues text for execution and returns its tracker immediately.
// While idle, with no Start in progress, the execution has already failed
// with "process is not started" when Submit returns, and nothing is written.
func (k *Kernel) Submit(text string, opts ...execution.Option) *execution.Execution {
	all := []execution.Option{execution.WithErrorMarker(k.opts.ErrorMarker)}
	if k.opts.LineBuffered {
		all = append(all, execution.WithLineBuffering())
	}
	all = append(all, opts...)

	exec := execution.New(text, all...)
	if k.State() == StateIdle && k.starts.Load() == 0 {
		k.logger.Error("submit while process is not started", "execution_id", exec.ID())
		exec.Fail(execution.ReasonNotStarted)
	}
	// The loop still sees a rejected execution so its end is published in
	// order with everything else.
	if !k.box.put(submitMsg{exec: exec}) {
		exec.Fail(execution.ReasonNotStarted)
	}
	return exec
}

// Interrupt sends SIGINT to the REPL's process group, fails the current
// execution and cancels everything queued. It does not wait for the REPL.
func (k *Kernel) Interrupt() error {
	return k.control(ctrlInterrupt)
}

// Stop sends SIGTERM to the REPL's process group, cancels all executions
// and returns to idle.
func (k *Kernel) Stop() error {
	return k.control(ctrlStop)
}

// Sync checks that the process is still alive, moving to idle if it is not,
// and returns the resulting state.
func (k *Kernel) Sync() State {
	if err := k.control(ctrlSync); err != nil {
		return StateIdle
	}
	return k.State()
}

func (k *Kernel) control(kind controlKind) error {
	reply := make(chan error, 1)
	if !k.box.put(controlMsg{kind: kind, reply: reply}) {
		return errors.ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-k.loopDone:
		return errors.ErrClosed
	}
}

// Close stops the REPL if running and shuts the loop down. Executions that
// were still waiting are failed. Close is safe to call more than once.
func (k *Kernel) Close() error {
	k.closeOnce.Do(func() {
		k.box.put(closeMsg{})
	})
	<-k.loopDone
	return nil
}

// -----------------------------------------------------------------------------
// Loop
// -----------------------------------------------------------------------------

func (k *Kernel) loop() {
	defer close(k.loopDone)
	for range k.box.notify {
		batch := k.box.take()
		for i, m := range batch {
			if _, ok := m.(closeMsg); ok {
				k.shutdown(batch[i+1:])
				return
			}
			k.handle(m)
		}
	}
}

func (k *Kernel) handle(m message) {
	switch m := m.(type) {
	case startMsg:
		k.handleStart(m.req)
	case cancelStartMsg:
		k.handleCancelStart(m.req)
	case submitMsg:
		k.handleSubmit(m.exec)
	case controlMsg:
		k.handleControl(m)
	case dataMsg:
		k.handleData(m)
	case exitMsg:
		k.handleExit(m)
	case quietMsg:
		k.handleQuiet(m)
	case readyTimeoutMsg:
		k.handleReadyTimeout(m)
	}
}

func (k *Kernel) shutdown(rest []message) {
	if k.ch != nil {
		k.signal(process.SignalTerm)
		k.teardown(teardown{
			execReason: execution.ReasonCancelled,
			reason:     StopReasonClosed,
			startErr:   errors.ErrClosed,
		})
	}

	for _, m := range append(rest, k.box.close()...) {
		switch m := m.(type) {
		case startMsg:
			m.req.reply <- errors.ErrClosed
		case submitMsg:
			m.exec.Bind(k.obs)
			if m.exec.Status() == execution.StatusEnded {
				k.publish(event.NewExecutionEndedEvent(m.exec))
			} else {
				m.exec.Fail(execution.ReasonNotStarted)
			}
		case controlMsg:
			m.reply <- errors.ErrClosed
		}
	}
	k.logger.Debug("kernel closed")
}

func (k *Kernel) handleStart(req *startRequest) {
	if k.State() != StateIdle {
		req.reply <- errors.NewSessionError("cannot start", errors.ErrSessionActive)
		return
	}
	if err := req.ctx.Err(); err != nil {
		req.reply <- err
		return
	}

	k.gen++
	gen := k.gen
	ch, err := k.opts.Spawner.Spawn(req.ctx, process.Config{
		WorkDir:        req.opts.WorkDir,
		Executable:     req.opts.Executable,
		Args:           req.opts.Args,
		Env:            k.opts.Env,
		Term:           k.opts.Term,
		ReadBufferSize: k.opts.ReadBufferSize,
	}, &listener{k: k, gen: gen})
	if err != nil {
		k.logger.Error("failed to spawn REPL", "executable", req.opts.Executable, "error", err)
		req.reply <- err
		return
	}

	k.ch = ch
	k.starting = req
	k.detector.reset()
	k.info.Store(&sessionInfo{
		pid:        ch.Pid(),
		workDir:    req.opts.WorkDir,
		executable: req.opts.Executable,
	})
	k.logger.Info("REPL spawned",
		"pid", ch.Pid(),
		"executable", req.opts.Executable,
		"cwd", req.opts.WorkDir,
		"completion", k.opts.Completion)
	k.setState(StateStarting)

	if d := k.opts.ReadyTimeout; d > 0 {
		k.readyTimer = time.AfterFunc(d, func() {
			k.box.put(readyTimeoutMsg{gen: gen})
		})
	}
}

func (k *Kernel) handleCancelStart(req *startRequest) {
	if k.starting != req {
		return
	}
	k.logger.Info("start canceled", "error", req.ctx.Err())
	k.signal(process.SignalTerm)
	k.teardown(teardown{
		execReason: execution.ReasonCancelled,
		reason:     StopReasonCanceled,
		startErr:   req.ctx.Err(),
	})
}

func (k *Kernel) handleReadyTimeout(m readyTimeoutMsg) {
	if m.gen != k.gen || k.State() != StateStarting {
		return
	}
	k.logger.Warn("REPL did not become ready", "timeout", k.opts.ReadyTimeout)
	k.signal(process.SignalTerm)
	k.teardown(teardown{
		execReason: execution.ReasonCancelled,
		reason:     StopReasonTimeout,
		startErr:   errors.NewTimeoutError("start", k.opts.ReadyTimeout),
	})
}

func (k *Kernel) handleSubmit(exec *execution.Execution) {
	exec.Bind(k.obs)
	if exec.Status() == execution.StatusEnded {
		k.publish(event.NewExecutionEndedEvent(exec))
		return
	}
	k.checkAlive()

	switch k.State() {
	case StateIdle:
		k.logger.Error("submit while process is not started", "execution_id", exec.ID())
		exec.Fail(execution.ReasonNotStarted)
	case StateStarting, StateExecuting:
		k.queue = append(k.queue, exec)
		k.pending.Store(int32(len(k.queue)))
		k.publish(event.NewExecutionQueuedEvent(exec, len(k.queue)))
	case StateReady:
		k.promote(exec)
	}
}

func (k *Kernel) handleControl(m controlMsg) {
	k.checkAlive()

	switch m.kind {
	case ctrlSync:
		m.reply <- nil

	case ctrlInterrupt:
		if k.State() == StateIdle {
			m.reply <- errors.NewNotRunningError("interrupt")
			return
		}
		k.signal(process.SignalInt)
		k.cancelExecutions(execution.ReasonInterrupted)
		k.detector.reset()
		// A REPL still loading stays in Starting until it prompts.
		if k.State() == StateExecuting {
			k.setState(StateReady)
		}
		k.logger.Info("interrupted")
		m.reply <- nil

	case ctrlStop:
		if k.State() == StateIdle {
			m.reply <- errors.NewNotRunningError("stop")
			return
		}
		k.signal(process.SignalTerm)
		k.teardown(teardown{
			execReason: execution.ReasonCancelled,
			reason:     StopReasonStopped,
			startErr:   errors.Wrap(errors.ErrCanceled, "start aborted by stop"),
		})
		k.logger.Info("stopped")
		m.reply <- nil
	}
}

func (k *Kernel) handleExit(m exitMsg) {
	if m.gen != k.gen || k.ch == nil {
		k.logger.Debug("ignoring exit of a previous process", "error", m.err)
		return
	}
	death := errors.NewProcessDeathError(k.ch.Pid(), m.err)
	k.logger.Warn("REPL exited", "pid", k.ch.Pid(), "error", m.err)
	k.teardown(teardown{
		execReason: execution.ReasonProcessExited,
		reason:     StopReasonProcessExited,
		cause:      death,
		startErr:   death,
	})
}

// checkAlive moves to idle when the channel reports a dead process before
// its exit notification has been processed.
func (k *Kernel) checkAlive() {
	if k.ch == nil || k.ch.Alive() {
		return
	}
	pid := k.ch.Pid()
	k.logger.Warn("REPL no longer alive", "pid", pid)
	death := errors.NewProcessDeathError(pid, nil)
	k.teardown(teardown{
		execReason: execution.ReasonProcessExited,
		reason:     StopReasonProcessExited,
		cause:      death,
		startErr:   death,
	})
}

// -----------------------------------------------------------------------------
// Output demultiplexing
// -----------------------------------------------------------------------------

func (k *Kernel) handleData(m dataMsg) {
	isError := m.stream == process.Stderr
	if k.logger.Enabled(logging.LevelDebug) {
		k.logger.Debug("REPL output", "stream", m.stream.String(), "bytes", len(m.chunk), "text", strconv.Quote(string(m.chunk)))
	}
	if m.gen != k.gen || k.ch == nil {
		k.publish(event.NewOverflowEvent(string(m.chunk), isError))
		return
	}
	if isError {
		k.handleStderr(m.chunk)
		return
	}
	k.handleStdout(m.chunk)
}

func (k *Kernel) handleStdout(chunk []byte) {
	for i, seg := range k.detector.split(chunk) {
		if i > 0 {
			k.complete()
		}
		if len(seg) > 0 {
			k.route(string(seg), false)
		}
	}
	k.observe(string(chunk), false)
}

func (k *Kernel) handleStderr(chunk []byte) {
	text := string(chunk)
	if k.State() == StateStarting {
		k.publish(event.NewOverflowEvent(text, true))
		k.logger.Warn("REPL wrote to stderr before becoming ready", "output", strings.TrimSpace(text))
		k.signal(process.SignalTerm)
		k.teardown(teardown{
			execReason: execution.ReasonCancelled,
			reason:     StopReasonRejected,
			startErr:   errors.Wrap(errors.ErrStartRejected, strings.TrimSpace(text)),
		})
		return
	}
	k.route(text, true)
	k.observe(text, true)
}

// route delivers text to the current execution, or to overflow when there
// is none.
func (k *Kernel) route(text string, isError bool) {
	if k.running != nil {
		k.running.Append(text, isError)
		return
	}
	k.publish(event.NewOverflowEvent(text, isError))
}

// observe re-arms the quiet-window timer for timed completion.
func (k *Kernel) observe(text string, isError bool) {
	if !k.detector.timed() || k.ch == nil {
		return
	}
	k.stopQuiet()
	if k.detector.observe(text, isError) {
		k.armQuiet()
	}
}

func (k *Kernel) armQuiet() {
	k.quietSeq++
	msg := quietMsg{gen: k.gen, seq: k.quietSeq}
	if k.running != nil {
		msg.execID = k.running.ID()
	}
	k.quietTimer = time.AfterFunc(k.opts.DebounceWindow, func() {
		k.box.put(msg)
	})
}

func (k *Kernel) stopQuiet() {
	if k.quietTimer != nil {
		k.quietTimer.Stop()
		k.quietTimer = nil
	}
	// Invalidates a message from a timer that already fired.
	k.quietSeq++
}

func (k *Kernel) handleQuiet(m quietMsg) {
	if m.gen != k.gen || m.seq != k.quietSeq || k.ch == nil {
		return
	}
	k.quietTimer = nil
	switch k.State() {
	case StateStarting:
		if m.execID == "" {
			k.complete()
		}
	case StateExecuting:
		if k.running != nil && k.running.ID() == m.execID {
			k.complete()
		}
	}
}

// complete handles one completion signal: readiness while starting, the
// end of the current execution while executing.
func (k *Kernel) complete() {
	switch k.State() {
	case StateStarting:
		k.becomeReady()
	case StateExecuting:
		exec := k.running
		k.running = nil
		k.current.Store(nil)
		exec.End(execution.ReasonCompleted)
		k.logger.Debug("execution completed",
			"execution_id", exec.ID(),
			"success", exec.Success(),
			"duration", exec.Duration())
		k.setState(StateReady)
		k.promoteNext()
	default:
		k.logger.Debug("completion signal with nothing running")
	}
}

func (k *Kernel) becomeReady() {
	stopTimer(&k.readyTimer)
	req := k.starting
	k.starting = nil
	k.setState(StateReady)
	k.publish(event.NewSessionStartedEvent(k.ch.Pid(), k.WorkDir(), k.Executable()))
	k.logger.Info("REPL ready", "pid", k.ch.Pid())
	if req != nil {
		req.reply <- nil
	}
	k.promoteNext()
}

func (k *Kernel) promoteNext() {
	if len(k.queue) == 0 {
		return
	}
	next := k.queue[0]
	k.queue[0] = nil
	k.queue = k.queue[1:]
	k.pending.Store(int32(len(k.queue)))
	k.promote(next)
}

// promote makes exec current and writes it to the process.
func (k *Kernel) promote(exec *execution.Execution) {
	exec.Start()
	k.running = exec
	k.current.Store(exec)
	k.detector.reset()
	if k.detector.timed() {
		k.stopQuiet()
	}
	k.setState(StateExecuting)
	k.publish(event.NewExecutionStartedEvent(exec))

	if err := k.ch.Write(k.frame(exec.Text())); err != nil {
		// A dead process is noticed through its exit notification.
		k.logger.Warn("write to REPL failed", "execution_id", exec.ID(), "error", err)
	}
}

// frame returns the bytes written for a submission.
func (k *Kernel) frame(text string) []byte {
	body := strings.TrimRight(text, " \t\r\n")
	if t := k.opts.Terminator; t != "" && !strings.HasSuffix(body, t) {
		body += t
	}
	return []byte(body + "\n" + k.detector.terminator())
}

// -----------------------------------------------------------------------------
// Cancellation
// -----------------------------------------------------------------------------

func (k *Kernel) cancelExecutions(currentReason string) {
	if k.detector.timed() {
		k.stopQuiet()
	}
	if exec := k.running; exec != nil {
		k.running = nil
		k.current.Store(nil)
		exec.Fail(currentReason)
	}
	queued := k.queue
	k.queue = nil
	k.pending.Store(0)
	for _, exec := range queued {
		exec.Fail(execution.ReasonCancelled)
	}
}

type teardown struct {
	execReason string // reason recorded on the current execution
	reason     string // reason published with SessionStoppedEvent
	cause      error  // error published with SessionStoppedEvent
	startErr   error  // returned to a pending Start
}

// teardown detaches the process and returns to idle. The caller has already
// signalled the process if that was wanted.
func (k *Kernel) teardown(t teardown) {
	k.cancelExecutions(t.execReason)
	stopTimer(&k.readyTimer)
	k.stopQuiet()
	k.detector.reset()

	pid := k.ch.Pid()
	k.ch = nil
	k.info.Store(nil)

	if req := k.starting; req != nil {
		k.starting = nil
		req.reply <- t.startErr
	}

	k.setState(StateIdle)
	k.publish(event.NewSessionStoppedEvent(pid, t.reason, t.cause))
}

func (k *Kernel) signal(sig process.Signal) {
	if k.ch == nil {
		return
	}
	if err := k.ch.Signal(sig, process.ScopeGroup); err != nil {
		if errors.Is(err, process.ErrNotRunning) {
			k.logger.Debug("signal to a process that is not running", "signal", sig.String())
			return
		}
		k.logger.Warn("failed to signal REPL", "signal", sig.String(), "error", err)
	}
}

func (k *Kernel) setState(s State) {
	prev := State(k.state.Swap(int32(s)))
	if prev == s {
		return
	}
	k.logger.Debug("state changed", "from", prev.String(), "to", s.String())
	k.publish(event.NewStateChangedEvent(prev.String(), s.String()))
}

func (k *Kernel) publish(e event.Event) {
	k.bus.Publish(e)
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// observer forwards execution output and completion onto the bus. It runs
// on the loop goroutine.
type observer struct {
	k *Kernel
}

func (o *observer) OnOutput(e *execution.Execution, text string, isError bool) {
	o.k.publish(event.NewExecutionOutputEvent(e, text, isError))
}

func (o *observer) OnEnd(e *execution.Execution) {
	o.k.publish(event.NewExecutionEndedEvent(e))
}

// listener posts channel callbacks into the mailbox tagged with the process
// generation they belong to.
type listener struct {
	k   *Kernel
	gen uint64
}

func (l *listener) OnData(stream process.Stream, chunk []byte) {
	l.k.box.put(dataMsg{gen: l.gen, stream: stream, chunk: chunk})
}

func (l *listener) OnExit(err error) {
	l.k.box.put(exitMsg{gen: l.gen, err: err})
}
