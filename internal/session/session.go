package session

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/Iron-Ham/holrepl/internal/config"
	"github.com/Iron-Ham/holrepl/internal/errors"
	"github.com/Iron-Ham/holrepl/internal/event"
	"github.com/Iron-Ham/holrepl/internal/execution"
	"github.com/Iron-Ham/holrepl/internal/kernel"
	"github.com/Iron-Ham/holrepl/internal/logging"
	"github.com/Iron-Ham/holrepl/internal/preprocess"
	"github.com/Iron-Ham/holrepl/internal/process"
	"github.com/Iron-Ham/holrepl/internal/workspace"
)

// Notifier shows messages to the user.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// SubmitFunc hands text to whichever sink presents the session.
type SubmitFunc func(text, display string) *execution.Execution

// Options configures a Session.
type Options struct {
	Logger   *logging.Logger
	Notifier Notifier
	// Spawner overrides the spawner selected by repl.use_pty.
	Spawner process.Spawner
	// Bus overrides the kernel's event bus.
	Bus *event.Bus
}

// Session is the per-workspace context behind every editor command. It owns
// the kernel, the workspace lock while the REPL runs, and the deps watcher.
type Session struct {
	ID string

	cfg      *config.Config
	ws       *workspace.Workspace
	kernel   *kernel.Kernel
	logger   *logging.Logger
	notifier Notifier
	stopSub  event.Token
	watcher  *workspace.DepsWatcher

	// startMu serializes Start so two callers cannot both take the lock.
	startMu sync.Mutex

	mu     sync.Mutex
	lock   *workspace.Lock
	submit SubmitFunc
	closed bool
}

// New creates the session for the workspace at root. The REPL is not
// started until Start is called.
func New(root string, cfg *config.Config, opts Options) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger = logger.WithSession(id)
	notifier := opts.Notifier
	if notifier == nil {
		notifier = logNotifier{logger: logger}
	}

	ws, err := workspace.Open(root, &cfg.Workspace, logger)
	if err != nil {
		return nil, err
	}

	kopts := kernel.OptionsFromConfig(cfg)
	kopts.Logger = logger
	kopts.Bus = opts.Bus
	kopts.Spawner = opts.Spawner
	if kopts.Spawner == nil {
		kopts.Spawner = process.NewSpawner(cfg.Repl.UsePTY, cfg.Repl.PTYCols, cfg.Repl.PTYRows, logger)
	}
	k, err := kernel.New(kopts)
	if err != nil {
		return nil, fmt.Errorf("failed to create kernel: %w", err)
	}

	s := &Session{
		ID:       id,
		cfg:      cfg,
		ws:       ws,
		kernel:   k,
		logger:   logger.WithComponent("session"),
		notifier: notifier,
	}
	s.submit = s.submitToKernel
	s.stopSub = k.Bus().Subscribe(event.TypeSessionStopped, s.onStopped)

	if cfg.Workspace.WatchDeps {
		w, err := ws.Watch(s.onDepsChanged)
		if err != nil {
			s.logger.Warn("failed to watch deps file", "path", ws.DepsPath, "error", err)
		} else {
			s.watcher = w
		}
	}

	s.logger.Info("session created", "workspace", ws.Root)
	return s, nil
}

// Kernel returns the session's kernel for attaching sinks.
func (s *Session) Kernel() *kernel.Kernel { return s.kernel }

// Bus returns the kernel's event bus.
func (s *Session) Bus() *event.Bus { return s.kernel.Bus() }

// Workspace returns the session's workspace.
func (s *Session) Workspace() *workspace.Workspace { return s.ws }

// Running reports whether the REPL is started.
func (s *Session) Running() bool {
	return s.kernel.State() != kernel.StateIdle
}

// SetSubmitter routes sends through fn, typically a sink's submit method.
// A nil fn restores direct submission to the kernel.
func (s *Session) SetSubmitter(fn SubmitFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = s.submitToKernel
	}
	s.submit = fn
}

func (s *Session) submitToKernel(text, display string) *execution.Execution {
	return s.kernel.Submit(text, execution.WithDisplay(display))
}

// StartArgs returns the REPL arguments: repl.args followed by one -I flag
// per resolved dependency directory.
func (s *Session) StartArgs() []string {
	args := slices.Clone(s.cfg.Repl.Args)
	for _, dir := range s.ws.SearchPaths() {
		args = append(args, "-I", dir)
	}
	return args
}

// Start launches the REPL in the directory of docPath, or the workspace
// root when docPath is empty, and waits for it to become ready.
func (s *Session) Start(ctx context.Context, docPath string) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.isClosed() {
		return errors.ErrClosed
	}
	if s.kernel.Sync() != kernel.StateIdle {
		return s.report(errors.NewSessionError("cannot start", errors.ErrSessionActive).WithWorkspace(s.ws.Root))
	}

	lock, err := s.ws.Lock(s.ID)
	if err != nil {
		return s.report(err)
	}
	s.mu.Lock()
	s.lock = lock
	s.mu.Unlock()

	workDir := s.ws.Root
	if docPath != "" {
		workDir = filepath.Dir(docPath)
	}
	opts := kernel.StartOptions{
		WorkDir:    workDir,
		Executable: s.cfg.Repl.ExecutablePath(),
		Args:       s.StartArgs(),
	}
	s.logger.Info("starting REPL", "executable", opts.Executable, "cwd", workDir, "args", opts.Args)

	if err := s.kernel.Start(ctx, opts); err != nil {
		s.releaseLock()
		return s.report(err)
	}
	s.notifier.Info(fmt.Sprintf("HOL session started (PID %d)", s.kernel.Pid()))
	return nil
}

// Restart stops the REPL if it is running and starts it again.
func (s *Session) Restart(ctx context.Context, docPath string) error {
	if s.Running() {
		if err := s.kernel.Stop(); err != nil && !errors.Is(err, errors.ErrNotRunning) {
			return s.report(err)
		}
	}
	return s.Start(ctx, docPath)
}

// Stop terminates the REPL.
func (s *Session) Stop() error {
	return s.control(s.kernel.Stop)
}

// Interrupt interrupts the running execution and drops the queue.
func (s *Session) Interrupt() error {
	return s.control(s.kernel.Interrupt)
}

func (s *Session) control(fn func() error) error {
	if err := fn(); err != nil {
		if errors.Is(err, errors.ErrNotRunning) {
			err = errors.ErrNoActiveSession
		}
		return s.report(err)
	}
	return nil
}

// SendText submits editor text with its open clauses expanded into loads.
func (s *Session) SendText(text string) (*execution.Execution, error) {
	expanded := preprocess.ExpandImports(text)
	display := expanded
	if !s.cfg.Display.ShowRawText {
		display = preprocess.DisplayForm(text)
	}
	return s.send(expanded, display)
}

// SendGoal sets the goal of the theorem enclosing offset in text.
func (s *Session) SendGoal(text string, offset int) (*execution.Execution, error) {
	goal, err := preprocess.ExtractGoal(text, offset)
	if err != nil {
		return nil, s.report(err)
	}
	cmd := preprocess.GoalCommand(goal)
	return s.send(cmd, cmd)
}

// SendSubgoal opens the subgoal named in selection.
func (s *Session) SendSubgoal(selection string) (*execution.Execution, error) {
	term, err := preprocess.ExtractSubgoal(selection)
	if err != nil {
		return nil, s.report(err)
	}
	cmd := preprocess.SubgoalCommand(term)
	return s.send(cmd, cmd)
}

// SendTactic applies the selected tactic to the current goal. An empty
// tactic sends nothing.
func (s *Session) SendTactic(selection string) (*execution.Execution, error) {
	cmd := preprocess.TacticCommand(selection)
	if cmd == "" {
		s.logger.Debug("empty tactic selection ignored")
		return nil, nil
	}
	return s.send(cmd, cmd)
}

// SendProof runs a proof manager command such as backup or rotate.
func (s *Session) SendProof(action preprocess.ProofAction) (*execution.Execution, error) {
	cmd := action.Command()
	if cmd == "" {
		return nil, fmt.Errorf("unknown proof action %d", action)
	}
	return s.send(cmd, cmd)
}

func (s *Session) send(text, display string) (*execution.Execution, error) {
	if s.kernel.State() == kernel.StateIdle {
		return nil, s.report(errors.ErrNoActiveSession)
	}
	s.mu.Lock()
	submit := s.submit
	s.mu.Unlock()
	return submit(text, display), nil
}

// Close stops the REPL, releases the workspace lock and shuts the kernel
// down. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.watcher != nil {
		s.watcher.Stop()
	}
	err := s.kernel.Close()
	s.kernel.Bus().Unsubscribe(s.stopSub)
	s.releaseLock()
	s.logger.Info("session closed")
	return err
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// onStopped runs on the kernel loop whenever the REPL goes idle.
func (s *Session) onStopped(e event.Event) {
	stopped, ok := e.(event.SessionStoppedEvent)
	if !ok {
		return
	}
	s.releaseLock()
	if stopped.Reason == kernel.StopReasonProcessExited {
		s.notifier.Error("HOL process exited")
	}
}

func (s *Session) onDepsChanged(paths []string) {
	s.logger.Info("dependencies changed", "search_paths", paths)
	if s.Running() {
		s.notifier.Info("Dependencies changed; restart the session to use them")
	}
}

func (s *Session) releaseLock() {
	s.mu.Lock()
	lock := s.lock
	s.lock = nil
	s.mu.Unlock()
	if lock == nil {
		return
	}
	if err := lock.Release(); err != nil {
		s.logger.Warn("failed to release workspace lock", "error", err)
	}
}

// report logs err and shows it to the user when it is meant for them.
func (s *Session) report(err error) error {
	if errors.IsUserFacing(err) {
		s.logger.Warn("command failed", "error", err)
		s.notifier.Error(userMessage(err))
	} else {
		s.logger.Error("command failed", "error", err)
		s.notifier.Error(fmt.Sprintf("holrepl: %v", err))
	}
	return err
}

// userMessage picks the short form of a user-facing error.
func userMessage(err error) string {
	for _, sentinel := range []error{
		errors.ErrSessionActive,
		errors.ErrNoActiveSession,
		errors.ErrNoGoal,
		errors.ErrNoSubgoal,
	} {
		if errors.Is(err, sentinel) {
			return capitalize(sentinel.Error())
		}
	}
	return capitalize(err.Error())
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// logNotifier is the fallback Notifier when none is supplied.
type logNotifier struct{ logger *logging.Logger }

func (n logNotifier) Info(msg string)  { n.logger.Info(msg) }
func (n logNotifier) Error(msg string) { n.logger.Warn(msg) }
