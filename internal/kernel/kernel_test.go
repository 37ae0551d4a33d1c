package kernel

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Iron-Ham/holrepl/internal/config"
	"github.com/Iron-Ham/holrepl/internal/errors"
	"github.com/Iron-Ham/holrepl/internal/event"
	"github.com/Iron-Ham/holrepl/internal/execution"
	"github.com/Iron-Ham/holrepl/internal/process"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const banner = "HOL-4 [Trindemossen 1]\n"

// newKernel returns a sentinel-mode kernel whose REPL prints a banner and
// becomes ready immediately.
func newKernel(t *testing.T, mutate func(*Options)) (*Kernel, *fakeSpawner, *recorder) {
	t.Helper()
	sp := &fakeSpawner{
		onSpawn: func(c *fakeChannel) { c.stdout(banner + "\x00") },
	}
	opts := Options{
		Spawner:     sp,
		Bus:         event.NewBus(nil),
		ErrorMarker: "error:",
		Terminator:  ";",
	}
	if mutate != nil {
		mutate(&opts)
	}
	k, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { k.Close() })
	return k, sp, record(opts.Bus)
}

func start(t *testing.T, k *Kernel) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := k.Start(ctx, StartOptions{WorkDir: "/proj", Executable: "/opt/hol/bin/hol", Args: []string{"--zero"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"unknown strategy", Options{Completion: "guess"}},
		{"bad prompt", Options{Completion: config.CompletionDebounce, PromptPattern: "([", DebounceWindow: time.Millisecond}},
		{"no window", Options{Completion: config.CompletionDebounce}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("New should fail")
			}
		})
	}
}

func TestStart_BecomesReady(t *testing.T) {
	k, sp, rec := newKernel(t, nil)
	if k.State() != StateIdle {
		t.Fatalf("initial state = %v", k.State())
	}

	start(t, k)

	if k.State() != StateReady {
		t.Errorf("State() = %v, want ready", k.State())
	}
	ch := sp.last(t)
	if k.Pid() != ch.pid || k.WorkDir() != "/proj" || k.Executable() != "/opt/hol/bin/hol" {
		t.Errorf("Pid/WorkDir/Executable = %d/%q/%q", k.Pid(), k.WorkDir(), k.Executable())
	}
	if ch.cfg.WorkDir != "/proj" || len(ch.cfg.Args) != 1 {
		t.Errorf("spawn config = %+v", ch.cfg)
	}
	if rec.overflow() != banner {
		t.Errorf("banner overflow = %q", rec.overflow())
	}
	if len(rec.ofType(event.TypeSessionStarted)) != 1 {
		t.Error("expected one session.started event")
	}
}

func TestStart_WhileActive(t *testing.T) {
	k, _, _ := newKernel(t, nil)
	start(t, k)

	err := k.Start(context.Background(), StartOptions{Executable: "hol"})
	if !errors.Is(err, errors.ErrSessionActive) {
		t.Errorf("second Start = %v, want ErrSessionActive", err)
	}
}

func TestStart_SpawnFailure(t *testing.T) {
	k, sp, _ := newKernel(t, nil)
	sp.err = errors.NewSpawnError("/missing/hol", errors.New("no such file"))

	err := k.Start(context.Background(), StartOptions{Executable: "/missing/hol"})
	if !errors.Is(err, errors.ErrSpawnFailed) {
		t.Errorf("Start = %v, want spawn failure", err)
	}
	if k.State() != StateIdle {
		t.Errorf("State() = %v, want idle", k.State())
	}
}

func TestStart_RejectedByStderr(t *testing.T) {
	k, sp, rec := newKernel(t, nil)
	sp.onSpawn = func(c *fakeChannel) {
		c.stdout("loading...\n")
		c.stderr("error: cannot find heap\n")
	}

	err := k.Start(context.Background(), StartOptions{Executable: "hol"})
	if !errors.Is(err, errors.ErrStartRejected) {
		t.Fatalf("Start = %v, want ErrStartRejected", err)
	}
	if !strings.Contains(err.Error(), "cannot find heap") {
		t.Errorf("error should carry the rejected output: %v", err)
	}
	if k.State() != StateIdle {
		t.Errorf("State() = %v, want idle", k.State())
	}

	var sawError bool
	for _, e := range rec.ofType(event.TypeOverflow) {
		if ov := e.(event.OverflowEvent); ov.IsError && strings.Contains(ov.Text, "cannot find heap") {
			sawError = true
		}
	}
	if !sawError {
		t.Error("rejected output should be published as error overflow")
	}
	if sig := sp.last(t).sent(); len(sig) != 1 || sig[0] != process.SignalTerm {
		t.Errorf("signals = %v, want [TERM]", sig)
	}
}

func TestStart_ReadyTimeout(t *testing.T) {
	k, sp, _ := newKernel(t, func(o *Options) { o.ReadyTimeout = 20 * time.Millisecond })
	sp.onSpawn = nil

	err := k.Start(context.Background(), StartOptions{Executable: "hol"})
	if !errors.Is(err, errors.ErrTimeout) {
		t.Fatalf("Start = %v, want timeout", err)
	}
	if k.State() != StateIdle {
		t.Errorf("State() = %v", k.State())
	}
}

func TestStart_ContextCanceled(t *testing.T) {
	k, sp, _ := newKernel(t, nil)
	sp.onSpawn = nil

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := k.Start(ctx, StartOptions{Executable: "hol"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Start = %v, want deadline exceeded", err)
	}
	if k.Sync() != StateIdle {
		t.Errorf("State() = %v, want idle", k.State())
	}
}

func TestSubmit_WhileIdle(t *testing.T) {
	k, sp, rec := newKernel(t, nil)

	exec := k.Submit("val x = 1")
	if exec.Status() != execution.StatusEnded {
		t.Fatalf("Status() right after Submit = %v, want ended", exec.Status())
	}
	if exec.Success() {
		t.Error("submission while idle should fail")
	}
	if exec.Reason() != "process is not started" {
		t.Errorf("Reason() = %q", exec.Reason())
	}
	if len(sp.channels) != 0 {
		t.Error("nothing should have been spawned")
	}
	eventually(t, "execution.ended", func() bool {
		return len(rec.ofType(event.TypeExecutionEnded)) == 1
	})
}

func TestSubmit_Framing(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		text       string
		want       string
	}{
		{"adds terminator", config.CompletionSentinel, "val x = 1", "val x = 1;\n\x00"},
		{"keeps existing terminator", config.CompletionSentinel, "val x = 1;", "val x = 1;\n\x00"},
		{"trims trailing space", config.CompletionSentinel, "open boolTheory;  \n\n", "open boolTheory;\n\x00"},
		{"multiline", config.CompletionSentinel, "val a = 1\nval b = 2", "val a = 1\nval b = 2;\n\x00"},
		{"debounce has no sentinel", config.CompletionDebounce, "val x = 1", "val x = 1;\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, sp, _ := newKernel(t, func(o *Options) {
				o.Completion = tt.completion
				o.DebounceWindow = 5 * time.Millisecond
			})
			if tt.completion == config.CompletionDebounce {
				sp.onSpawn = func(c *fakeChannel) { c.stdout(banner + "> ") }
			}
			start(t, k)

			k.Submit(tt.text)
			if got := sp.last(t).nextWrite(t); got != tt.want {
				t.Errorf("wrote %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSerialization(t *testing.T) {
	k, sp, _ := newKernel(t, nil)
	start(t, k)
	ch := sp.last(t)

	first := k.Submit("val a = 1")
	second := k.Submit("val b = 2")
	third := k.Submit("val c = 3")

	if got := ch.nextWrite(t); got != "val a = 1;\n\x00" {
		t.Fatalf("first write = %q", got)
	}
	ch.noWrite(t)
	if k.Sync() != StateExecuting || k.Pending() != 2 {
		t.Fatalf("State/Pending = %v/%d, want executing/2", k.State(), k.Pending())
	}
	if k.Current() != first {
		t.Error("Current() should be the first execution")
	}

	ch.stdout("val a = 1 : int\n\x00")
	if got := ch.nextWrite(t); got != "val b = 2;\n\x00" {
		t.Fatalf("second write = %q", got)
	}
	ch.noWrite(t)

	ch.stdout("val b = 2 : int\n\x00")
	if got := ch.nextWrite(t); got != "val c = 3;\n\x00" {
		t.Fatalf("third write = %q", got)
	}
	ch.stdout("val c = 3 : int\n\x00")

	for i, exec := range []*execution.Execution{first, second, third} {
		waitEnded(t, exec)
		if !exec.Success() {
			t.Errorf("execution %d failed: %q", i, exec.Output())
		}
	}
	if first.Output() != "val a = 1 : int\n" || third.Output() != "val c = 3 : int\n" {
		t.Errorf("outputs = %q / %q", first.Output(), third.Output())
	}
	if k.Sync() != StateReady || k.Pending() != 0 || k.Current() != nil {
		t.Errorf("after drain: %v pending=%d current=%v", k.State(), k.Pending(), k.Current())
	}
}

func TestOutputPartition(t *testing.T) {
	k, sp, rec := newKernel(t, nil)
	start(t, k)
	ch := sp.last(t)

	ch.stdout("async before\n")

	first := k.Submit("a")
	second := k.Submit("b")
	ch.nextWrite(t)

	// One chunk carries the end of the first execution and the start of
	// the second.
	ch.stdout("first out\n\x00second ")
	ch.nextWrite(t)
	ch.stdout("out\n\x00trailing\n")

	waitEnded(t, second)
	k.Sync()

	if first.Output() != "first out\n" {
		t.Errorf("first.Output() = %q", first.Output())
	}
	if second.Output() != "second out\n" {
		t.Errorf("second.Output() = %q", second.Output())
	}
	if got := rec.overflow(); got != banner+"async before\n"+"trailing\n" {
		t.Errorf("overflow = %q", got)
	}

	var attributed string
	for _, e := range rec.ofType(event.TypeExecutionOutput) {
		attributed += e.(event.ExecutionOutputEvent).Text
	}
	if attributed != "first out\nsecond out\n" {
		t.Errorf("attributed output = %q", attributed)
	}
}

func TestChunkedOutput(t *testing.T) {
	k, sp, _ := newKernel(t, nil)
	start(t, k)
	ch := sp.last(t)

	exec := k.Submit("val thm = TRUTH")
	ch.nextWrite(t)
	for _, chunk := range []string{"val ", "thm =", " ⊢ T", ": thm\n"} {
		ch.stdout(chunk)
		time.Sleep(time.Millisecond)
	}
	select {
	case <-exec.Done():
		t.Fatal("execution ended before the sentinel")
	default:
	}
	ch.stdout("\x00")
	waitEnded(t, exec)

	if exec.Output() != "val thm = ⊢ T: thm\n" {
		t.Errorf("Output() = %q", exec.Output())
	}
}

func TestFailureDetection(t *testing.T) {
	tests := []struct {
		name   string
		emit   func(*fakeChannel)
		wantOK bool
	}{
		{"clean", func(c *fakeChannel) { c.stdout("val it = () : unit\n\x00") }, true},
		{"stderr", func(c *fakeChannel) { c.stderr("Warning\n"); c.stdout("\x00") }, false},
		{"marker", func(c *fakeChannel) { c.stdout("Type inference failure: error: unbound\n\x00") }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, sp, _ := newKernel(t, nil)
			start(t, k)
			ch := sp.last(t)

			exec := k.Submit("x")
			ch.nextWrite(t)
			tt.emit(ch)
			waitEnded(t, exec)

			if exec.Success() != tt.wantOK {
				t.Errorf("Success() = %v, want %v (output %q)", exec.Success(), tt.wantOK, exec.Output())
			}
		})
	}
}

func TestProcessDeathCascade(t *testing.T) {
	k, sp, rec := newKernel(t, nil)
	start(t, k)
	ch := sp.last(t)

	current := k.Submit("a")
	q1 := k.Submit("b")
	q2 := k.Submit("c")
	ch.nextWrite(t)

	ch.exit(errors.New("signal: killed"))
	for _, exec := range []*execution.Execution{current, q1, q2} {
		waitEnded(t, exec)
		if exec.Success() {
			t.Errorf("%q should have failed", exec.Text())
		}
	}
	if current.Reason() != execution.ReasonProcessExited {
		t.Errorf("current reason = %q", current.Reason())
	}
	if q1.Reason() != execution.ReasonCancelled || q2.Reason() != execution.ReasonCancelled {
		t.Errorf("queued reasons = %q, %q", q1.Reason(), q2.Reason())
	}
	if k.Sync() != StateIdle || k.Pending() != 0 || k.Pid() != 0 {
		t.Errorf("after death: %v pending=%d pid=%d", k.State(), k.Pending(), k.Pid())
	}

	stopped := rec.ofType(event.TypeSessionStopped)
	if len(stopped) != 1 {
		t.Fatalf("session.stopped events = %d, want 1", len(stopped))
	}
	ev := stopped[0].(event.SessionStoppedEvent)
	if ev.Reason != StopReasonProcessExited || !errors.Is(ev.Err, errors.ErrProcessExited) {
		t.Errorf("stopped event = %+v", ev)
	}

	// Repeated exit notifications and late output are harmless.
	ch.listener.OnExit(nil)
	ch.stdout("late\n")
	k.Sync()
	if len(rec.ofType(event.TypeSessionStopped)) != 1 {
		t.Error("a second exit notification should be ignored")
	}
	if !strings.HasSuffix(rec.overflow(), "late\n") {
		t.Errorf("late output should go to overflow, got %q", rec.overflow())
	}
}

func TestInterrupt(t *testing.T) {
	k, sp, _ := newKernel(t, nil)

	if err := k.Interrupt(); !errors.Is(err, errors.ErrNotRunning) {
		t.Errorf("Interrupt while idle = %v, want ErrNotRunning", err)
	}

	start(t, k)
	ch := sp.last(t)
	current := k.Submit("loop()")
	queued := k.Submit("val y = 2")
	ch.nextWrite(t)

	if err := k.Interrupt(); err != nil {
		t.Fatalf("Interrupt failed: %v", err)
	}

	// No further process output is needed for the cancellation to land.
	if current.Status() != execution.StatusEnded || current.Success() || current.Reason() != execution.ReasonInterrupted {
		t.Errorf("current = %v success=%v reason=%q", current.Status(), current.Success(), current.Reason())
	}
	if queued.Status() != execution.StatusEnded || queued.Reason() != execution.ReasonCancelled {
		t.Errorf("queued = %v reason=%q", queued.Status(), queued.Reason())
	}
	if k.State() != StateReady || k.Pending() != 0 {
		t.Errorf("State/Pending = %v/%d", k.State(), k.Pending())
	}
	if sig := ch.sent(); len(sig) != 1 || sig[0] != process.SignalInt {
		t.Errorf("signals = %v, want [INT]", sig)
	}
	ch.noWrite(t)

	// The REPL's post-interrupt prompt has nothing to complete.
	ch.stdout("Interrupted\n\x00")
	next := k.Submit("val z = 3")
	if got := ch.nextWrite(t); got != "val z = 3;\n\x00" {
		t.Errorf("write after interrupt = %q", got)
	}
	ch.stdout("val z = 3 : int\n\x00")
	waitEnded(t, next)
	if !next.Success() {
		t.Errorf("execution after interrupt failed: %q", next.Output())
	}
}

func TestStop(t *testing.T) {
	k, sp, rec := newKernel(t, nil)

	if err := k.Stop(); !errors.Is(err, errors.ErrNotRunning) {
		t.Errorf("Stop while idle = %v, want ErrNotRunning", err)
	}

	start(t, k)
	ch := sp.last(t)
	current := k.Submit("a")
	queued := k.Submit("b")
	ch.nextWrite(t)

	if err := k.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if k.State() != StateIdle {
		t.Errorf("State() = %v, want idle", k.State())
	}
	if current.Success() || queued.Success() {
		t.Error("stopped executions should fail")
	}
	if sig := ch.sent(); len(sig) != 1 || sig[0] != process.SignalTerm {
		t.Errorf("signals = %v, want [TERM]", sig)
	}

	// The real exit arrives afterwards and is ignored.
	ch.exit(nil)
	k.Sync()
	if n := len(rec.ofType(event.TypeSessionStopped)); n != 1 {
		t.Errorf("session.stopped events = %d, want 1", n)
	}

	after := k.Submit("c")
	waitEnded(t, after)
	if after.Reason() != execution.ReasonNotStarted {
		t.Errorf("submit after stop: reason %q", after.Reason())
	}
}

func TestSync_DetectsDeadProcess(t *testing.T) {
	k, sp, _ := newKernel(t, nil)
	start(t, k)

	sp.last(t).die()

	if got := k.Sync(); got != StateIdle {
		t.Errorf("Sync() = %v, want idle", got)
	}
	exec := k.Submit("x")
	waitEnded(t, exec)
	if exec.Reason() != execution.ReasonNotStarted {
		t.Errorf("Reason() = %q", exec.Reason())
	}
}

func TestRestart_IgnoresPreviousGeneration(t *testing.T) {
	k, sp, rec := newKernel(t, nil)
	start(t, k)
	old := sp.last(t)
	if err := k.Stop(); err != nil {
		t.Fatal(err)
	}

	start(t, k)
	fresh := sp.last(t)
	if fresh == old {
		t.Fatal("expected a new channel")
	}

	exec := k.Submit("x")
	fresh.nextWrite(t)

	old.stdout("ghost\x00")
	old.exit(nil)
	if k.Sync() != StateExecuting {
		t.Fatalf("old generation disturbed the kernel: %v", k.State())
	}
	if exec.Output() != "" {
		t.Errorf("old output leaked into the execution: %q", exec.Output())
	}
	if !strings.Contains(rec.overflow(), "ghost") {
		t.Error("old output should be published as overflow")
	}

	fresh.stdout("ok\n\x00")
	waitEnded(t, exec)
	if !exec.Success() {
		t.Error("execution on the new process should succeed")
	}
}

func TestSubmitDuringStartup(t *testing.T) {
	k, sp, _ := newKernel(t, nil)
	sp.onSpawn = nil

	errc := make(chan error, 1)
	go func() {
		errc <- k.Start(context.Background(), StartOptions{Executable: "hol"})
	}()
	eventually(t, "starting", func() bool { return k.State() == StateStarting })

	exec := k.Submit("val early = 1")
	eventually(t, "queued", func() bool { return k.Pending() == 1 })

	ch := sp.last(t)
	ch.stdout(banner + "\x00")
	if err := <-errc; err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := ch.nextWrite(t); got != "val early = 1;\n\x00" {
		t.Errorf("queued submission wrote %q", got)
	}
	ch.stdout("\x00")
	waitEnded(t, exec)
}

func TestDebounceCompletion(t *testing.T) {
	k, sp, rec := newKernel(t, func(o *Options) {
		o.Completion = config.CompletionDebounce
		o.DebounceWindow = 15 * time.Millisecond
	})
	sp.onSpawn = func(c *fakeChannel) {
		c.stdout(banner)
		c.stdout("> ")
	}
	start(t, k)
	ch := sp.last(t)
	if !strings.Contains(rec.overflow(), banner) {
		t.Errorf("banner not in overflow: %q", rec.overflow())
	}

	exec := k.Submit("val x = 1")
	ch.nextWrite(t)

	// A prompt-like fragment that is not the whole last line must not complete.
	ch.stdout("val x = 1 : int\nnot a prompt> ")
	time.Sleep(40 * time.Millisecond)
	if exec.Status() == execution.StatusEnded {
		t.Fatal("completed on a non-prompt line")
	}

	// The prompt arrives split across chunks.
	ch.stdout("\n>")
	ch.stdout(" ")
	waitEnded(t, exec)

	if !strings.HasPrefix(exec.Output(), "val x = 1 : int\n") {
		t.Errorf("Output() = %q", exec.Output())
	}
	if k.Sync() != StateReady {
		t.Errorf("State() = %v", k.State())
	}
}

func TestDebounce_OutputAfterPromptRearms(t *testing.T) {
	k, sp, _ := newKernel(t, func(o *Options) {
		o.Completion = config.CompletionDebounce
		o.DebounceWindow = 60 * time.Millisecond
	})
	sp.onSpawn = func(c *fakeChannel) { c.stdout("> ") }
	start(t, k)
	ch := sp.last(t)

	exec := k.Submit("slow()")
	ch.nextWrite(t)
	ch.stdout("step 1\n> ")
	time.Sleep(10 * time.Millisecond)
	ch.stdout("step 2\n")
	time.Sleep(100 * time.Millisecond)
	if exec.Status() == execution.StatusEnded {
		t.Fatal("output after the prompt should cancel the pending completion")
	}

	ch.stdout("> ")
	waitEnded(t, exec)
	if exec.Output() != "step 1\n> step 2\n> " {
		t.Errorf("Output() = %q", exec.Output())
	}
}

func TestClose(t *testing.T) {
	k, sp, _ := newKernel(t, nil)
	start(t, k)
	ch := sp.last(t)

	running := k.Submit("a")
	queued := k.Submit("b")
	ch.nextWrite(t)

	if err := k.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := k.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	for _, exec := range []*execution.Execution{running, queued} {
		if exec.Status() != execution.StatusEnded || exec.Success() {
			t.Errorf("%q not failed on close", exec.Text())
		}
	}
	if sig := ch.sent(); len(sig) != 1 || sig[0] != process.SignalTerm {
		t.Errorf("signals = %v", sig)
	}

	late := k.Submit("c")
	if late.Status() != execution.StatusEnded || late.Reason() != execution.ReasonNotStarted {
		t.Errorf("submit after close = %v %q", late.Status(), late.Reason())
	}
	if err := k.Start(context.Background(), StartOptions{}); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("Start after close = %v", err)
	}
	if err := k.Interrupt(); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("Interrupt after close = %v", err)
	}
	if got := k.Sync(); got != StateIdle {
		t.Errorf("Sync after close = %v, want idle", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Kernel.Completion = config.CompletionDebounce
	cfg.Kernel.DebounceMs = 75

	opts := OptionsFromConfig(cfg)
	if opts.DebounceWindow != 75*time.Millisecond || opts.Terminator != ";" || opts.Term != "dumb" {
		t.Errorf("OptionsFromConfig() = %+v", opts)
	}
	if opts.ReadyTimeout != cfg.Kernel.ReadyTimeout() {
		t.Errorf("ReadyTimeout = %v", opts.ReadyTimeout)
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateIdle: "idle", StateStarting: "starting", StateReady: "ready",
		StateExecuting: "executing", State(42): "unknown",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q", s, s.String())
		}
	}
	if StateIdle.Running() || !StateReady.Running() {
		t.Error("Running()")
	}
}
