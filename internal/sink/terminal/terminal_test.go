package terminal

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/Iron-Ham/holrepl/internal/errors"
	"github.com/Iron-Ham/holrepl/internal/event"
	"github.com/Iron-Ham/holrepl/internal/execution"
)

type fakeKernel struct {
	mu         sync.Mutex
	submitted  []string
	interrupts int
	stops      int
	err        error
}

func (k *fakeKernel) Submit(text string, opts ...execution.Option) *execution.Execution {
	k.mu.Lock()
	k.submitted = append(k.submitted, text)
	k.mu.Unlock()
	return execution.New(text, opts...)
}

func (k *fakeKernel) Interrupt() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.interrupts++
	return k.err
}

func (k *fakeKernel) Stop() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stops++
	return k.err
}

func newTerminal(t *testing.T, color bool) (*Terminal, *fakeKernel, *event.Bus, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	bus := event.NewBus(nil)
	k := &fakeKernel{}
	term := New(&buf, bus, k, Options{Color: color})
	t.Cleanup(term.Close)
	return term, k, bus, &buf
}

func TestRewrite(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lone newline", "a\nb\n", "a\r\nb\r\n"},
		{"crlf kept", "a\r\nb", "a\r\nb"},
		{"mixed", "a\r\nb\nc", "a\r\nb\r\nc"},
		{"delete", "ab\x7f", "ab\b \b"},
		{"plain", "val it = () : unit", "val it = () : unit"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Rewrite(tt.input); got != tt.want {
				t.Errorf("Rewrite(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRendersOutputAndOverflow(t *testing.T) {
	_, _, bus, buf := newTerminal(t, false)
	exec := execution.New("x")

	bus.Publish(event.NewOverflowEvent("banner\n", false))
	bus.Publish(event.NewExecutionOutputEvent(exec, "val x = 1\n", false))
	bus.Publish(event.NewExecutionOutputEvent(exec, "oops\n", true))

	want := "banner\r\nval x = 1\r\noops\r\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestErrorStyling(t *testing.T) {
	_, _, bus, buf := newTerminal(t, true)

	bus.Publish(event.NewOverflowEvent("first\nsecond\n", true))

	out := buf.String()
	if !strings.Contains(out, "first") || !strings.Contains(out, "second") {
		t.Errorf("styled output lost text: %q", out)
	}
	if strings.Count(out, "\r\n") != 2 {
		t.Errorf("styling changed line structure: %q", out)
	}
}

func TestSessionStoppedNotice(t *testing.T) {
	_, _, bus, buf := newTerminal(t, false)

	bus.Publish(event.NewSessionStoppedEvent(42, "process exited", nil))

	if !strings.Contains(buf.String(), "[REPL process exited]") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestHandleInput_EchoAndSubmit(t *testing.T) {
	term, k, _, buf := newTerminal(t, false)

	term.HandleInput("val x")
	if buf.String() != "val x" {
		t.Errorf("echo = %q", buf.String())
	}
	if term.Pending() != "val x" {
		t.Errorf("Pending() = %q", term.Pending())
	}

	term.HandleInput(" = 1;\r")
	if len(k.submitted) != 1 || k.submitted[0] != "val x = 1;" {
		t.Errorf("submitted = %q", k.submitted)
	}
	if !strings.HasSuffix(buf.String(), "\r\n") {
		t.Errorf("CR should echo a newline: %q", buf.String())
	}
	if term.Pending() != "" {
		t.Errorf("buffer not cleared: %q", term.Pending())
	}
}

func TestHandleInput_EmptyLine(t *testing.T) {
	term, k, _, _ := newTerminal(t, false)

	term.HandleInput("\r   \r")
	if len(k.submitted) != 0 {
		t.Errorf("blank lines should not be submitted: %q", k.submitted)
	}
}

func TestHandleInput_Backspace(t *testing.T) {
	term, k, _, buf := newTerminal(t, false)

	term.HandleInput("abd\x7fc\x08\x08\x08\x08xy\r")

	if len(k.submitted) != 1 || k.submitted[0] != "xy" {
		t.Errorf("submitted = %q", k.submitted)
	}
	// The last backspace hits an empty buffer.
	if n := strings.Count(buf.String(), "\b \b"); n != 4 {
		t.Errorf("erase sequences = %d, want 4 in %q", n, buf.String())
	}
}

func TestHandleInput_Unicode(t *testing.T) {
	term, k, _, _ := newTerminal(t, false)

	term.HandleInput("‘x ⇒ y’\x7f’\r")
	if len(k.submitted) != 1 || k.submitted[0] != "‘x ⇒ y’" {
		t.Errorf("submitted = %q", k.submitted)
	}
}

func TestHandleInput_ControlKeys(t *testing.T) {
	term, k, _, buf := newTerminal(t, false)

	term.HandleInput("half typed\x03")
	if k.interrupts != 1 {
		t.Errorf("interrupts = %d", k.interrupts)
	}
	if term.Pending() != "" {
		t.Errorf("Ctrl-C should clear the line, got %q", term.Pending())
	}
	if !strings.Contains(buf.String(), "^C") {
		t.Errorf("output = %q", buf.String())
	}

	term.HandleInput("x\x04")
	if k.stops != 0 {
		t.Error("Ctrl-D with text in the buffer should not stop")
	}
	term.HandleInput("\x7f\x04")
	if k.stops != 1 {
		t.Errorf("stops = %d", k.stops)
	}

	term.HandleInput("\x1b\x01")
	if term.Pending() != "" {
		t.Errorf("control bytes should be ignored, got %q", term.Pending())
	}
}

func TestHandleInput_InterruptWhileIdle(t *testing.T) {
	term, k, _, buf := newTerminal(t, false)
	k.err = errors.NewNotRunningError("interrupt")

	term.HandleInput("\x03")
	if !strings.Contains(buf.String(), "[process is not started]") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSendRaw(t *testing.T) {
	term, k, _, buf := newTerminal(t, false)

	exec := term.SendRaw("open boolTheory;", execution.WithDisplay("open"))
	if exec.Display() != "open" {
		t.Errorf("options not passed through: %q", exec.Display())
	}
	if buf.Len() != 0 {
		t.Errorf("raw send should not echo, got %q", buf.String())
	}
	if len(k.submitted) != 1 || k.submitted[0] != "open boolTheory;" {
		t.Errorf("submitted = %q", k.submitted)
	}

	term.HandleInput("val ")
	term.SendRaw("y = 2;")
	if k.submitted[1] != "val y = 2;" {
		t.Errorf("raw send should flush the shared buffer, got %q", k.submitted[1])
	}
}

func TestClose_Unsubscribes(t *testing.T) {
	term, _, bus, buf := newTerminal(t, false)

	term.Close()
	bus.Publish(event.NewOverflowEvent("ignored", false))

	if buf.Len() != 0 {
		t.Errorf("closed terminal rendered %q", buf.String())
	}
	if n := bus.SubscriptionCount(); n != 0 {
		t.Errorf("SubscriptionCount() = %d", n)
	}
}
