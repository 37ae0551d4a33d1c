package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/holrepl/internal/errors"
	"github.com/Iron-Ham/holrepl/internal/event"
	"github.com/Iron-Ham/holrepl/internal/execution"
	"github.com/Iron-Ham/holrepl/internal/logging"
)

// Control bytes recognised by HandleInput.
const (
	keyInterrupt = 0x03 // Ctrl-C
	keyEOF       = 0x04 // Ctrl-D
	keyBackspace = 0x08
	keyDelete    = 0x7f
)

// eraseSequence moves the cursor back over one cell and blanks it.
const eraseSequence = "\b \b"

// Kernel is the part of kernel.Kernel the terminal drives.
type Kernel interface {
	Submit(text string, opts ...execution.Option) *execution.Execution
	Interrupt() error
	Stop() error
}

// Options configures a Terminal.
type Options struct {
	// Color styles stderr output.
	Color  bool
	Logger *logging.Logger
}

// Terminal renders kernel output as a pseudoterminal and turns keystrokes
// into submissions.
type Terminal struct {
	kernel Kernel
	bus    *event.Bus
	logger *logging.Logger

	errStyle lipgloss.Style
	color    bool

	mu     sync.Mutex
	out    io.Writer
	line   []rune
	tokens []event.Token
}

// New attaches a terminal to bus and writes everything it renders to out.
// Call Close to detach it.
func New(out io.Writer, bus *event.Bus, k Kernel, opts Options) *Terminal {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	renderer := lipgloss.NewRenderer(out)
	t := &Terminal{
		kernel:   k,
		bus:      bus,
		logger:   logger.WithComponent("terminal"),
		errStyle: renderer.NewStyle().Foreground(lipgloss.Color("#F87171")),
		color:    opts.Color,
		out:      out,
	}
	t.tokens = []event.Token{
		bus.Subscribe(event.TypeExecutionOutput, func(e event.Event) {
			o := e.(event.ExecutionOutputEvent)
			t.render(o.Text, o.IsError)
		}),
		bus.Subscribe(event.TypeOverflow, func(e event.Event) {
			ov := e.(event.OverflowEvent)
			t.render(ov.Text, ov.IsError)
		}),
		bus.Subscribe(event.TypeSessionStopped, func(e event.Event) {
			st := e.(event.SessionStoppedEvent)
			t.notice(fmt.Sprintf("[REPL %s]", st.Reason))
		}),
	}
	return t
}

// Close detaches the terminal from the bus.
func (t *Terminal) Close() {
	t.mu.Lock()
	tokens := t.tokens
	t.tokens = nil
	t.mu.Unlock()
	for _, tok := range tokens {
		t.bus.Unsubscribe(tok)
	}
}

// Rewrite converts REPL output for a terminal in raw mode: every line ending
// becomes CRLF and DEL becomes a visible erase.
func Rewrite(text string) string {
	return rewriter.Replace(text)
}

var rewriter = strings.NewReplacer(
	"\r\n", "\r\n",
	"\n", "\r\n",
	"\x7f", eraseSequence,
)

func (t *Terminal) render(text string, isError bool) {
	text = Rewrite(text)
	if isError && t.color {
		text = t.styleLines(text)
	}
	t.write(text)
}

// styleLines styles each line on its own so that no padding is added.
func (t *Terminal) styleLines(text string) string {
	lines := strings.Split(text, "\r\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = t.errStyle.Render(l)
		}
	}
	return strings.Join(lines, "\r\n")
}

func (t *Terminal) notice(msg string) {
	t.write("\r\n" + msg + "\r\n")
}

func (t *Terminal) write(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeLocked(s)
}

func (t *Terminal) writeLocked(s string) {
	if s == "" {
		return
	}
	if _, err := io.WriteString(t.out, s); err != nil {
		t.logger.Debug("terminal write failed", "error", err)
	}
}

// HandleInput processes keystrokes typed by the user. Printable input is
// echoed and buffered; CR or LF submits the buffered line; backspace and DEL
// edit it; Ctrl-C interrupts the REPL and Ctrl-D on an empty line stops it.
func (t *Terminal) HandleInput(data string) {
	for _, r := range data {
		switch r {
		case '\r', '\n':
			t.mu.Lock()
			t.writeLocked("\r\n")
			text := t.takeLineLocked()
			t.mu.Unlock()
			if strings.TrimSpace(text) != "" {
				t.kernel.Submit(text)
			}

		case keyBackspace, keyDelete:
			t.mu.Lock()
			if n := len(t.line); n > 0 {
				t.line = t.line[:n-1]
				t.writeLocked(eraseSequence)
			}
			t.mu.Unlock()

		case keyInterrupt:
			t.mu.Lock()
			t.writeLocked("^C\r\n")
			t.line = t.line[:0]
			t.mu.Unlock()
			t.control("interrupt", t.kernel.Interrupt)

		case keyEOF:
			t.mu.Lock()
			empty := len(t.line) == 0
			t.mu.Unlock()
			if empty {
				t.control("stop", t.kernel.Stop)
			}

		default:
			if r < 0x20 && r != '\t' {
				continue
			}
			t.mu.Lock()
			t.line = append(t.line, r)
			t.writeLocked(string(r))
			t.mu.Unlock()
		}
	}
}

// SendRaw submits text on behalf of the plugin rather than the user. It goes
// through the same line buffer as typed input, so anything the user had
// typed is submitted ahead of it in the same execution, but nothing is
// echoed.
func (t *Terminal) SendRaw(text string, opts ...execution.Option) *execution.Execution {
	t.mu.Lock()
	t.line = append(t.line, []rune(text)...)
	line := t.takeLineLocked()
	t.mu.Unlock()
	return t.kernel.Submit(line, opts...)
}

// Pending returns the typed but unsubmitted line.
func (t *Terminal) Pending() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.line)
}

func (t *Terminal) takeLineLocked() string {
	text := string(t.line)
	t.line = t.line[:0]
	return text
}

// control runs a kernel operation that waits for the kernel loop. It must be
// called without holding mu, since event handlers take mu on that loop.
func (t *Terminal) control(op string, fn func() error) {
	err := fn()
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrNotRunning):
		t.notice("[" + errors.ErrNotRunning.Error() + "]")
	default:
		t.logger.Warn("terminal "+op+" failed", "error", err)
		t.notice("[" + op + " failed: " + err.Error() + "]")
	}
}
