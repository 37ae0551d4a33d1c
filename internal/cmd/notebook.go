package cmd

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/holrepl/internal/execution"
	"github.com/Iron-Ham/holrepl/internal/preprocess"
	"github.com/Iron-Ham/holrepl/internal/session"
	"github.com/Iron-Ham/holrepl/internal/sink/notebook"
	"github.com/Iron-Ham/holrepl/internal/tui"
)

var notebookCmd = &cobra.Command{
	Use:   "notebook [document]",
	Short: "Run a HOL session as a list of notebook cells",
	Long: `Start a HOL REPL for the workspace and show it as notebook cells.

Each input becomes a cell that collects its own output and status. Output
the REPL prints outside of any input appears as separate output cells.

Lines starting with ':' are proof commands:
  :tactic TAC    apply a tactic to the current goal
  :subgoal TERM  open a subgoal
  :print, :backup, :rotate, :restart, :drop`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNotebook,
}

func init() {
	rootCmd.AddCommand(notebookCmd)
}

func runNotebook(cmd *cobra.Command, args []string) error {
	notifier := &bufferedNotifier{}
	sess, cfg, cleanup, err := openSession(cmd, notifier)
	if err != nil {
		return err
	}
	defer cleanup()

	doc := notebook.NewMemoryDocument()
	backend := &notebookBackend{sess: sess, notifier: notifier}
	app := tui.New(backend, doc, cfg.Notebook.ShowTimings)

	nb := notebook.New(doc, sess.Bus(), sess.Kernel(), notebook.Options{
		MaxOutputLines: cfg.Notebook.MaxOutputLines,
		OnChange:       app.Notify,
	})
	defer nb.Close()
	sess.SetSubmitter(nb.Submit)

	docPath := ""
	if len(args) == 1 {
		docPath = args[0]
	}
	if err := sess.Start(cmd.Context(), docPath); err != nil {
		return err
	}
	defer func() { _ = sess.Stop() }()

	return app.Run()
}

// notebookBackend adapts a session to the viewer.
type notebookBackend struct {
	sess     *session.Session
	notifier *bufferedNotifier
}

func (b *notebookBackend) Send(text string) error {
	_, err := b.dispatch(text)
	return err
}

func (b *notebookBackend) dispatch(text string) (*execution.Execution, error) {
	if !strings.HasPrefix(text, ":") {
		return b.sess.SendText(text)
	}
	name, rest, _ := strings.Cut(text[1:], " ")
	switch name {
	case "tactic", "e":
		return b.sess.SendTactic(rest)
	case "subgoal", "sg":
		return b.sess.SendSubgoal(rest)
	}
	if action, ok := preprocess.ParseProofAction(name); ok {
		return b.sess.SendProof(action)
	}
	return nil, fmt.Errorf("unknown command :%s", name)
}

func (b *notebookBackend) Interrupt() error {
	return b.sess.Interrupt()
}

func (b *notebookBackend) Status() string {
	k := b.sess.Kernel()
	status := k.State().String()
	if n := k.Pending(); n > 0 {
		status += fmt.Sprintf(" (%d queued)", n)
	}
	if msg := b.notifier.Last(); msg != "" {
		status += " · " + msg
	}
	return status
}

// bufferedNotifier keeps the latest message for the status bar, since the
// viewer owns the screen.
type bufferedNotifier struct {
	mu   sync.Mutex
	last string
}

func (n *bufferedNotifier) Info(msg string)  { n.set(msg) }
func (n *bufferedNotifier) Error(msg string) { n.set(msg) }

func (n *bufferedNotifier) set(msg string) {
	n.mu.Lock()
	n.last = msg
	n.mu.Unlock()
}

// Last returns the most recent message.
func (n *bufferedNotifier) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}
