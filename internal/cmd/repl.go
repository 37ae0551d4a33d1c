package cmd

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/holrepl/internal/event"
	"github.com/Iron-Ham/holrepl/internal/execution"
	"github.com/Iron-Ham/holrepl/internal/kernel"
	"github.com/Iron-Ham/holrepl/internal/sink/terminal"
)

var replCmd = &cobra.Command{
	Use:   "repl [document]",
	Short: "Run an interactive HOL session in this terminal",
	Long: `Start a HOL REPL for the workspace and attach it to this terminal.

The REPL runs in the directory of the given document, or the workspace root.
Type input and press Enter to send it. Ctrl-C interrupts the running input
and drops anything queued; Ctrl-D on an empty line stops the REPL.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	stdin := os.Stdin
	fd := int(stdin.Fd())
	raw := term.IsTerminal(fd)

	out := cmd.OutOrStdout()
	sess, cfg, cleanup, err := openSession(cmd, newWriterNotifier(cmd.ErrOrStderr(), raw))
	if err != nil {
		return err
	}
	defer cleanup()

	k := sess.Kernel()
	t := terminal.New(out, sess.Bus(), k, terminal.Options{Color: cfg.Display.Color})
	defer t.Close()
	sess.SetSubmitter(func(text, display string) *execution.Execution {
		return t.SendRaw(text, execution.WithDisplay(display))
	})

	stopped := make(chan struct{})
	var stopOnce sync.Once
	tok := sess.Bus().Subscribe(event.TypeSessionStopped, func(event.Event) {
		stopOnce.Do(func() { close(stopped) })
	})
	defer sess.Bus().Unsubscribe(tok)

	docPath := ""
	if len(args) == 1 {
		docPath = args[0]
	}
	if err := sess.Start(cmd.Context(), docPath); err != nil {
		return err
	}

	if raw {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return err
		}
		defer func() { _ = term.Restore(fd, state) }()
	}

	input := make(chan string)
	go readInput(stdin, input)

	for {
		select {
		case <-stopped:
			return nil
		case <-cmd.Context().Done():
			return nil
		case data, ok := <-input:
			if !ok {
				// stdin closed: finish queued input, then stop
				waitIdle(cmd.Context(), k)
				_ = k.Stop()
				return nil
			}
			t.HandleInput(data)
		}
	}
}

// readInput forwards stdin in chunks until it is closed.
func readInput(r io.Reader, out chan<- string) {
	defer close(out)
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out <- string(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// waitIdle waits until the kernel has nothing running or queued.
func waitIdle(ctx context.Context, k *kernel.Kernel) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s := k.State(); s == kernel.StateIdle || (s == kernel.StateReady && k.Pending() == 0) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
