package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/holrepl/internal/event"
	"github.com/Iron-Ham/holrepl/internal/execution"
)

var sendCmd = &cobra.Command{
	Use:   "send <file>",
	Short: "Run a script through a fresh HOL session",
	Long: `Start a HOL REPL, send the script to it and print the output of each
submission. Use "-" to read the script from standard input.

With --split the script is sent one paragraph (blank-line separated block)
at a time, so a failure is reported against the paragraph that caused it.
The command exits non-zero if any submission fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

var (
	sendSplit   bool
	sendQuiet   bool
	sendTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVar(&sendSplit, "split", false, "send each paragraph separately")
	sendCmd.Flags().BoolVarP(&sendQuiet, "quiet", "q", false, "hide REPL output that belongs to no submission")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 0, "give up after this long (0 = no limit)")
}

func runSend(cmd *cobra.Command, args []string) error {
	script, err := readScript(cmd, args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sendTimeout)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	sess, _, cleanup, err := openSession(cmd, newWriterNotifier(errOut, false))
	if err != nil {
		return err
	}
	defer cleanup()

	if !sendQuiet {
		tok := sess.Bus().Subscribe(event.TypeOverflow, func(e event.Event) {
			fmt.Fprint(errOut, e.(event.OverflowEvent).Text)
		})
		defer sess.Bus().Unsubscribe(tok)
	}

	docPath := ""
	if args[0] != "-" {
		docPath = args[0]
	}
	if err := sess.Start(ctx, docPath); err != nil {
		return err
	}
	defer func() { _ = sess.Stop() }()

	chunks := []string{script}
	if sendSplit {
		chunks = splitParagraphs(script)
	}

	var execs []*execution.Execution
	for _, chunk := range chunks {
		exec, err := sess.SendText(chunk)
		if err != nil {
			return err
		}
		execs = append(execs, exec)
	}

	failed := 0
	for i, exec := range execs {
		if err := exec.Wait(ctx); err != nil {
			_ = sess.Interrupt()
			return fmt.Errorf("waiting for submission %d: %w", i+1, err)
		}
		if len(execs) > 1 {
			fmt.Fprintf(out, "--- [%d] %s\n", i+1, firstLine(exec.Display()))
		}
		fmt.Fprint(out, exec.Output())
		if !exec.Success() {
			failed++
			fmt.Fprintf(errOut, "submission %d failed: %s\n", i+1, failureReason(exec))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d submissions failed", failed, len(execs))
	}
	return nil
}

func readScript(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	return string(data), nil
}

var blankLines = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)*`)

// splitParagraphs splits text at blank lines, dropping empty paragraphs.
func splitParagraphs(text string) []string {
	var out []string
	for _, p := range blankLines.Split(strings.ReplaceAll(text, "\r\n", "\n"), -1) {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// failureReason describes why exec failed. A completed execution failed
// because its output matched the error marker.
func failureReason(exec *execution.Execution) string {
	if exec.Reason() == execution.ReasonCompleted {
		return "error in output"
	}
	return exec.Reason()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
