package cmd

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/holrepl/internal/preprocess"
)

var goalCmd = &cobra.Command{
	Use:   "goal <file>",
	Short: "Print the goal command for the theorem at a position",
	Long: `Print the proofManagerLib.g command that sets the goal of the theorem
enclosing a position in a script. The position is a byte offset (--offset)
or a 1-based line and column (--line, --col).

This is the text an editor sends for "set goal"; it does not start a REPL.`,
	Args: cobra.ExactArgs(1),
	RunE: runGoal,
}

var (
	goalOffset int
	goalLine   int
	goalCol    int
)

func init() {
	rootCmd.AddCommand(goalCmd)
	goalCmd.Flags().IntVar(&goalOffset, "offset", -1, "byte offset into the file")
	goalCmd.Flags().IntVar(&goalLine, "line", 0, "1-based line number")
	goalCmd.Flags().IntVar(&goalCol, "col", 1, "1-based column (in characters) on --line")
	goalCmd.MarkFlagsMutuallyExclusive("offset", "line")
}

func runGoal(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	text := string(data)

	offset := goalOffset
	if goalLine > 0 {
		offset, err = lineColOffset(text, goalLine, goalCol)
		if err != nil {
			return err
		}
	}
	if offset < 0 {
		return fmt.Errorf("one of --offset or --line is required")
	}

	goal, err := preprocess.ExtractGoal(text, offset)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), preprocess.GoalCommand(goal))
	return nil
}

// lineColOffset converts a 1-based line and character column to a byte
// offset. Columns past the end of the line clamp to its end.
func lineColOffset(text string, line, col int) (int, error) {
	offset := 0
	for i := 1; i < line; i++ {
		nl := strings.IndexByte(text[offset:], '\n')
		if nl < 0 {
			return 0, fmt.Errorf("line %d is past the end of the file", line)
		}
		offset += nl + 1
	}
	rest := text[offset:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	for c := 1; c < col && rest != ""; c++ {
		_, size := utf8.DecodeRuneInString(rest)
		rest = rest[size:]
		offset += size
	}
	return offset, nil
}
