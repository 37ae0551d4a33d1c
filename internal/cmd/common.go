package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/holrepl/internal/config"
	"github.com/Iron-Ham/holrepl/internal/logging"
	"github.com/Iron-Ham/holrepl/internal/session"
)

// workspaceRoot returns the --workspace flag, or the current directory.
func workspaceRoot(cmd *cobra.Command) (string, error) {
	root, _ := cmd.Flags().GetString("workspace")
	if root != "" {
		return root, nil
	}
	return os.Getwd()
}

// CreateLogger creates a logger writing to the workspace state directory if
// logging is enabled in config, and a warn-level stderr logger otherwise.
func CreateLogger(stateDir string, cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NewConsole(os.Stderr, logging.LevelWarn)
	}

	logger, err := logging.NewLogger(logging.Options{
		Dir:   stateDir,
		Level: cfg.Logging.Level,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Compress:   cfg.Logging.Compress,
		},
	})
	if err != nil {
		// Log creation failure shouldn't prevent the application from starting
		fmt.Fprintf(os.Stderr, "Warning: failed to create logger: %v\n", err)
		return logging.NopLogger()
	}
	return logger
}

// openSession loads the configuration and creates the session for the
// workspace. The returned cleanup closes the session and the logger.
func openSession(cmd *cobra.Command, notifier session.Notifier) (*session.Session, *config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	root, err := workspaceRoot(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	logger := CreateLogger(cfg.Workspace.StatePath(root), cfg)
	sess, err := session.New(root, cfg, session.Options{
		Logger:   logger,
		Notifier: notifier,
	})
	if err != nil {
		logger.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := sess.Close(); err != nil {
			logger.Warn("failed to close session", "error", err)
		}
		logger.Close()
	}
	return sess, cfg, cleanup, nil
}

// writerNotifier prints session messages to a writer, errors in red.
type writerNotifier struct {
	w        io.Writer
	info     lipgloss.Style
	errStyle lipgloss.Style
	// crlf is set while the terminal is in raw mode.
	crlf bool
}

func newWriterNotifier(w io.Writer, crlf bool) *writerNotifier {
	r := lipgloss.NewRenderer(w)
	return &writerNotifier{
		w:        w,
		info:     r.NewStyle().Foreground(lipgloss.Color("#10B981")),
		errStyle: r.NewStyle().Foreground(lipgloss.Color("#F87171")).Bold(true),
		crlf:     crlf,
	}
}

func (n *writerNotifier) Info(msg string) {
	n.print(n.info.Render(msg))
}

func (n *writerNotifier) Error(msg string) {
	n.print(n.errStyle.Render(msg))
}

func (n *writerNotifier) print(s string) {
	eol := "\n"
	if n.crlf {
		eol = "\r\n"
	}
	fmt.Fprint(n.w, s+eol)
}
