package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/holrepl/internal/config"
	"github.com/Iron-Ham/holrepl/internal/logging"
	"github.com/Iron-Ham/holrepl/internal/workspace"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Show the workspace's dependency search path",
	Long: `Show the directories passed to the REPL with -I.

Entries are read from the workspace deps file. An entry may start with an
environment variable ("$HOLDIR/examples"); relative entries are taken from
the workspace root. Entries whose variable is unset are skipped.`,
	Args: cobra.NoArgs,
	RunE: runDepsList,
}

var depsAddCmd = &cobra.Command{
	Use:   "add <dir>",
	Short: "Add a directory to the search path",
	Args:  cobra.ExactArgs(1),
	RunE:  runDepsAdd,
}

var depsRemoveCmd = &cobra.Command{
	Use:   "remove <dir>",
	Short: "Remove a directory from the search path",
	Args:  cobra.ExactArgs(1),
	RunE:  runDepsRemove,
}

var depsRaw bool

func init() {
	rootCmd.AddCommand(depsCmd)
	depsCmd.AddCommand(depsAddCmd)
	depsCmd.AddCommand(depsRemoveCmd)
	depsCmd.Flags().BoolVar(&depsRaw, "raw", false, "print entries as written, without resolving them")
}

func openWorkspace(cmd *cobra.Command) (*workspace.Workspace, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	root, err := workspaceRoot(cmd)
	if err != nil {
		return nil, err
	}
	return workspace.Open(root, &cfg.Workspace, logging.NewConsole(os.Stderr, logging.LevelWarn))
}

func runDepsList(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	entries := ws.SearchPaths()
	if depsRaw {
		entries = ws.Deps()
	}
	for _, e := range entries {
		fmt.Fprintln(cmd.OutOrStdout(), e)
	}
	return nil
}

func runDepsAdd(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	changed, err := ws.AddDep(args[0])
	if err != nil {
		return err
	}
	if changed {
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s\n", args[0], ws.DepsPath)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is already listed\n", args[0])
	}
	return nil
}

func runDepsRemove(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	changed, err := ws.RemoveDep(args[0])
	if err != nil {
		return err
	}
	if changed {
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", args[0], ws.DepsPath)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is not listed\n", args[0])
	}
	return nil
}
