package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/holrepl/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "holrepl",
	Short: "Drive a HOL4 REPL from the terminal or an editor",
	Long: `holrepl runs an interactive HOL4 session for a workspace. Input is
queued and sent to the REPL one piece at a time, and the REPL's output is
matched back to the input that produced it.

Output can be shown as a plain terminal (repl) or as a list of notebook
cells (notebook). send runs a script non-interactively.`,
	SilenceUsage: true,
}

// Execute runs the root command. ctx is canceled on SIGINT or SIGTERM.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/holrepl/config.yaml)")
	rootCmd.PersistentFlags().StringP("workspace", "w", "", "workspace root (default is the current directory)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/holrepl")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("HOLREPL")
	// Replace dots with underscores for nested keys in env vars
	// e.g., HOLREPL_KERNEL_COMPLETION for kernel.completion
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
