package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete holrepl configuration
type Config struct {
	Repl      ReplConfig      `mapstructure:"repl" yaml:"repl"`
	Kernel    KernelConfig    `mapstructure:"kernel" yaml:"kernel"`
	Display   DisplayConfig   `mapstructure:"display" yaml:"display"`
	Notebook  NotebookConfig  `mapstructure:"notebook" yaml:"notebook"`
	Workspace WorkspaceConfig `mapstructure:"workspace" yaml:"workspace"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// ReplConfig controls how the HOL process is spawned
type ReplConfig struct {
	// HolDir is the HOL installation directory. Falls back to $HOLDIR when empty.
	HolDir string `mapstructure:"hol_dir" yaml:"hol_dir"`
	// Executable is the REPL binary, relative to HolDir unless absolute (default: "bin/hol")
	Executable string `mapstructure:"executable" yaml:"executable"`
	// Args are passed before the per-dependency -I flags (default: ["--zero"])
	Args []string `mapstructure:"args" yaml:"args"`
	// Term is forced into the child's TERM variable (default: "dumb")
	Term string `mapstructure:"term" yaml:"term"`
	// UsePTY runs the REPL under a pseudo-terminal. Requires kernel.completion = "debounce".
	UsePTY bool `mapstructure:"use_pty" yaml:"use_pty"`
	// PTYCols and PTYRows set the pseudo-terminal size
	PTYCols int `mapstructure:"pty_cols" yaml:"pty_cols"`
	PTYRows int `mapstructure:"pty_rows" yaml:"pty_rows"`
	// ReadBufferSize is the size of each read from the child's output pipes in bytes
	ReadBufferSize int `mapstructure:"read_buffer_size" yaml:"read_buffer_size"`
}

// KernelConfig controls completion detection and submission framing
type KernelConfig struct {
	// Completion selects the completion strategy.
	// Options: "sentinel", "debounce"
	Completion string `mapstructure:"completion" yaml:"completion"`
	// DebounceMs is the quiet window after a prompt before an execution completes
	DebounceMs int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	// PromptPattern is matched against the last output line in debounce mode
	PromptPattern string `mapstructure:"prompt_pattern" yaml:"prompt_pattern"`
	// ReadyTimeoutSeconds bounds how long Start waits for the first prompt (0 = no limit)
	ReadyTimeoutSeconds int `mapstructure:"ready_timeout_seconds" yaml:"ready_timeout_seconds"`
	// ErrorMarker marks an execution failed when it appears in accumulated output.
	// Empty disables the check.
	ErrorMarker string `mapstructure:"error_marker" yaml:"error_marker"`
	// Terminator is appended to submitted text unless it already ends with it
	Terminator string `mapstructure:"terminator" yaml:"terminator"`
	// LineBuffered holds partial output lines until a newline or execution end
	LineBuffered bool `mapstructure:"line_buffered" yaml:"line_buffered"`
}

// DisplayConfig controls how submitted text is shown
type DisplayConfig struct {
	// ShowRawText shows the exact submitted text instead of the cleaned form
	ShowRawText bool `mapstructure:"show_raw_text" yaml:"show_raw_text"`
	// Color styles error output in the terminal
	Color bool `mapstructure:"color" yaml:"color"`
}

// NotebookConfig controls the notebook viewer
type NotebookConfig struct {
	// MaxOutputLines limits how many output lines a cell renders (0 = unlimited)
	MaxOutputLines int `mapstructure:"max_output_lines" yaml:"max_output_lines"`
	// ShowTimings renders execution durations under each cell
	ShowTimings bool `mapstructure:"show_timings" yaml:"show_timings"`
}

// WorkspaceConfig controls per-workspace state
type WorkspaceConfig struct {
	// StateDir is the directory under the workspace root holding holrepl state
	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`
	// DepsFile is the dependency search path file inside StateDir
	DepsFile string `mapstructure:"deps_file" yaml:"deps_file"`
	// WatchDeps reloads DepsFile when it changes on disk
	WatchDeps bool `mapstructure:"watch_deps" yaml:"watch_deps"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled writes debug.log into the workspace state directory.
	// When false, logs go to stderr at warn level and above.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the minimum log level (default: "info")
	// Options: "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB is the size at which debug.log is rotated
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Completion strategies
const (
	CompletionSentinel = "sentinel"
	CompletionDebounce = "debounce"
)

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Repl: ReplConfig{
			HolDir:         "",
			Executable:     "bin/hol",
			Args:           []string{"--zero"},
			Term:           "dumb",
			UsePTY:         false,
			PTYCols:        120,
			PTYRows:        40,
			ReadBufferSize: 32 * 1024,
		},
		Kernel: KernelConfig{
			Completion:          CompletionSentinel,
			DebounceMs:          150,
			PromptPattern:       `^> $`,
			ReadyTimeoutSeconds: 120, // loading heaps can be slow
			ErrorMarker:         "error:",
			Terminator:          ";",
			LineBuffered:        false,
		},
		Display: DisplayConfig{
			ShowRawText: false,
			Color:       true,
		},
		Notebook: NotebookConfig{
			MaxOutputLines: 500,
			ShowTimings:    true,
		},
		Workspace: WorkspaceConfig{
			StateDir:  ".holrepl",
			DepsFile:  "deps.json",
			WatchDeps: true,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
	}
}

// DebounceWindow returns the debounce quiet window as a time.Duration
func (c *KernelConfig) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// ReadyTimeout returns the startup timeout as a time.Duration (0 means disabled)
func (c *KernelConfig) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutSeconds) * time.Second
}

// ResolveHolDir returns HolDir, or $HOLDIR when HolDir is empty.
// A leading ~ is expanded to the user's home directory.
func (r *ReplConfig) ResolveHolDir() string {
	dir := r.HolDir
	if dir == "" {
		dir = os.Getenv("HOLDIR")
	}
	return expandHome(dir)
}

// ExecutablePath returns the absolute path of the REPL binary.
func (r *ReplConfig) ExecutablePath() string {
	exe := expandHome(r.Executable)
	if filepath.IsAbs(exe) {
		return exe
	}
	return filepath.Join(r.ResolveHolDir(), exe)
}

// StatePath returns the state directory for a workspace root.
func (w *WorkspaceConfig) StatePath(root string) string {
	if filepath.IsAbs(w.StateDir) {
		return w.StateDir
	}
	return filepath.Join(root, w.StateDir)
}

// DepsPath returns the dependency file path for a workspace root.
func (w *WorkspaceConfig) DepsPath(root string) string {
	return filepath.Join(w.StatePath(root), w.DepsFile)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Repl defaults
	viper.SetDefault("repl.hol_dir", defaults.Repl.HolDir)
	viper.SetDefault("repl.executable", defaults.Repl.Executable)
	viper.SetDefault("repl.args", defaults.Repl.Args)
	viper.SetDefault("repl.term", defaults.Repl.Term)
	viper.SetDefault("repl.use_pty", defaults.Repl.UsePTY)
	viper.SetDefault("repl.pty_cols", defaults.Repl.PTYCols)
	viper.SetDefault("repl.pty_rows", defaults.Repl.PTYRows)
	viper.SetDefault("repl.read_buffer_size", defaults.Repl.ReadBufferSize)

	// Kernel defaults
	viper.SetDefault("kernel.completion", defaults.Kernel.Completion)
	viper.SetDefault("kernel.debounce_ms", defaults.Kernel.DebounceMs)
	viper.SetDefault("kernel.prompt_pattern", defaults.Kernel.PromptPattern)
	viper.SetDefault("kernel.ready_timeout_seconds", defaults.Kernel.ReadyTimeoutSeconds)
	viper.SetDefault("kernel.error_marker", defaults.Kernel.ErrorMarker)
	viper.SetDefault("kernel.terminator", defaults.Kernel.Terminator)
	viper.SetDefault("kernel.line_buffered", defaults.Kernel.LineBuffered)

	// Display defaults
	viper.SetDefault("display.show_raw_text", defaults.Display.ShowRawText)
	viper.SetDefault("display.color", defaults.Display.Color)

	// Notebook defaults
	viper.SetDefault("notebook.max_output_lines", defaults.Notebook.MaxOutputLines)
	viper.SetDefault("notebook.show_timings", defaults.Notebook.ShowTimings)

	// Workspace defaults
	viper.SetDefault("workspace.state_dir", defaults.Workspace.StateDir)
	viper.SetDefault("workspace.deps_file", defaults.Workspace.DepsFile)
	viper.SetDefault("workspace.watch_deps", defaults.Workspace.WatchDeps)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load against an explicit viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// loaded configuration is invalid.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "holrepl")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".holrepl"
	}
	return filepath.Join(home, ".config", "holrepl")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidCompletionStrategies returns the list of valid kernel.completion values
func ValidCompletionStrategies() []string {
	return []string{CompletionSentinel, CompletionDebounce}
}
