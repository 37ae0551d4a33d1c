package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "kernel.debounce_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateRepl()...)
	errors = append(errors, c.validateKernel()...)
	errors = append(errors, c.validateNotebook()...)
	errors = append(errors, c.validateWorkspace()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateRepl() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Repl.Executable) == "" {
		errors = append(errors, ValidationError{
			Field:   "repl.executable",
			Value:   c.Repl.Executable,
			Message: "must not be empty",
		})
	}

	if c.Repl.ReadBufferSize < 256 {
		errors = append(errors, ValidationError{
			Field:   "repl.read_buffer_size",
			Value:   c.Repl.ReadBufferSize,
			Message: "must be at least 256 bytes",
		})
	}

	if c.Repl.UsePTY {
		// The line discipline echoes the NUL we write, which would be read
		// back as a completion marker.
		if c.Kernel.Completion != CompletionDebounce {
			errors = append(errors, ValidationError{
				Field:   "repl.use_pty",
				Value:   c.Repl.UsePTY,
				Message: "requires kernel.completion = \"debounce\"",
			})
		}
		if c.Repl.PTYCols < 20 || c.Repl.PTYRows < 5 {
			errors = append(errors, ValidationError{
				Field:   "repl.pty_cols",
				Value:   fmt.Sprintf("%dx%d", c.Repl.PTYCols, c.Repl.PTYRows),
				Message: "pseudo-terminal must be at least 20x5",
			})
		}
	}

	return errors
}

func (c *Config) validateKernel() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidCompletionStrategies(), c.Kernel.Completion) {
		errors = append(errors, ValidationError{
			Field:   "kernel.completion",
			Value:   c.Kernel.Completion,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidCompletionStrategies(), ", ")),
		})
	}

	if c.Kernel.Completion == CompletionDebounce {
		if c.Kernel.DebounceMs < 10 {
			errors = append(errors, ValidationError{
				Field:   "kernel.debounce_ms",
				Value:   c.Kernel.DebounceMs,
				Message: "must be at least 10",
			})
		}
		if c.Kernel.PromptPattern == "" {
			errors = append(errors, ValidationError{
				Field:   "kernel.prompt_pattern",
				Value:   c.Kernel.PromptPattern,
				Message: "must not be empty in debounce mode",
			})
		}
	}

	if c.Kernel.PromptPattern != "" {
		if _, err := regexp.Compile(c.Kernel.PromptPattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   "kernel.prompt_pattern",
				Value:   c.Kernel.PromptPattern,
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}

	if c.Kernel.ReadyTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "kernel.ready_timeout_seconds",
			Value:   c.Kernel.ReadyTimeoutSeconds,
			Message: "must be non-negative (0 disables the timeout)",
		})
	}

	if strings.ContainsAny(c.Kernel.Terminator, "\n\x00") {
		errors = append(errors, ValidationError{
			Field:   "kernel.terminator",
			Value:   c.Kernel.Terminator,
			Message: "must not contain newline or NUL",
		})
	}

	return errors
}

func (c *Config) validateNotebook() []ValidationError {
	var errors []ValidationError

	if c.Notebook.MaxOutputLines < 0 {
		errors = append(errors, ValidationError{
			Field:   "notebook.max_output_lines",
			Value:   c.Notebook.MaxOutputLines,
			Message: "must be non-negative (0 means unlimited)",
		})
	}

	return errors
}

func (c *Config) validateWorkspace() []ValidationError {
	var errors []ValidationError

	if c.Workspace.StateDir == "" {
		errors = append(errors, ValidationError{
			Field:   "workspace.state_dir",
			Value:   c.Workspace.StateDir,
			Message: "must not be empty",
		})
	}

	if c.Workspace.DepsFile == "" || filepath.Base(c.Workspace.DepsFile) != c.Workspace.DepsFile {
		errors = append(errors, ValidationError{
			Field:   "workspace.deps_file",
			Value:   c.Workspace.DepsFile,
			Message: "must be a plain file name",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative (0 disables rotation)",
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
