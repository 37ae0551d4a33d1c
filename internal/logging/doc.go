// Package logging provides structured logging for holrepl sessions.
//
// The package wraps log/slog to write JSON lines with persistent context
// attributes, so a single debug log can be filtered by workspace session,
// execution, or component after the fact.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(logging.Options{
//	    Dir:   "/path/to/workspace/.holrepl",
//	    Level: "INFO",
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	kernelLog := logger.WithSession(sessionID).WithComponent("kernel")
//	kernelLog.Info("process started", "pid", pid)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"process started","session_id":"...","component":"kernel","pid":4242}
//
// # Rotation
//
// Editor sessions can stay open for days. When Options.Rotation.MaxSizeMB is
// non-zero the log file is written through a [RotatingWriter], which renames
// debug.log to debug.log.1 (shifting older backups) once the size limit is
// reached and optionally gzips the rotated file.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWithWriter] to capture it.
package logging
