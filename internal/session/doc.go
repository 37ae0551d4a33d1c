// Package session provides the per-workspace context that editor commands
// act on.
//
// A [Session] owns one kernel. Start takes the workspace lock, so only one
// process at a time can run a REPL for a workspace, and launches the REPL
// with one -I flag per dependency directory. The lock is released whenever
// the REPL goes idle.
//
// Commands that need a running REPL report errors.ErrNoActiveSession while
// idle. User-facing failures are shown through the [Notifier]; everything
// else is only logged. The Notifier may be called from the kernel goroutine
// and must not call back into the session.
package session
