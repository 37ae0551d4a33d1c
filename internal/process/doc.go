// Package process owns the REPL child process: spawning it, streaming its
// output to a Listener, writing to its stdin and signalling it.
//
// Two spawners are provided. [PipeSpawner] is the default and keeps stdout
// and stderr apart so stderr can mark executions failed. [PTYSpawner] runs
// the child on a pseudo-terminal for REPL builds that need a tty; its output
// arrives merged on [Stdout].
//
// A [Channel] never panics on a dead child: Write and Signal return
// [ErrNotRunning], which callers are expected to log and otherwise ignore.
//
// On unix the child leads its own process group and [ScopeGroup] signals
// reach every process in it. Elsewhere only the direct child can be
// signalled, TERM becomes a kill and INT is reported as unsupported.
package process
