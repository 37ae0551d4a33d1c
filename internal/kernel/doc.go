// Package kernel drives one HOL REPL process and splits its output stream
// into per-submission executions.
//
// A [Kernel] owns at most one process at a time. Submissions are written to
// the process strictly one after another: the next submission is written
// only after the REPL has signalled that the previous one finished. Output
// that arrives while nothing is running is published as an overflow event.
//
// # States
//
//	Idle ──Start──▶ Starting ──ready──▶ Ready ◀──complete── Executing
//	  ▲                │                  │                    ▲
//	  └──stop/exit─────┴──────────────────┴──submit────────────┘
//
// # Completion
//
// Two strategies decide where an execution's output ends:
//
//   - sentinel: the REPL is started with --zero and prints a NUL byte each
//     time it prompts. Every NUL on stdout completes the current execution;
//     bytes after it belong to the next one.
//   - debounce: the last stdout line matching the prompt pattern, followed by
//     a quiet window with no further output, completes the execution. Needed
//     when the REPL runs on a pseudo-terminal.
//
// # Failure
//
// An execution fails when it receives stderr output, when its output contains
// the configured error marker, when it is interrupted, or when the process
// dies. Interrupt fails the current execution immediately without waiting for
// the REPL. Queued executions are cancelled by Interrupt, Stop and process
// death.
//
// # Concurrency
//
// All state lives on one loop goroutine fed by an unbounded mailbox, so
// process callbacks never block on the kernel. Events are published from the
// loop; see package event for the handler rules.
package kernel
