// Package event provides the pub-sub bus that connects the kernel to its
// presentation sinks.
//
// The kernel publishes every state change and every chunk of output on a
// [Bus]; the terminal sink, the notebook sink and the session layer subscribe
// to the types they care about. The kernel never knows which sinks are
// attached.
//
// # Main Types
//
//   - [Event]: Interface that all events implement (EventType, Timestamp)
//   - [Bus]: Synchronous dispatcher, safe for concurrent use
//   - [Token]: Subscription handle returned by Subscribe
//
// # Event Types
//
// Session lifecycle:
//   - [SessionStartedEvent]: the REPL signalled readiness
//   - [SessionStoppedEvent]: the kernel returned to idle
//   - [StateChangedEvent]: any kernel state transition
//
// Executions:
//   - [ExecutionQueuedEvent], [ExecutionStartedEvent],
//     [ExecutionOutputEvent], [ExecutionEndedEvent]
//
// Unattributed output:
//   - [OverflowEvent]: output with no current execution
//
// # Ordering
//
// Publish calls handlers synchronously on the publishing goroutine. Because
// the kernel publishes from its single loop goroutine, events from one kernel
// arrive in the order they happened. Handlers must not block on kernel
// operations that wait for the loop (Start, Interrupt, Stop); doing so
// deadlocks. Submit is safe to call from a handler.
//
// # Usage
//
//	bus := event.NewBus(logger)
//	tok := bus.Subscribe(event.TypeExecutionOutput, func(e event.Event) {
//	    out := e.(event.ExecutionOutputEvent)
//	    fmt.Print(out.Text)
//	})
//	defer bus.Unsubscribe(tok)
package event
