// Package shutdown coordinates graceful process termination.
//
// A [Coordinator] is the single source of truth for "is the process shutting
// down". It owns three pieces of state: the initiated flag, the drain handles
// of every bound listener, and the counter of scheduled tasks that are
// currently executing. One coordinator exists per process; it is created by
// the application runtime and passed to whatever needs it.
//
// # Termination Sequence
//
// [Coordinator.Initiate] runs the sequence exactly once, no matter how many
// goroutines call it:
//
//  1. the initiated flag flips and [Coordinator.Initiated] closes;
//  2. every registered [Handle] receives a drain request with a fixed
//     [DrainGracePeriod];
//  3. the caller blocks until no scheduled task is executing;
//  4. every configured [Flusher] commits pending writes;
//  5. [Coordinator.Done] closes.
//
// Flushing only starts after the task counter reaches zero, so a task still
// writing data never races the flush. A flush failure is logged and then
// raised as a panic: there is no partial-shutdown recovery path.
//
// # Task Bookkeeping
//
// Background work brackets its execution with [Coordinator.Acquire]:
//
//	release, ok := coord.Acquire()
//	if !ok {
//	    return // shutdown already started, do not begin new work
//	}
//	defer release()
//
// Acquire increments the counter before checking the flag, so a task that
// gets ok=true is always visible to the quiescence wait.
//
// # Handles
//
// Listeners call [Coordinator.RegisterHandle] before binding and serve until
// [Handle.Draining] closes. A handle registered after shutdown started is
// drained on registration, so the listener never starts serving.
//
// # Signals
//
// [Coordinator.ListenSignals] translates SIGINT/SIGTERM into Initiate calls.
// Repeated signals are absorbed by Initiate's idempotence.
package shutdown
