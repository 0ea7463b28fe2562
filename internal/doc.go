// Package internal provides the core types and implementation for the kiln
// application runtime.
//
// This package is internal and should not be used directly. Import
// "github.com/dmitrymomot/kiln" instead, which re-exports the public API.
//
// # Core Types
//
//   - App: owns the router, the shutdown coordinator, and the task scheduler
//   - Context: request and response access plus background work helpers
//   - Router: interface handlers use to declare routes
//   - Handler: implemented by types that declare routes on a router
//   - HandlerFunc: signature for route handlers that return errors
//   - Middleware: wraps handlers to add cross-cutting concerns
//   - ErrorHandler: custom handling for errors returned by handlers
//
// # Lifecycle
//
// App.Run binds every listener, then releases the scheduled tasks. A
// termination signal, cancellation of the WithContext context, App.Stop,
// or a failing listener starts the termination sequence:
//
//  1. every listener stops accepting and drains within its grace period
//  2. scheduled tasks stop firing
//  3. running tasks, including work started with Context.Go, are awaited
//  4. stores registered with Store are flushed in order
//  5. shutdown hooks run with the ShutdownTimeout budget
//
// A store that fails to flush aborts the process instead of returning.
//
// # Background Work
//
// Handlers can hand work to the scheduler so that shutdown waits for it:
//
//	func (h *Handler) export(c kiln.Context) error {
//	    if err := c.Go("export", h.exporter.Run); err != nil {
//	        return kiln.ErrServiceUnavailable("shutting down")
//	    }
//	    return c.NoContent(http.StatusAccepted)
//	}
package internal
