package kiln

import (
	"context"
	"io/fs"
	"log/slog"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/kiln/internal"
	"github.com/dmitrymomot/kiln/pkg/health"
	"github.com/dmitrymomot/kiln/pkg/logger"
	"github.com/dmitrymomot/kiln/pkg/schedule"
	"github.com/dmitrymomot/kiln/pkg/server"
	"github.com/dmitrymomot/kiln/pkg/shutdown"
)

// Type aliases - public API
type (
	// App orchestrates the application lifecycle.
	App = internal.App

	// Router is the interface handlers use to declare routes.
	Router = internal.Router

	// Context provides request/response access and helper methods.
	Context = internal.Context

	// Handler declares routes on a router.
	Handler = internal.Handler

	// HandlerFunc is the signature for route handlers.
	HandlerFunc = internal.HandlerFunc

	// Middleware wraps a HandlerFunc to add cross-cutting concerns.
	Middleware = internal.Middleware

	// ErrorHandler handles errors returned from handlers.
	ErrorHandler = internal.ErrorHandler

	// Option configures the application.
	Option = internal.Option

	// RunOption configures the server runtime.
	RunOption = internal.RunOption

	// HealthOption configures health check endpoints.
	HealthOption = internal.HealthOption

	// ContextExtractor extracts a slog attribute from context.
	ContextExtractor = logger.ContextExtractor

	// ResponseWriter wraps http.ResponseWriter with write tracking and hooks.
	ResponseWriter = internal.ResponseWriter

	// HTTPError is an error carrying an HTTP status code.
	HTTPError = internal.HTTPError

	// HTTPErrorOption configures an HTTPError.
	HTTPErrorOption = internal.HTTPErrorOption

	// ScheduledTask is a task that runs on a cron schedule.
	ScheduledTask = internal.ScheduledTask

	// Work is the body of a background task.
	Work = schedule.Work

	// Period decides when a periodic task fires next.
	Period = schedule.Period

	// Flusher persists a store during shutdown.
	Flusher = shutdown.Flusher

	// FlusherFunc adapts a function to Flusher.
	FlusherFunc = shutdown.FlusherFunc

	// Listener describes one socket the server binds.
	Listener = server.Listener

	// ACMEConfig configures automatic certificate issuance.
	ACMEConfig = server.ACMEConfig
)

// Errors
var (
	ErrShuttingDown   = shutdown.ErrShuttingDown
	ErrAlreadyRunning = internal.ErrAlreadyRunning
	ErrStartupHook    = internal.ErrStartupHook
	ErrInvalidPeriod  = schedule.ErrInvalidPeriod
)

// New creates a new application with the given options.
//
// Example:
//
//	app := kiln.New(
//	    kiln.WithMiddleware(middlewares.Recover()),
//	    kiln.WithHandlers(handlers.NewPages(store)),
//	    kiln.WithPeriodicTask("heartbeat", kiln.Every(time.Minute), heartbeat),
//	)
//
//	err := app.Run(kiln.Address(":8080"), kiln.Store(store))
func New(opts ...Option) *App {
	return internal.New(opts...)
}

// App options

// WithMiddleware adds global middleware to the application.
// Middleware is applied in the order provided.
func WithMiddleware(mw ...Middleware) Option {
	return internal.WithMiddleware(mw...)
}

// WithHandlers registers handlers that declare routes.
func WithHandlers(h ...Handler) Option {
	return internal.WithHandlers(h...)
}

// WithStaticFiles mounts a static file handler at the given pattern.
func WithStaticFiles(pattern string, fsys fs.FS, subDir string) Option {
	return internal.WithStaticFiles(pattern, fsys, subDir)
}

// WithErrorHandler sets a custom error handler for handler errors.
func WithErrorHandler(h ErrorHandler) Option {
	return internal.WithErrorHandler(h)
}

// WithNotFoundHandler sets a custom 404 handler.
func WithNotFoundHandler(h HandlerFunc) Option {
	return internal.WithNotFoundHandler(h)
}

// WithMethodNotAllowedHandler sets a custom 405 handler.
func WithMethodNotAllowedHandler(h HandlerFunc) Option {
	return internal.WithMethodNotAllowedHandler(h)
}

// WithHealthChecks enables liveness and readiness endpoints.
// Readiness answers 503 "Draining" once shutdown has begun.
//
// Example:
//
//	kiln.WithHealthChecks(
//	    kiln.WithReadinessCheck("db", db.Healthcheck(pool)),
//	)
func WithHealthChecks(opts ...HealthOption) Option {
	return internal.WithHealthChecks(opts...)
}

// WithLogger creates a logger with a component name and optional extractors.
func WithLogger(component string, extractors ...ContextExtractor) Option {
	return internal.WithLogger(component, extractors...)
}

// WithCustomLogger sets a fully custom logger.
func WithCustomLogger(l *slog.Logger) Option {
	return internal.WithCustomLogger(l)
}

// WithMetrics registers lifecycle gauges on reg and serves them at /metrics.
func WithMetrics(reg *prometheus.Registry) Option {
	return internal.WithMetrics(reg)
}

// WithMetricsPath changes the path metrics are served at.
func WithMetricsPath(path string) Option {
	return internal.WithMetricsPath(path)
}

// WithScheduledTask registers a cron-scheduled task.
func WithScheduledTask(t ScheduledTask) Option {
	return internal.WithScheduledTask(t)
}

// WithPeriodicTask registers work that repeats on period.
func WithPeriodicTask(name string, period Period, work Work) Option {
	return internal.WithPeriodicTask(name, period, work)
}

// WithStartupTask registers work that runs once after the listeners are bound.
func WithStartupTask(name string, work Work) Option {
	return internal.WithStartupTask(name, work)
}

// WithTaskRecorder persists every task run through r.
func WithTaskRecorder(r schedule.Recorder) Option {
	return internal.WithTaskRecorder(r)
}

// WithTaskStats serves per-task run statistics as JSON at pattern.
func WithTaskStats(pattern string, src schedule.RecordSource) Option {
	return internal.WithTaskStats(pattern, src)
}

// Health check options

// WithLivenessPath sets a custom liveness endpoint path.
func WithLivenessPath(path string) HealthOption {
	return internal.WithLivenessPath(path)
}

// WithReadinessPath sets a custom readiness endpoint path.
func WithReadinessPath(path string) HealthOption {
	return internal.WithReadinessPath(path)
}

// WithReadinessCheck adds a named readiness check.
func WithReadinessCheck(name string, fn health.CheckFunc) HealthOption {
	return internal.WithReadinessCheck(name, fn)
}

// Run options

// Address adds a plain HTTP listener.
// Defaults to ":8080" when no listener is configured.
func Address(addr string) RunOption {
	return internal.Address(addr)
}

// TLS adds an HTTPS listener with a certificate and key from disk.
func TLS(addr, certFile, keyFile string) RunOption {
	return internal.TLS(addr, certFile, keyFile)
}

// ACME adds an HTTPS listener with automatically issued certificates.
func ACME(addr string, cfg ACMEConfig) RunOption {
	return internal.ACME(addr, cfg)
}

// RedirectHTTP adds a listener that redirects every request to HTTPS.
func RedirectHTTP(addr string, httpsPort int) RunOption {
	return internal.RedirectHTTP(addr, httpsPort)
}

// Listeners adds preconfigured listeners.
func Listeners(ls ...Listener) RunOption {
	return internal.Listeners(ls...)
}

// OnListening registers a callback invoked with each bound address.
func OnListening(fn func(l Listener, addr net.Addr)) RunOption {
	return internal.OnListening(fn)
}

// Logger sets the runtime logger.
func Logger(l *slog.Logger) RunOption {
	return internal.Logger(l)
}

// Store registers a store to flush after every running task has finished.
//
// Example:
//
//	store, _ := kv.Open("data/app.db")
//	app.Run(kiln.Store(store))
func Store(f Flusher) RunOption {
	return internal.Store(f)
}

// ShutdownTimeout bounds the time given to shutdown hooks.
func ShutdownTimeout(d time.Duration) RunOption {
	return internal.ShutdownTimeout(d)
}

// StartupHook registers a function to run before the listeners bind.
func StartupHook(fn func(context.Context) error) RunOption {
	return internal.StartupHook(fn)
}

// ShutdownHook registers a cleanup function to run after the termination sequence.
//
// Example:
//
//	kiln.ShutdownHook(redis.Shutdown(client))
func ShutdownHook(fn func(context.Context) error) RunOption {
	return internal.ShutdownHook(fn)
}

// WithContext sets a base context whose cancellation begins shutdown.
func WithContext(ctx context.Context) RunOption {
	return internal.WithContext(ctx)
}

// Periods

// Every fires every d. A non-positive d fails registration with
// ErrInvalidPeriod.
func Every(d time.Duration) Period {
	return schedule.Every(d)
}

// Cron parses a cron expression with an optional seconds field.
func Cron(expr string) (Period, error) {
	return schedule.Cron(expr)
}

// At fires once at t.
func At(t time.Time) Period {
	return schedule.At(t)
}

// Limit caps p at n firings.
func Limit(p Period, n int) Period {
	return schedule.Limit(p, n)
}

// Errors

// NewHTTPError creates an HTTPError with the given status code and message.
func NewHTTPError(code int, message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.NewHTTPError(code, message, opts...)
}

// ErrBadRequest creates a 400 HTTPError.
func ErrBadRequest(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrBadRequest(message, opts...)
}

// ErrNotFound creates a 404 HTTPError.
func ErrNotFound(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrNotFound(message, opts...)
}

// ErrConflict creates a 409 HTTPError.
func ErrConflict(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrConflict(message, opts...)
}

// ErrInternal creates a 500 HTTPError.
func ErrInternal(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrInternal(message, opts...)
}

// ErrServiceUnavailable creates a 503 HTTPError.
func ErrServiceUnavailable(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrServiceUnavailable(message, opts...)
}

// AsHTTPError extracts the HTTPError from an error chain if present.
func AsHTTPError(err error) *HTTPError {
	return internal.AsHTTPError(err)
}
