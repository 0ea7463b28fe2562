package internal

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/kiln/pkg/health"
	"github.com/dmitrymomot/kiln/pkg/logger"
	"github.com/dmitrymomot/kiln/pkg/schedule"
	"github.com/dmitrymomot/kiln/pkg/shutdown"
)

const (
	defaultAddress         = ":8080"
	defaultShutdownTimeout = 30 * time.Second
	defaultMetricsPath     = "/metrics"
)

// App orchestrates the application lifecycle.
// It owns the HTTP router, the shutdown coordinator, and the task scheduler.
// App is immutable after creation - all configuration is done via New().
type App struct {
	router                  chi.Router
	coord                   *shutdown.Coordinator
	scheduler               *schedule.Scheduler
	registry                *prometheus.Registry
	recorder                schedule.Recorder
	errorHandler            ErrorHandler
	notFoundHandler         HandlerFunc
	methodNotAllowedHandler HandlerFunc
	healthConfig            *healthConfig
	stats                   *statsRoute
	logger                  *slog.Logger
	initErr                 error
	metricsPath             string
	middlewares             []Middleware
	handlers                []Handler
	staticRoutes            []staticRoute
	tasks                   []task

	flushersMu sync.Mutex
	flushers   []shutdown.Flusher
	flushed    bool
	running    atomic.Bool
}

// staticRoute represents a static file handler mount point.
type staticRoute struct {
	handler http.Handler
	pattern string
}

// statsRoute exposes scheduled task statistics.
type statsRoute struct {
	source  schedule.RecordSource
	pattern string
}

// New creates a new application with the given options.
// The App is immutable after creation.
//
// Example:
//
//	app := kiln.New(
//	    kiln.WithMiddleware(middlewares.Recover()),
//	    kiln.WithHandlers(handlers.NewPages(repo)),
//	    kiln.WithPeriodicTask("heartbeat", kiln.Every(time.Minute), heartbeat),
//	)
func New(opts ...Option) *App {
	a := &App{
		router: chi.NewRouter(),
		logger: logger.NewNope(),
	}

	for _, opt := range opts {
		opt(a)
	}

	coordOpts := []shutdown.Option{
		shutdown.WithLogger(a.logger),
		shutdown.WithFlusher(shutdown.FlusherFunc(a.flush)),
	}
	schedOpts := []schedule.Option{
		schedule.WithLogger(a.logger),
		schedule.WithDeferredStart(),
	}
	if a.registry != nil {
		coordOpts = append(coordOpts, shutdown.WithMetrics(a.registry))
		schedOpts = append(schedOpts, schedule.WithMetrics(a.registry))
	}
	if a.recorder != nil {
		schedOpts = append(schedOpts, schedule.WithRecorder(a.recorder))
	}

	a.coord = shutdown.New(coordOpts...)
	a.scheduler = schedule.New(a.coord, schedOpts...)

	a.setupRoutes()
	return a
}

// Router returns the underlying chi.Router for the App.
func (a *App) Router() chi.Router {
	return a.router
}

// Coordinator returns the shutdown coordinator that owns the termination sequence.
func (a *App) Coordinator() *shutdown.Coordinator {
	return a.coord
}

// Scheduler returns the task scheduler bound to the app's coordinator.
func (a *App) Scheduler() *schedule.Scheduler {
	return a.scheduler
}

// ShuttingDown reports whether the termination sequence has begun.
func (a *App) ShuttingDown() bool {
	return a.coord.InProgress()
}

// Stop begins the termination sequence without waiting for it to finish.
// Run returns once the sequence completes.
func (a *App) Stop() {
	go a.coord.Initiate()
}

// flush runs the flushers handed to Run, in registration order.
// The first failure stops the chain.
func (a *App) flush() error {
	a.flushersMu.Lock()
	a.flushed = true
	flushers := a.flushers
	a.flushersMu.Unlock()

	return runFlushers(flushers)
}

// setFlushers installs fs for the shutdown flush. It reports false when
// the coordinator has already flushed, leaving fs to the caller.
func (a *App) setFlushers(fs []shutdown.Flusher) bool {
	a.flushersMu.Lock()
	defer a.flushersMu.Unlock()
	if a.flushed {
		return false
	}
	a.flushers = fs
	return true
}

func runFlushers(fs []shutdown.Flusher) error {
	for _, f := range fs {
		if err := f.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// setupRoutes configures the router with middleware and handlers.
func (a *App) setupRoutes() {
	if a.notFoundHandler != nil {
		a.router.NotFound(a.wrapHandler(a.notFoundHandler))
	}
	if a.methodNotAllowedHandler != nil {
		a.router.MethodNotAllowed(a.wrapHandler(a.methodNotAllowedHandler))
	}

	for _, mw := range a.middlewares {
		a.router.Use(a.adaptMiddleware(mw))
	}

	for _, sr := range a.staticRoutes {
		a.router.Mount(sr.pattern, sr.handler)
	}

	if a.healthConfig != nil {
		a.router.Get(a.healthConfig.livenessPath, health.LivenessHandler())
		a.router.Get(a.healthConfig.readinessPath, health.ReadinessHandler(
			a.healthConfig.checks,
			health.WithLogger(a.logger),
			health.WithDraining(a.coord.InProgress),
		))
	}

	if a.registry != nil {
		a.router.Get(a.metricsPath, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}).ServeHTTP)
	}

	if a.stats != nil {
		a.router.Get(a.stats.pattern, schedule.StatsHandler(a.stats.source))
	}

	r := &routerAdapter{router: a.router, app: a}
	for _, h := range a.handlers {
		h.Routes(r)
	}
}

// wrapHandler converts a HandlerFunc to http.HandlerFunc using the app's error handler.
func (a *App) wrapHandler(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := newContext(w, r, a)
		if err := h(c); err != nil {
			a.handleError(c, err)
		}
	}
}

// handleError handles errors from handlers using the configured error handler.
func (a *App) handleError(c Context, err error) {
	if c.Written() {
		return
	}
	if a.errorHandler != nil {
		_ = a.errorHandler(c, err)
		return
	}
	if httpErr := AsHTTPError(err); httpErr != nil {
		http.Error(c.Response(), httpErr.Message, httpErr.Code)
		return
	}
	c.LogError("request failed", slog.Any("error", err))
	http.Error(c.Response(), "Internal Server Error", http.StatusInternalServerError)
}

// healthConfig holds health check endpoint configuration.
type healthConfig struct {
	checks        health.Checks
	livenessPath  string
	readinessPath string
}

// Default health check paths.
const (
	defaultLivenessPath  = "/health/live"
	defaultReadinessPath = "/health/ready"
)

// HealthOption configures health check endpoints.
type HealthOption func(*healthConfig)

// WithLivenessPath sets a custom liveness endpoint path.
// Defaults to "/health/live".
func WithLivenessPath(path string) HealthOption {
	return func(c *healthConfig) {
		if path != "" {
			c.livenessPath = path
		}
	}
}

// WithReadinessPath sets a custom readiness endpoint path.
// Defaults to "/health/ready".
func WithReadinessPath(path string) HealthOption {
	return func(c *healthConfig) {
		if path != "" {
			c.readinessPath = path
		}
	}
}

// WithReadinessCheck adds a named readiness check.
// Checks run in parallel during readiness probe.
// The probe reports "Draining" once shutdown has begun, regardless of checks.
//
// Example:
//
//	kiln.WithReadinessCheck("db", db.Healthcheck(pool))
func WithReadinessCheck(name string, fn health.CheckFunc) HealthOption {
	return func(c *healthConfig) {
		if c.checks == nil {
			c.checks = make(health.Checks)
		}
		c.checks[name] = fn
	}
}
