package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/kiln/pkg/logger"
	"github.com/dmitrymomot/kiln/pkg/schedule"
)

// Option configures the application.
type Option func(*App)

// WithMiddleware adds global middleware to the application.
// Middleware is applied in the order provided.
func WithMiddleware(mw ...Middleware) Option {
	return func(a *App) {
		a.middlewares = append(a.middlewares, mw...)
	}
}

// WithHandlers registers handlers that declare routes.
// Each handler's Routes method is called during setup.
func WithHandlers(h ...Handler) Option {
	return func(a *App) {
		a.handlers = append(a.handlers, h...)
	}
}

// WithStaticFiles mounts a static file handler at the given pattern.
// Directory listings are disabled.
//
// Example:
//
//	//go:embed public
//	var assets embed.FS
//
//	kiln.New(
//	    kiln.WithStaticFiles("/static/", assets, "public"),
//	)
func WithStaticFiles(pattern string, fsys fs.FS, subDir string) Option {
	return func(a *App) {
		subFS, err := fs.Sub(fsys, subDir)
		if err != nil {
			a.initErr = errors.Join(a.initErr, fmt.Errorf("static files %q: %w", pattern, err))
			return
		}

		fileServer := http.StripPrefix(strings.TrimSuffix(pattern, "/"), http.FileServerFS(subFS))

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}

			w.Header().Set("Cache-Control", "public, max-age=3600")
			w.Header().Set("X-Content-Type-Options", "nosniff")

			fileServer.ServeHTTP(w, r)
		})

		a.staticRoutes = append(a.staticRoutes, staticRoute{handler, pattern})
	}
}

// WithErrorHandler sets a custom error handler for handler errors.
// Called when a handler returns a non-nil error.
//
// Example:
//
//	kiln.WithErrorHandler(func(c kiln.Context, err error) error {
//	    return c.JSON(http.StatusInternalServerError, map[string]string{
//	        "error": err.Error(),
//	    })
//	})
func WithErrorHandler(h ErrorHandler) Option {
	return func(a *App) {
		a.errorHandler = h
	}
}

// WithNotFoundHandler sets a custom 404 handler.
func WithNotFoundHandler(h HandlerFunc) Option {
	return func(a *App) {
		a.notFoundHandler = h
	}
}

// WithMethodNotAllowedHandler sets a custom 405 handler.
func WithMethodNotAllowedHandler(h HandlerFunc) Option {
	return func(a *App) {
		a.methodNotAllowedHandler = h
	}
}

// WithHealthChecks enables health check endpoints with optional configuration.
// Liveness (/health/live): Always returns OK if process is running.
// Readiness (/health/ready): Runs all configured checks and reports
// "Draining" once shutdown has begun.
//
// Example:
//
//	kiln.WithHealthChecks(
//	    kiln.WithReadinessCheck("db", db.Healthcheck(pool)),
//	    kiln.WithReadinessCheck("redis", redis.Healthcheck(client)),
//	)
func WithHealthChecks(opts ...HealthOption) Option {
	return func(a *App) {
		cfg := &healthConfig{
			livenessPath:  defaultLivenessPath,
			readinessPath: defaultReadinessPath,
		}
		for _, opt := range opts {
			opt(cfg)
		}
		a.healthConfig = cfg
	}
}

// WithLogger creates a logger with a component name and optional extractors.
//
// Example:
//
//	kiln.New(
//	    kiln.WithLogger("api", middlewares.RequestIDExtractor()),
//	)
func WithLogger(component string, extractors ...logger.ContextExtractor) Option {
	return func(a *App) {
		a.logger = logger.New(logger.Config{Component: component}, extractors...)
	}
}

// WithCustomLogger sets a fully custom logger.
func WithCustomLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics registers shutdown and scheduler gauges on reg and serves
// them at /metrics.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	kiln.New(kiln.WithMetrics(reg))
func WithMetrics(reg *prometheus.Registry) Option {
	return func(a *App) {
		a.registry = reg
		if a.metricsPath == "" {
			a.metricsPath = defaultMetricsPath
		}
	}
}

// WithMetricsPath changes the path metrics are served at.
func WithMetricsPath(path string) Option {
	return func(a *App) {
		if path != "" {
			a.metricsPath = path
		}
	}
}

// ScheduledTask is a task that runs on a cron schedule.
//
// Example:
//
//	type PruneRecords struct{ rec *schedule.StoreRecorder }
//
//	func (t *PruneRecords) Name() string     { return "prune_records" }
//	func (t *PruneRecords) Schedule() string { return "@hourly" }
//	func (t *PruneRecords) Handle(ctx context.Context) error {
//	    _, err := t.rec.Prune(ctx, time.Now().Add(-24*time.Hour))
//	    return err
//	}
type ScheduledTask interface {
	Name() string
	Schedule() string
	Handle(ctx context.Context) error
}

// task is background work registered with the scheduler when Run starts.
// A nil period means the work runs once.
type task struct {
	period schedule.Period
	work   schedule.Work
	name   string
}

// WithScheduledTask registers a cron-scheduled task.
// An invalid cron expression makes Run fail before serving.
func WithScheduledTask(t ScheduledTask) Option {
	return func(a *App) {
		period, err := schedule.Cron(t.Schedule())
		if err != nil {
			a.initErr = errors.Join(a.initErr, fmt.Errorf("scheduled task %q: %w", t.Name(), err))
			return
		}
		a.addTask(task{name: t.Name(), period: period, work: t.Handle})
	}
}

// WithPeriodicTask registers work that repeats on period.
//
// Example:
//
//	kiln.WithPeriodicTask("heartbeat", kiln.Every(30*time.Second), func(ctx context.Context) error {
//	    return pinger.Ping(ctx)
//	})
func WithPeriodicTask(name string, period schedule.Period, work schedule.Work) Option {
	return func(a *App) {
		if err := schedule.ValidatePeriod(period); err != nil {
			a.initErr = errors.Join(a.initErr, fmt.Errorf("periodic task %q: %w", name, err))
			return
		}
		a.addTask(task{name: name, period: period, work: work})
	}
}

// WithStartupTask registers work that runs once after the listeners are bound.
// Shutdown waits for it like any other task.
func WithStartupTask(name string, work schedule.Work) Option {
	return func(a *App) {
		a.addTask(task{name: name, work: work})
	}
}

func (a *App) addTask(t task) {
	switch {
	case t.name == "":
		a.initErr = errors.Join(a.initErr, schedule.ErrEmptyName)
	case t.work == nil:
		a.initErr = errors.Join(a.initErr, fmt.Errorf("task %q: %w", t.name, schedule.ErrNilWork))
	default:
		a.tasks = append(a.tasks, t)
	}
}

// WithTaskRecorder persists every task run through r.
//
// Example:
//
//	rec := schedule.NewStoreRecorder(store, schedule.DefaultRecordsBucket)
//	kiln.New(
//	    kiln.WithTaskRecorder(rec),
//	    kiln.WithTaskStats("/jobs/stats", rec),
//	)
func WithTaskRecorder(r schedule.Recorder) Option {
	return func(a *App) {
		a.recorder = r
	}
}

// WithTaskStats serves per-task run statistics as JSON at pattern.
func WithTaskStats(pattern string, src schedule.RecordSource) Option {
	return func(a *App) {
		if pattern == "" || src == nil {
			return
		}
		a.stats = &statsRoute{pattern: pattern, source: src}
	}
}
