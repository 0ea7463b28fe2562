package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/kiln"
	"github.com/dmitrymomot/kiln/internal/config"
	"github.com/dmitrymomot/kiln/middlewares"
	"github.com/dmitrymomot/kiln/pkg/db"
	"github.com/dmitrymomot/kiln/pkg/kv"
	"github.com/dmitrymomot/kiln/pkg/logger"
	"github.com/dmitrymomot/kiln/pkg/redis"
	"github.com/dmitrymomot/kiln/pkg/schedule"
)

const sentryFlushTimeout = 2 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
		Long: `Start the kiln server.

The server will:
  - Load and validate the configuration
  - Open the embedded store and, when configured, Postgres and Redis
  - Apply pending database migrations when database.migrations is set
  - Bind every listener, then start the background tasks
  - Serve until SIGINT or SIGTERM, then drain and flush before exiting

Example:
  kiln serve -c kiln.yaml`,
		RunE: runServe,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Log.Component == "" {
		cfg.Log.Component = "kiln"
	}
	if cfg.Log.Output == nil {
		cfg.Log.Output = cmd.ErrOrStderr()
	}
	log := logger.New(cfg.Log, middlewares.RequestIDExtractor())
	defer logger.FlushSentry(sentryFlushTimeout)

	return serve(cmd.Context(), cfg, log)
}

// serve wires the configured stores into an app and runs it until ctx is
// cancelled or a termination signal arrives. extra is appended to the
// derived run options.
func serve(ctx context.Context, cfg *config.Config, log *slog.Logger, extra ...kiln.RunOption) error {
	var (
		appOpts []kiln.Option
		runOpts []kiln.RunOption
		checks  []kiln.HealthOption
		closers []func(context.Context) error
	)
	fail := func(err error) error {
		for _, c := range closers {
			err = errors.Join(err, c(context.Background()))
		}
		return err
	}

	store, err := kv.Open(cfg.StorePath(), kv.WithLogger(log))
	if err != nil {
		return err
	}
	closers = append(closers, kv.Shutdown(store))
	runOpts = append(runOpts, kiln.Store(store), kiln.ShutdownHook(kv.Shutdown(store)))
	checks = append(checks, kiln.WithReadinessCheck("store", kv.Healthcheck(store)))

	if cfg.Database.ConnectionString != "" {
		pool, err := db.Connect(ctx, cfg.Database, db.WithLogger(log))
		if err != nil {
			return fail(err)
		}
		closers = append(closers, db.Shutdown(pool))
		runOpts = append(runOpts, kiln.ShutdownHook(db.Shutdown(pool)))
		if dir := cfg.Database.Migrations; dir != "" {
			runOpts = append(runOpts, kiln.StartupHook(db.MigrateHook(pool, os.DirFS(dir), cfg.Database.MigrationsTable, log)))
		}
		checks = append(checks, kiln.WithReadinessCheck("postgres", db.Healthcheck(pool)))
	}

	if cfg.Redis.URL != "" {
		redisOpts := []redis.Option{redis.WithLogger(log)}
		if cfg.Redis.PoolSize > 0 {
			redisOpts = append(redisOpts, redis.WithPoolSize(cfg.Redis.PoolSize))
		}
		client, err := redis.Open(ctx, cfg.Redis.URL, redisOpts...)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, redis.Shutdown(client))
		runOpts = append(runOpts, kiln.Store(redis.Flusher(client, cfg.Redis.SaveTimeout)), kiln.ShutdownHook(redis.Shutdown(client)))
		checks = append(checks, kiln.WithReadinessCheck("redis", redis.Healthcheck(client)))
	}

	recorder := schedule.NewStoreRecorder(store, "")
	st := &status{logger: log}

	appOpts = append(appOpts,
		kiln.WithCustomLogger(log),
		kiln.WithMiddleware(
			middlewares.RequestID(),
			middlewares.Recover(),
			middlewares.Draining(),
		),
		kiln.WithHandlers(st),
		kiln.WithHealthChecks(checks...),
		kiln.WithTaskRecorder(recorder),
	)
	if cfg.StatsPath != "" {
		appOpts = append(appOpts, kiln.WithTaskStats(cfg.StatsPath, recorder))
	}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		appOpts = append(appOpts, kiln.WithMetrics(reg), kiln.WithMetricsPath(cfg.Metrics.Path))
	}
	if cfg.Tasks.Heartbeat > 0 {
		appOpts = append(appOpts, kiln.WithPeriodicTask("heartbeat", kiln.Every(cfg.Tasks.Heartbeat), st.heartbeat))
	}
	if cfg.Tasks.Prune != "" {
		appOpts = append(appOpts, kiln.WithScheduledTask(pruneTask{
			recorder:  recorder,
			logger:    log,
			schedule:  cfg.Tasks.Prune,
			retention: cfg.Tasks.Retention,
		}))
	}

	st.app = kiln.New(appOpts...)

	runOpts = append(runOpts,
		kiln.Listeners(cfg.Listeners()...),
		kiln.Logger(log),
		kiln.WithContext(ctx),
		kiln.ShutdownTimeout(cfg.ShutdownTimeout),
	)
	runOpts = append(runOpts, extra...)

	return st.app.Run(runOpts...)
}
