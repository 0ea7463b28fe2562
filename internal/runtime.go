package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/dmitrymomot/kiln/pkg/schedule"
	"github.com/dmitrymomot/kiln/pkg/server"
	"github.com/dmitrymomot/kiln/pkg/shutdown"
)

// Run binds the configured listeners and blocks until the termination
// sequence has completed and every shutdown hook has run.
//
// Shutdown begins on SIGINT or SIGTERM, when the WithContext context is
// cancelled, when Stop is called, or when a listener fails. Listeners stop
// accepting, scheduled tasks stop firing, running tasks are awaited, and
// the stores registered with Store are flushed before Run returns.
//
// Example:
//
//	app := kiln.New(
//	    kiln.WithHandlers(handlers.NewPages()),
//	)
//	err := app.Run(kiln.Address(":8080"), kiln.Store(store))
func (a *App) Run(opts ...RunOption) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	return a.run(buildRunConfig(opts...))
}

func (a *App) run(cfg *runConfig) error {
	log := cfg.logger
	if log == nil {
		log = a.logger
	}

	if a.initErr != nil {
		return a.initErr
	}

	listeners := cfg.serverListeners()
	for _, l := range listeners {
		if err := l.Validate(); err != nil {
			return err
		}
	}

	baseCtx := cfg.baseCtx
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	// Startup hooks may call Stop; the flush must already see the stores.
	if !a.setFlushers(cfg.flushers) {
		log.Warn("shutdown began before run, flushing stores directly")
		return errors.Join(shutdown.ErrShuttingDown, runFlushers(cfg.flushers))
	}

	for _, hook := range cfg.startupHooks {
		if err := hook(baseCtx); err != nil {
			a.coord.Initiate()
			<-a.coord.Done()
			return errors.Join(ErrStartupHook, err)
		}
	}

	var errs []error
	if err := a.scheduleTasks(); err != nil {
		errs = append(errs, err)
		a.coord.Initiate()
	}

	signalCtx, stopSignals := context.WithCancel(context.Background())
	defer stopSignals()
	go a.coord.ListenSignals(signalCtx)

	var bound atomic.Int32
	srv := server.New(a.router, a.coord,
		server.WithLogger(log),
		server.WithListeners(listeners...),
		server.WithOnBound(func(l server.Listener, addr net.Addr) {
			if cfg.onListening != nil {
				cfg.onListening(l, addr)
			}
			if int(bound.Add(1)) == len(listeners) {
				a.startTasks(log)
			}
		}),
	)

	serveCtx, stopServe := context.WithCancel(context.Background())
	defer stopServe()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Run(serveCtx)
	}()

	served := false
	select {
	case err := <-serveErr:
		served = true
		if err != nil {
			log.Error("server failed", slog.Any("error", err))
			errs = append(errs, err)
		}
	case <-baseCtx.Done():
	case <-a.coord.Initiated():
	}

	log.Info("shutting down server")
	a.coord.Initiate()
	<-a.coord.Done()
	a.scheduler.Wait()

	if !served {
		if err := <-serveErr; err != nil {
			errs = append(errs, err)
		}
	}

	hookCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer cancel()

	for _, hook := range cfg.shutdownHooks {
		if err := hook(hookCtx); err != nil {
			errs = append(errs, err)
			log.Error("shutdown hook failed", slog.Any("error", err))
		}
	}

	if len(errs) > 0 {
		log.Error("shutdown completed with errors")
		return errors.Join(errs...)
	}

	log.Info("shutdown completed")
	return nil
}

// scheduleTasks submits the periodic tasks. Their loops wait for
// startTasks before the first firing.
func (a *App) scheduleTasks() error {
	for _, t := range a.tasks {
		if t.period == nil {
			continue
		}
		err := a.scheduler.Schedule(t.name, t.period, t.work)
		if errors.Is(err, schedule.ErrShuttingDown) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("schedule task %q: %w", t.name, err)
		}
	}
	return nil
}

// startTasks releases the periodic loops and launches the startup tasks.
// Called once every listener is bound.
func (a *App) startTasks(log *slog.Logger) {
	a.scheduler.Start()
	for _, t := range a.tasks {
		if t.period != nil {
			continue
		}
		if err := a.scheduler.RunOnce(t.name, t.work); err != nil {
			log.Warn("startup task not started", slog.String("task", t.name), slog.Any("error", err))
		}
	}
}
