package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/kiln/pkg/logger"
	"github.com/dmitrymomot/kiln/pkg/shutdown"
)

// Work is a unit of background work.
type Work func(ctx context.Context) error

// Scheduler runs work under the control of a shutdown coordinator.
type Scheduler struct {
	ctx      context.Context
	coord    *shutdown.Coordinator
	logger   *slog.Logger
	recorder Recorder
	metrics  *metrics
	ready    chan struct{}
	tasks    []string
	wg       sync.WaitGroup
	mu       sync.Mutex
	start    sync.Once
}

// New creates a scheduler bound to coord.
// Periodic loops start right away unless WithDeferredStart is given.
func New(coord *shutdown.Coordinator, opts ...Option) *Scheduler {
	cfg := &config{
		ctx:    context.Background(),
		logger: logger.NewNope(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Scheduler{
		ctx:      cfg.ctx,
		coord:    coord,
		logger:   cfg.logger,
		recorder: cfg.recorder,
		ready:    make(chan struct{}),
	}

	if cfg.registry != nil {
		m, err := newMetrics(cfg.registry)
		if err != nil {
			s.logger.Warn("scheduler metrics not registered", slog.Any("error", err))
		}
		s.metrics = m
	}

	if !cfg.deferredStart {
		s.Start()
	}

	return s
}

// Start releases periodic loops that wait for the scheduler to be ready.
// Calling it more than once has no effect.
func (s *Scheduler) Start() {
	s.start.Do(func() {
		close(s.ready)
		s.logger.Debug("scheduler started")
	})
}

// Started reports whether Start has been called.
func (s *Scheduler) Started() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// RunOnce runs work in its own goroutine right away.
// The running-task counter is incremented before RunOnce returns and
// decremented when work ends, even if it panics.
// Returns ErrShuttingDown without running anything once shutdown began.
func (s *Scheduler) RunOnce(name string, work Work) error {
	if err := validateTask(name, work); err != nil {
		return err
	}

	release, ok := s.coord.Acquire()
	if !ok {
		return ErrShuttingDown
	}

	s.track(name)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		s.execute(name, work)
	}()

	return nil
}

// Schedule runs work on every firing of period until shutdown starts or
// the period has no further firings.
// No execution starts after shutdown began, and a loop sleeping at that
// moment exits without waiting for its next firing.
func (s *Scheduler) Schedule(name string, period Period, work Work) error {
	if err := ValidatePeriod(period); err != nil {
		return err
	}
	if err := validateTask(name, work); err != nil {
		return err
	}

	// The reservation keeps the coordinator from completing, and so Wait
	// from starting, until the loop is counted.
	release, ok := s.coord.Acquire()
	if !ok {
		return ErrShuttingDown
	}
	defer release()

	s.track(name)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(name, period, work)
	}()

	return nil
}

// Wait blocks until every loop and one-off run has returned.
// Loops return after shutdown starts or when their period is exhausted.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Tasks returns the names of all submitted tasks in submission order.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tasks)
}

func (s *Scheduler) track(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.tasks, name) {
		s.tasks = append(s.tasks, name)
	}
}

func (s *Scheduler) loop(name string, period Period, work Work) {
	log := s.logger.With(slog.String("task", name))

	select {
	case <-s.ready:
	case <-s.coord.Initiated():
		log.Debug("shutdown before scheduler start, loop not started")
		return
	}

	for {
		next := period.Next(time.Now())
		if next.IsZero() {
			log.Debug("period has no further firings, loop finished")
			return
		}

		if s.coord.InProgress() {
			log.Debug("shutdown in progress, loop stopped")
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.coord.Initiated():
			timer.Stop()
			log.Debug("shutdown while sleeping, loop stopped")
			return
		case <-timer.C:
		}

		// Acquire re-checks the flag after incrementing the counter, so a
		// shutdown that started during the sleep is never raced.
		release, ok := s.coord.Acquire()
		if !ok {
			log.Debug("shutdown while sleeping, tick skipped")
			return
		}
		func() {
			defer release()
			s.execute(name, work)
		}()
	}
}

// execute runs work, catching its error or panic, and records the outcome.
func (s *Scheduler) execute(name string, work Work) {
	rec := newRecord(name)
	log := s.logger.With(slog.String("task", name), slog.String("run_id", rec.ID.String()))

	if s.recorder != nil {
		if err := s.recorder.Started(s.ctx, rec); err != nil {
			log.Warn("failed to record task start", slog.Any("error", err))
		}
	}

	err := s.call(work)

	end := time.Now()
	rec.End = &end
	if err != nil {
		rec.Error = err.Error()
		log.Error("scheduled task failed",
			slog.Duration("duration", rec.Duration()),
			slog.Any("error", err),
		)
	} else {
		log.Debug("scheduled task finished", slog.Duration("duration", rec.Duration()))
	}

	s.metrics.observe(name, rec.Duration(), err)

	if s.recorder != nil {
		if err := s.recorder.Finished(s.ctx, rec); err != nil {
			log.Warn("failed to record task end", slog.Any("error", err))
		}
	}
}

func (s *Scheduler) call(work Work) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return work(s.ctx)
}

func validateTask(name string, work Work) error {
	if name == "" {
		return ErrEmptyName
	}
	if work == nil {
		return ErrNilWork
	}
	return nil
}
