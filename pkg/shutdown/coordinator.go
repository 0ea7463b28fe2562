package shutdown

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/kiln/pkg/logger"
)

// DrainGracePeriod is how long each listener lets in-flight requests finish
// after a drain request before connections are closed.
const DrainGracePeriod = time.Second

// Flusher durably commits pending writes of a persistent store.
type Flusher interface {
	Flush() error
}

// FlusherFunc adapts a function to the Flusher interface.
type FlusherFunc func() error

// Flush calls f().
func (f FlusherFunc) Flush() error {
	return f()
}

// Coordinator tracks shutdown state, listener handles and running tasks.
// The zero value is not usable; create one with New.
type Coordinator struct {
	logger    *slog.Logger
	initiated chan struct{}
	done      chan struct{}
	idle      chan struct{}
	handles   []*Handle
	flushers  []Flusher
	running   atomic.Int64
	mu        sync.RWMutex
	started   atomic.Bool
}

// New creates a coordinator in the running state.
func New(opts ...Option) *Coordinator {
	cfg := &config{logger: logger.NewNope()}
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Coordinator{
		logger:    cfg.logger,
		flushers:  cfg.flushers,
		initiated: make(chan struct{}),
		done:      make(chan struct{}),
		idle:      make(chan struct{}, 1),
	}

	if cfg.registry != nil {
		if err := c.registerMetrics(cfg.registry); err != nil {
			c.logger.Warn("shutdown metrics not registered", slog.Any("error", err))
		}
	}

	return c
}

// RegisterHandle creates a drain handle for a listener that is about to bind.
// A handle registered after shutdown started is drained right away.
func (c *Coordinator) RegisterHandle() *Handle {
	h := newHandle()

	c.mu.Lock()
	c.handles = append(c.handles, h)
	late := c.InProgress()
	c.mu.Unlock()

	if late && h.Drain(DrainGracePeriod) {
		c.logger.Warn("server handle registered during shutdown, drained immediately")
	}

	return h
}

// Initiate runs the termination sequence. Only the first call does the work;
// every later or concurrent call returns immediately. Use Done to wait for
// completion from other goroutines.
//
// Initiate returns after all handles were told to drain, no scheduled task
// is executing and all flushers have committed. A flush error panics.
func (c *Coordinator) Initiate() {
	if c.InProgress() || !c.started.CompareAndSwap(false, true) {
		return
	}

	c.logger.Warn("initiating shutdown")
	close(c.initiated)

	c.mu.RLock()
	handles := make([]*Handle, len(c.handles))
	copy(handles, c.handles)
	c.mu.RUnlock()

	drained := 0
	for _, h := range handles {
		if h.Drain(DrainGracePeriod) {
			drained++
		}
	}
	c.logger.Debug("sent drain requests to servers",
		slog.Int("handles", drained),
		slog.Duration("grace", DrainGracePeriod),
	)

	c.awaitIdle()
	c.logger.Debug("scheduled tasks quiesced")

	for i, f := range c.flushers {
		if err := f.Flush(); err != nil {
			c.logger.Error("store flush failed",
				slog.Int("flusher", i),
				slog.Any("error", err),
			)
			panic(fmt.Errorf("%w: %w", ErrFlushFailed, err))
		}
	}
	c.logger.Debug("flushed stores", slog.Int("flushers", len(c.flushers)))

	close(c.done)
	c.logger.Warn("shutdown completed")
}

// InProgress reports whether shutdown has started. It never blocks.
func (c *Coordinator) InProgress() bool {
	return c.started.Load()
}

// Initiated returns a channel that is closed when shutdown starts.
func (c *Coordinator) Initiated() <-chan struct{} {
	return c.initiated
}

// Done returns a channel that is closed when the termination sequence
// has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Acquire marks one scheduled task as executing.
// It returns ok=false without changing the counter when shutdown already
// started; otherwise release must be called exactly when the task ends.
// Calling release more than once has no further effect.
func (c *Coordinator) Acquire() (release func(), ok bool) {
	c.running.Add(1)
	if c.InProgress() {
		c.decrement()
		return func() {}, false
	}

	var once sync.Once
	return func() { once.Do(c.decrement) }, true
}

// Running returns the number of scheduled tasks currently executing.
func (c *Coordinator) Running() int64 {
	return c.running.Load()
}

// TaskRunning reports whether any scheduled task is executing.
func (c *Coordinator) TaskRunning() bool {
	return c.Running() > 0
}

// Handles returns the number of registered server handles.
func (c *Coordinator) Handles() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handles)
}

func (c *Coordinator) decrement() {
	if c.running.Add(-1) == 0 {
		select {
		case c.idle <- struct{}{}:
		default:
		}
	}
}

// awaitIdle blocks until the running counter reads zero.
// Only the Initiate winner waits here, so a single-slot channel
// cannot lose a wakeup.
func (c *Coordinator) awaitIdle() {
	for c.running.Load() > 0 {
		<-c.idle
	}
}
