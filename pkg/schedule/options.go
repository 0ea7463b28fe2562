package schedule

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Scheduler.
type Option func(*config)

type config struct {
	ctx           context.Context
	logger        *slog.Logger
	recorder      Recorder
	registry      prometheus.Registerer
	deferredStart bool
}

// WithLogger sets the scheduler logger. If not set, a noop logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder stores a Record for every execution.
func WithRecorder(r Recorder) Option {
	return func(c *config) {
		c.recorder = r
	}
}

// WithMetrics registers run counters and duration histograms.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registry = reg
	}
}

// WithContext sets the context handed to work. Defaults to context.Background().
// Cancelling it does not stop periodic loops; shutdown does.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// WithDeferredStart keeps periodic loops waiting until Start is called.
// Use it to hold recurring work back until listeners are bound.
func WithDeferredStart() Option {
	return func(c *config) {
		c.deferredStart = true
	}
}
