package shutdown

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Coordinator.
type Option func(*config)

type config struct {
	logger   *slog.Logger
	registry prometheus.Registerer
	flushers []Flusher
}

// WithLogger sets the logger used for the termination sequence.
// If not set, a noop logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFlusher adds a persistent store to flush once all scheduled tasks
// have quiesced. Flushers run in the order they were added.
//
// Example:
//
//	store, _ := kv.Open("data/app.db")
//	coord := shutdown.New(shutdown.WithFlusher(store))
func WithFlusher(f Flusher) Option {
	return func(c *config) {
		if f != nil {
			c.flushers = append(c.flushers, f)
		}
	}
}

// WithMetrics registers coordinator gauges on the given registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registry = reg
	}
}
