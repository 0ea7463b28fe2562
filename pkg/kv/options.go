package kv

import (
	"log/slog"
	"time"
)

// Option configures a Store.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	timeout    time.Duration
	syncWrites bool
}

func defaultOptions() *options {
	return &options{
		timeout: time.Second,
	}
}

// WithLockTimeout sets how long Open waits for the file lock.
// Default: 1 second
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithSyncWrites makes every commit fsync the file.
// Flush stays valid but becomes cheap.
func WithSyncWrites() Option {
	return func(o *options) {
		o.syncWrites = true
	}
}

// WithLogger sets the logger for store lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
