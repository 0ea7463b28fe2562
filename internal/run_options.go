package internal

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/dmitrymomot/kiln/pkg/server"
	"github.com/dmitrymomot/kiln/pkg/shutdown"
)

// RunOption configures the server runtime.
type RunOption func(*runConfig)

// runConfig holds runtime configuration for the server.
type runConfig struct {
	baseCtx         context.Context
	logger          *slog.Logger
	listeners       []server.Listener
	flushers        []shutdown.Flusher
	startupHooks    []func(context.Context) error
	shutdownHooks   []func(context.Context) error
	onListening     func(server.Listener, net.Addr)
	shutdownTimeout time.Duration
}

// buildRunConfig creates a runConfig from the provided options.
func buildRunConfig(opts ...RunOption) *runConfig {
	cfg := &runConfig{
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// serverListeners returns the configured listeners, falling back to a
// plain HTTP listener on the default address.
func (c *runConfig) serverListeners() []server.Listener {
	if len(c.listeners) > 0 {
		return c.listeners
	}
	return []server.Listener{server.Plain(defaultAddress)}
}

// Address sets the plain HTTP server address.
// Defaults to ":8080" when no other listener is configured.
func Address(addr string) RunOption {
	return func(c *runConfig) {
		if addr != "" {
			c.listeners = append(c.listeners, server.Plain(addr))
		}
	}
}

// TLS adds an HTTPS listener using a certificate and key loaded from disk.
func TLS(addr, certFile, keyFile string) RunOption {
	return func(c *runConfig) {
		c.listeners = append(c.listeners, server.TLS(addr, certFile, keyFile))
	}
}

// ACME adds an HTTPS listener with certificates issued automatically.
//
// Example:
//
//	app.Run(
//	    kiln.ACME(":443", kiln.ACMEConfig{
//	        Email:   "ops@example.com",
//	        Domains: []string{"example.com"},
//	    }),
//	    kiln.RedirectHTTP(":80", 443),
//	)
func ACME(addr string, cfg server.ACMEConfig) RunOption {
	return func(c *runConfig) {
		c.listeners = append(c.listeners, server.ACME(addr, cfg))
	}
}

// RedirectHTTP adds a plain listener that redirects every request to HTTPS.
// With an ACME listener configured, it also answers HTTP-01 challenges.
func RedirectHTTP(addr string, httpsPort int) RunOption {
	return func(c *runConfig) {
		c.listeners = append(c.listeners, server.Redirect(addr, httpsPort))
	}
}

// Listeners adds preconfigured listeners.
func Listeners(ls ...server.Listener) RunOption {
	return func(c *runConfig) {
		c.listeners = append(c.listeners, ls...)
	}
}

// OnListening registers a callback invoked with the bound address of each
// listener. Useful with ":0" addresses.
func OnListening(fn func(l server.Listener, addr net.Addr)) RunOption {
	return func(c *runConfig) {
		c.onListening = fn
	}
}

// Logger sets the runtime logger.
// Defaults to the app logger.
func Logger(l *slog.Logger) RunOption {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Store registers a store to flush once every running task has finished.
// Stores are flushed in registration order. A failed flush aborts the
// process, so nothing is lost silently.
//
// Example:
//
//	app.Run(kiln.Store(store))
func Store(f shutdown.Flusher) RunOption {
	return func(c *runConfig) {
		if f != nil {
			c.flushers = append(c.flushers, f)
		}
	}
}

// ShutdownTimeout bounds the time given to shutdown hooks.
// Defaults to 30 seconds.
func ShutdownTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

// StartupHook registers a function to run before the listeners bind.
// A failing hook aborts Run.
func StartupHook(fn func(context.Context) error) RunOption {
	return func(c *runConfig) {
		if fn != nil {
			c.startupHooks = append(c.startupHooks, fn)
		}
	}
}

// ShutdownHook registers a cleanup function to run after the termination
// sequence has completed. Hooks are called in the order they were registered.
//
// Example:
//
//	kiln.ShutdownHook(redis.Shutdown(client))
func ShutdownHook(fn func(context.Context) error) RunOption {
	return func(c *runConfig) {
		if fn != nil {
			c.shutdownHooks = append(c.shutdownHooks, fn)
		}
	}
}

// WithContext sets a base context whose cancellation begins shutdown.
// Useful for testing or when integrating with existing context hierarchies.
// Defaults to context.Background().
func WithContext(ctx context.Context) RunOption {
	return func(c *runConfig) {
		if ctx != nil {
			c.baseCtx = ctx
		}
	}
}
