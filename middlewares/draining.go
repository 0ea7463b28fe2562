package middlewares

import (
	"net/http"

	"github.com/dmitrymomot/kiln/internal"
)

// DrainingConfig configures the draining middleware.
type DrainingConfig struct {
	// RejectPaths are answered with 503 once shutdown has begun.
	RejectPaths map[string]bool
}

// DrainingOption configures DrainingConfig.
type DrainingOption func(*DrainingConfig)

// WithDrainingReject answers requests to the given paths with 503 during
// shutdown instead of serving them.
func WithDrainingReject(paths ...string) DrainingOption {
	return func(cfg *DrainingConfig) {
		for _, p := range paths {
			cfg.RejectPaths[p] = true
		}
	}
}

// Draining returns middleware that asks clients to drop keep-alive
// connections once shutdown has begun. A request that arrived before
// shutdown still gets Connection: close if shutdown starts before its
// header is sent.
func Draining(opts ...DrainingOption) internal.Middleware {
	cfg := &DrainingConfig{RejectPaths: make(map[string]bool)}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next internal.HandlerFunc) internal.HandlerFunc {
		return func(c internal.Context) error {
			if !c.ShuttingDown() {
				if rw, ok := c.Response().(*internal.ResponseWriter); ok {
					rw.OnBeforeWrite(func() {
						if c.ShuttingDown() {
							rw.Header().Set("Connection", "close")
						}
					})
				}
				return next(c)
			}

			c.SetHeader("Connection", "close")
			if cfg.RejectPaths[c.Request().URL.Path] {
				c.SetHeader("Retry-After", "1")
				return internal.ErrServiceUnavailable(http.StatusText(http.StatusServiceUnavailable))
			}
			return next(c)
		}
	}
}
