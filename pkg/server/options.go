package server

import (
	"log/slog"
	"net"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. If not set, a noop logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithListeners adds bind targets. Listeners are bound in the given order.
func WithListeners(ls ...Listener) Option {
	return func(s *Server) {
		s.listeners = append(s.listeners, ls...)
	}
}

// WithOnBound registers a callback invoked after each listener is bound,
// before it starts serving. Use it to learn ports chosen by the OS or to
// release work that must wait for the server.
func WithOnBound(fn func(l Listener, addr net.Addr)) Option {
	return func(s *Server) {
		s.onBound = fn
	}
}
