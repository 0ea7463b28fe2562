package server

import "errors"

var (
	// ErrNoListeners is returned by Run when no listener is configured.
	ErrNoListeners = errors.New("server: no listeners configured")

	// ErrInvalidAddress is returned when a listener address cannot be parsed.
	ErrInvalidAddress = errors.New("server: invalid listen address")

	// ErrInvalidTLS is returned when TLS material is missing or cannot be loaded.
	ErrInvalidTLS = errors.New("server: invalid tls configuration")

	// ErrInvalidACME is returned when an ACME listener has no domains.
	ErrInvalidACME = errors.New("server: invalid acme configuration")

	// ErrBind is returned when a listener socket cannot be bound.
	ErrBind = errors.New("server: failed to bind")

	// ErrServe wraps an error that stopped a listener while serving.
	ErrServe = errors.New("server: serve failed")
)
