package health

import "errors"

var (
	// ErrCheckFailed is returned by Run when one or more checks fail.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout wraps a check error caused by the check timeout.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrDraining is returned by Run while the instance is shutting down.
	ErrDraining = errors.New("health: draining")
)
