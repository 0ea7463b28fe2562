package shutdown

import "errors"

var (
	// ErrShuttingDown is returned by components that refuse new work
	// because the coordinator has already started the termination sequence.
	ErrShuttingDown = errors.New("shutdown: in progress")

	// ErrFlushFailed wraps a flusher error. It is the panic value raised
	// by Initiate when the store cannot commit pending writes.
	ErrFlushFailed = errors.New("shutdown: flush failed")
)
