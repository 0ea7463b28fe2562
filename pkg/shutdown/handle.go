package shutdown

import (
	"sync"
	"sync/atomic"
	"time"
)

// Handle is the drain control of one bound listener.
// The listener serves until Draining is closed, then stops accepting new
// connections and gives in-flight requests Grace to finish.
type Handle struct {
	draining chan struct{}
	once     sync.Once
	grace    atomic.Int64
}

func newHandle() *Handle {
	return &Handle{draining: make(chan struct{})}
}

// Drain requests a graceful drain with the given grace period.
// Only the first request takes effect; it reports whether this call was it.
func (h *Handle) Drain(grace time.Duration) bool {
	requested := false
	h.once.Do(func() {
		h.grace.Store(int64(grace))
		close(h.draining)
		requested = true
	})
	return requested
}

// Draining returns a channel that is closed once a drain was requested.
func (h *Handle) Draining() <-chan struct{} {
	return h.draining
}

// Drained reports whether a drain was requested.
func (h *Handle) Drained() bool {
	select {
	case <-h.draining:
		return true
	default:
		return false
	}
}

// Grace returns the grace period of the drain request.
// It is zero until Drain has been called.
func (h *Handle) Grace() time.Duration {
	return time.Duration(h.grace.Load())
}
