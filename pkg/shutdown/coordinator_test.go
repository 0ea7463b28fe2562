package shutdown

import (
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingFlusher records flush calls and what the coordinator looked like
// at flush time.
type countingFlusher struct {
	coord         *Coordinator
	calls         atomic.Int32
	runningAtCall atomic.Int64
}

func (f *countingFlusher) Flush() error {
	f.calls.Add(1)
	if f.coord != nil {
		f.runningAtCall.Store(f.coord.Running())
	}
	return nil
}

func waitDone(t *testing.T, c *Coordinator) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
}

func TestRegisterHandle(t *testing.T) {
	t.Parallel()

	c := New()
	h1 := c.RegisterHandle()
	h2 := c.RegisterHandle()

	require.NotNil(t, h1)
	require.NotNil(t, h2)
	assert.NotSame(t, h1, h2)
	assert.Equal(t, 2, c.Handles())
	assert.False(t, h1.Drained())
	assert.False(t, h2.Drained())
	assert.Zero(t, h1.Grace())
	assert.False(t, c.InProgress())
}

func TestInitiate_DrainsHandlesAndFlushes(t *testing.T) {
	t.Parallel()

	f := &countingFlusher{}
	c := New(WithFlusher(f))
	handles := []*Handle{c.RegisterHandle(), c.RegisterHandle(), c.RegisterHandle()}

	c.Initiate()

	assert.True(t, c.InProgress())
	for i, h := range handles {
		assert.True(t, h.Drained(), "handle %d not drained", i)
		assert.Equal(t, DrainGracePeriod, h.Grace())
		assertDrainedOnce(t, h)
	}
	assert.Equal(t, int32(1), f.calls.Load())

	select {
	case <-c.Initiated():
	default:
		t.Fatal("initiated channel not closed")
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("done channel not closed after Initiate returned")
	}
}

func TestInitiate_Idempotent(t *testing.T) {
	t.Parallel()

	t.Run("sequential calls", func(t *testing.T) {
		t.Parallel()

		f := &countingFlusher{}
		c := New(WithFlusher(f))
		h := c.RegisterHandle()

		c.Initiate()
		c.Initiate()
		c.Initiate()

		assert.Equal(t, int32(1), f.calls.Load())
		assertDrainedOnce(t, h)
	})

	t.Run("concurrent calls", func(t *testing.T) {
		t.Parallel()

		f := &countingFlusher{}
		c := New(WithFlusher(f))
		handles := make([]*Handle, 10)
		for i := range handles {
			handles[i] = c.RegisterHandle()
		}

		const callers = 50
		var wg sync.WaitGroup
		start := make(chan struct{})
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				c.Initiate()
			}()
		}
		close(start)
		wg.Wait()
		waitDone(t, c)

		assert.Equal(t, int32(1), f.calls.Load())
		for _, h := range handles {
			assertDrainedOnce(t, h)
		}
	})

	t.Run("two calls within a millisecond", func(t *testing.T) {
		t.Parallel()

		c := New()
		h := c.RegisterHandle()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); c.Initiate() }()
		go func() {
			defer wg.Done()
			time.Sleep(500 * time.Microsecond)
			c.Initiate()
		}()
		wg.Wait()
		waitDone(t, c)

		assertDrainedOnce(t, h)
	})
}

func TestInitiate_WaitsForRunningTasks(t *testing.T) {
	t.Parallel()

	f := &countingFlusher{}
	c := New(WithFlusher(f))
	f.coord = c

	release, ok := c.Acquire()
	require.True(t, ok)
	require.True(t, c.TaskRunning())

	returned := make(chan struct{})
	go func() {
		c.Initiate()
		close(returned)
	}()

	<-c.Initiated()
	select {
	case <-returned:
		t.Fatal("Initiate returned while a task was running")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Zero(t, f.calls.Load(), "flush must wait for running tasks")

	release()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Initiate did not return after the task finished")
	}
	assert.False(t, c.TaskRunning())
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Zero(t, f.runningAtCall.Load())
}

func TestInitiate_DrainsBeforeWaiting(t *testing.T) {
	t.Parallel()

	c := New()
	h := c.RegisterHandle()
	release, ok := c.Acquire()
	require.True(t, ok)

	go c.Initiate()

	select {
	case <-h.Draining():
	case <-time.After(time.Second):
		t.Fatal("handle was not drained while a task was still running")
	}
	assert.True(t, c.TaskRunning())

	release()
	waitDone(t, c)
}

func TestAcquire(t *testing.T) {
	t.Parallel()

	t.Run("rejected after shutdown", func(t *testing.T) {
		t.Parallel()

		c := New()
		c.Initiate()

		release, ok := c.Acquire()
		assert.False(t, ok)
		assert.NotNil(t, release)
		assert.Zero(t, c.Running())
		release()
		assert.Zero(t, c.Running())
	})

	t.Run("release is idempotent", func(t *testing.T) {
		t.Parallel()

		c := New()
		release, ok := c.Acquire()
		require.True(t, ok)
		assert.Equal(t, int64(1), c.Running())

		release()
		release()
		assert.Zero(t, c.Running())
	})

	t.Run("counter conservation", func(t *testing.T) {
		t.Parallel()

		c := New()
		const jobs = 200
		var wg sync.WaitGroup
		var peak atomic.Int64
		for range jobs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, ok := c.Acquire()
				if !ok {
					return
				}
				defer release()
				if n := c.Running(); n > peak.Load() {
					peak.Store(n)
				}
				time.Sleep(time.Duration(rand.IntN(2000)) * time.Microsecond)
			}()
		}
		wg.Wait()

		assert.Zero(t, c.Running())
		assert.False(t, c.TaskRunning())
		assert.Positive(t, peak.Load())
	})

	t.Run("released by deferred call on panic", func(t *testing.T) {
		t.Parallel()

		c := New()
		func() {
			defer func() { _ = recover() }()
			release, ok := c.Acquire()
			require.True(t, ok)
			defer release()
			panic("boom")
		}()
		assert.Zero(t, c.Running())
	})
}

func TestRegisterHandle_AfterShutdown(t *testing.T) {
	t.Parallel()

	c := New()
	early := c.RegisterHandle()
	c.Initiate()

	late := c.RegisterHandle()
	assert.True(t, late.Drained())
	assert.Equal(t, DrainGracePeriod, late.Grace())
	assertDrainedOnce(t, late)
	assertDrainedOnce(t, early)
	assert.Equal(t, 2, c.Handles())
}

func TestInitiate_FlushFailurePanics(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("disk full")
	var second countingFlusher
	c := New(
		WithFlusher(FlusherFunc(func() error { return storeErr })),
		WithFlusher(&second),
	)

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		c.Initiate()
	}()

	require.NotNil(t, recovered)
	err, ok := recovered.(error)
	require.True(t, ok)
	assert.ErrorIs(t, err, ErrFlushFailed)
	assert.ErrorIs(t, err, storeErr)
	assert.Zero(t, second.calls.Load())
	assert.True(t, c.InProgress())
}

func TestWithMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := New(WithMetrics(reg))
	c.RegisterHandle()
	release, ok := c.Acquire()
	require.True(t, ok)
	defer release()

	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		values[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
	}
	assert.Equal(t, float64(0), values["kiln_shutdown_in_progress"])
	assert.Equal(t, float64(1), values["kiln_server_handles"])
	assert.Equal(t, float64(1), values["kiln_scheduled_tasks_running"])
}

func assertDrainedOnce(t *testing.T, h *Handle) {
	t.Helper()
	assert.True(t, h.Drained())
	assert.Equal(t, DrainGracePeriod, h.Grace())
	assert.False(t, h.Drain(time.Hour), "drain was already requested")
	assert.Equal(t, DrainGracePeriod, h.Grace())
}
