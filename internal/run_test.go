package internal_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/kiln/internal"
	"github.com/dmitrymomot/kiln/pkg/schedule"
	"github.com/dmitrymomot/kiln/pkg/server"
	"github.com/dmitrymomot/kiln/pkg/shutdown"
)

// runApp starts app.Run in the background and returns the first bound
// address and a channel receiving Run's result.
func runApp(t *testing.T, app *internal.App, opts ...internal.RunOption) (string, <-chan error) {
	t.Helper()

	addrCh := make(chan string, 4)
	opts = append([]internal.RunOption{
		internal.Address("127.0.0.1:0"),
		internal.OnListening(func(_ server.Listener, addr net.Addr) {
			addrCh <- addr.String()
		}),
	}, opts...)

	result := make(chan error, 1)
	go func() {
		result <- app.Run(opts...)
	}()

	select {
	case addr := <-addrCh:
		return addr, result
	case err := <-result:
		t.Fatalf("Run returned before binding: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener was not bound")
	}
	return "", nil
}

func waitRun(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

// journal records the order of lifecycle events.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

func TestRun_ServesUntilContextCancelled(t *testing.T) {
	t.Parallel()

	var j journal
	app := internal.New(internal.WithHandlers(routes(func(r internal.Router) {
		r.GET("/", func(c internal.Context) error { return c.String(http.StatusOK, "hello") })
	})))

	ctx, cancel := context.WithCancel(context.Background())
	addr, result := runApp(t, app,
		internal.WithContext(ctx),
		internal.StartupHook(func(context.Context) error { j.add("startup"); return nil }),
		internal.Store(shutdown.FlusherFunc(func() error { j.add("flush-1"); return nil })),
		internal.Store(shutdown.FlusherFunc(func() error { j.add("flush-2"); return nil })),
		internal.ShutdownHook(func(context.Context) error { j.add("hook"); return nil }),
	)

	code, body := get(t, "http://"+addr+"/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "hello", body)

	cancel()
	require.NoError(t, waitRun(t, result))

	assert.Equal(t, []string{"startup", "flush-1", "flush-2", "hook"}, j.list())
	assert.True(t, app.ShuttingDown())

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err, "listener must be closed after Run returns")
}

func TestRun_StopFromHandler(t *testing.T) {
	t.Parallel()

	var app *internal.App
	app = internal.New(internal.WithHandlers(routes(func(r internal.Router) {
		r.POST("/stop", func(c internal.Context) error {
			app.Stop()
			return c.NoContent(http.StatusAccepted)
		})
	})))

	addr, result := runApp(t, app)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 2 * time.Second}
	resp, err := client.Post("http://"+addr+"/stop", "text/plain", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, waitRun(t, result))
}

func TestRun_TasksStartAfterBindAndStopOnShutdown(t *testing.T) {
	t.Parallel()

	var ticks atomic.Int32
	startup := make(chan struct{})
	app := internal.New(
		internal.WithPeriodicTask("tick", schedule.Every(10*time.Millisecond), func(context.Context) error {
			ticks.Add(1)
			return nil
		}),
		internal.WithStartupTask("warmup", func(context.Context) error {
			close(startup)
			return nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	_, result := runApp(t, app, internal.WithContext(ctx))

	select {
	case <-startup:
	case <-time.After(time.Second):
		t.Fatal("startup task did not run")
	}
	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"tick", "warmup"}, app.Scheduler().Tasks())

	cancel()
	require.NoError(t, waitRun(t, result))

	after := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "no tick may fire after shutdown")
	assert.False(t, app.Coordinator().TaskRunning())
}

func TestRun_FlushWaitsForRunningTasks(t *testing.T) {
	t.Parallel()

	var finished atomic.Bool
	var flushedAfterTask atomic.Bool
	started := make(chan struct{})

	app := internal.New(internal.WithStartupTask("export", func(context.Context) error {
		close(started)
		time.Sleep(150 * time.Millisecond)
		finished.Store(true)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	_, result := runApp(t, app,
		internal.WithContext(ctx),
		internal.Store(shutdown.FlusherFunc(func() error {
			flushedAfterTask.Store(finished.Load())
			return nil
		})),
	)

	<-started
	cancel()
	require.NoError(t, waitRun(t, result))
	assert.True(t, flushedAfterTask.Load())
}

func TestRun_StopDuringStartup(t *testing.T) {
	t.Parallel()

	t.Run("from startup hook", func(t *testing.T) {
		t.Parallel()

		var flushes atomic.Int32
		app := internal.New()
		result := make(chan error, 1)
		go func() {
			result <- app.Run(
				internal.Address("127.0.0.1:0"),
				internal.StartupHook(func(context.Context) error {
					app.Stop()
					time.Sleep(50 * time.Millisecond)
					return nil
				}),
				internal.Store(shutdown.FlusherFunc(func() error { flushes.Add(1); return nil })),
			)
		}()

		require.NoError(t, waitRun(t, result))
		assert.Equal(t, int32(1), flushes.Load())
	})

	t.Run("failing startup hook after stop", func(t *testing.T) {
		t.Parallel()

		hookErr := errors.New("not ready")
		var flushes atomic.Int32
		app := internal.New()
		err := app.Run(
			internal.Address("127.0.0.1:0"),
			internal.StartupHook(func(context.Context) error {
				app.Stop()
				return hookErr
			}),
			internal.Store(shutdown.FlusherFunc(func() error { flushes.Add(1); return nil })),
		)

		require.ErrorIs(t, err, hookErr)
		assert.Equal(t, int32(1), flushes.Load())
	})

	t.Run("before run", func(t *testing.T) {
		t.Parallel()

		var flushes atomic.Int32
		app := internal.New()
		app.Stop()
		<-app.Coordinator().Done()

		err := app.Run(
			internal.Address("127.0.0.1:0"),
			internal.Store(shutdown.FlusherFunc(func() error { flushes.Add(1); return nil })),
		)
		require.ErrorIs(t, err, shutdown.ErrShuttingDown)
		assert.Equal(t, int32(1), flushes.Load())
	})
}

func TestRun_BindFailure(t *testing.T) {
	t.Parallel()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	var flushed atomic.Bool
	var hooked atomic.Bool
	app := internal.New()
	err = app.Run(
		internal.Address(busy.Addr().String()),
		internal.Store(shutdown.FlusherFunc(func() error { flushed.Store(true); return nil })),
		internal.ShutdownHook(func(context.Context) error { hooked.Store(true); return nil }),
	)

	require.ErrorIs(t, err, server.ErrBind)
	assert.True(t, flushed.Load(), "stores are flushed even when a listener fails")
	assert.True(t, hooked.Load())
}

func TestRun_ConfigErrors(t *testing.T) {
	t.Parallel()

	t.Run("invalid listener", func(t *testing.T) {
		t.Parallel()

		var flushed atomic.Bool
		err := internal.New().Run(
			internal.TLS("127.0.0.1:0", "", ""),
			internal.Store(shutdown.FlusherFunc(func() error { flushed.Store(true); return nil })),
		)
		require.ErrorIs(t, err, server.ErrInvalidTLS)
		assert.False(t, flushed.Load())
	})

	t.Run("invalid cron", func(t *testing.T) {
		t.Parallel()

		err := internal.New(internal.WithScheduledTask(cronTask{schedule: "every tuesday"})).Run()
		require.ErrorIs(t, err, schedule.ErrInvalidPeriod)
	})

	t.Run("zero interval", func(t *testing.T) {
		t.Parallel()

		err := internal.New(
			internal.WithPeriodicTask("never", schedule.Every(0), func(context.Context) error { return nil }),
		).Run(internal.Address("127.0.0.1:0"))
		require.ErrorIs(t, err, schedule.ErrInvalidPeriod)
	})

	t.Run("invalid task", func(t *testing.T) {
		t.Parallel()

		err := internal.New(
			internal.WithStartupTask("", func(context.Context) error { return nil }),
			internal.WithPeriodicTask("nil-work", schedule.Every(time.Second), nil),
		).Run()
		require.ErrorIs(t, err, schedule.ErrEmptyName)
		require.ErrorIs(t, err, schedule.ErrNilWork)
	})

	t.Run("startup hook", func(t *testing.T) {
		t.Parallel()

		hookErr := errors.New("migrations pending")
		err := internal.New().Run(
			internal.Address("127.0.0.1:0"),
			internal.StartupHook(func(context.Context) error { return hookErr }),
		)
		require.ErrorIs(t, err, internal.ErrStartupHook)
		require.ErrorIs(t, err, hookErr)
	})
}

func TestRun_Twice(t *testing.T) {
	t.Parallel()

	app := internal.New()
	ctx, cancel := context.WithCancel(context.Background())
	_, result := runApp(t, app, internal.WithContext(ctx))

	assert.ErrorIs(t, app.Run(), internal.ErrAlreadyRunning)

	cancel()
	require.NoError(t, waitRun(t, result))
}

func TestRun_ShutdownHookErrors(t *testing.T) {
	t.Parallel()

	hookErr := errors.New("close failed")
	var second atomic.Bool
	app := internal.New()
	ctx, cancel := context.WithCancel(context.Background())
	_, result := runApp(t, app,
		internal.WithContext(ctx),
		internal.ShutdownTimeout(time.Second),
		internal.ShutdownHook(func(context.Context) error { return hookErr }),
		internal.ShutdownHook(func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			second.Store(ok)
			return nil
		}),
	)

	cancel()
	err := waitRun(t, result)
	require.ErrorIs(t, err, hookErr)
	assert.True(t, second.Load(), "later hooks still run and get a deadline")
}

type cronTask struct{ schedule string }

func (c cronTask) Name() string { return "cron" }

func (c cronTask) Schedule() string { return c.schedule }

func (c cronTask) Handle(context.Context) error { return nil }
