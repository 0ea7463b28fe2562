package middlewares_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/dmitrymomot/kiln/internal"
)

type routes func(r internal.Router)

func (fn routes) Routes(r internal.Router) { fn(r) }

func newApp(mw internal.Middleware, h internal.HandlerFunc, opts ...internal.Option) *internal.App {
	opts = append(opts,
		internal.WithMiddleware(mw),
		internal.WithHandlers(routes(func(r internal.Router) {
			r.GET("/*", h)
		})),
	)
	return internal.New(opts...)
}

func do(app *internal.App, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)
	return rec
}

func stop(app *internal.App) {
	app.Stop()
	select {
	case <-app.Coordinator().Done():
	case <-time.After(2 * time.Second):
		panic("shutdown did not complete")
	}
}

// syncBuffer is a bytes.Buffer safe for use as a log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
