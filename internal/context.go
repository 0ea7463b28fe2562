package internal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/kiln/pkg/schedule"
)

// Context provides request and response access plus the app services a
// handler needs. It embeds context.Context, so it can be passed to any
// function expecting a standard library context.
type Context interface {
	context.Context

	Request() *http.Request
	Response() http.ResponseWriter

	// Context returns the request context, including values added by Set.
	Context() context.Context

	// Param returns a chi URL parameter, or "" when absent.
	Param(name string) string

	// Query returns a query parameter, or "" when absent.
	Query(name string) string
	QueryDefault(name, defaultValue string) string

	// Header reads a request header; SetHeader writes a response header.
	Header(name string) string
	SetHeader(name, value string)

	JSON(code int, v any) error
	String(code int, s string) error
	NoContent(code int) error
	Redirect(code int, url string) error

	// Error builds an HTTPError for the handler to return.
	Error(code int, message string, opts ...HTTPErrorOption) *HTTPError

	// Written reports whether the status line has been sent.
	Written() bool

	// Logger returns the app logger. The Log helpers pass the request
	// context so registered extractors add their attributes.
	Logger() *slog.Logger
	LogDebug(msg string, attrs ...any)
	LogInfo(msg string, attrs ...any)
	LogWarn(msg string, attrs ...any)
	LogError(msg string, attrs ...any)

	// Set stores a value visible to later middleware and the handler.
	Set(key, value any)
	Get(key any) any

	// ShuttingDown reports whether the termination sequence has begun.
	ShuttingDown() bool

	// Go runs work in the background, detached from the request.
	// Shutdown waits for it before flushing stores.
	// Returns ErrShuttingDown once shutdown has begun.
	Go(name string, work schedule.Work) error
}

// requestContext is the per-request Context. Set replaces request, so
// middleware and handlers further down see stored values.
type requestContext struct {
	rw      *ResponseWriter
	request *http.Request
	app     *App
}

func newContext(w http.ResponseWriter, r *http.Request, app *App) *requestContext {
	return &requestContext{rw: NewResponseWriter(w), request: r, app: app}
}

func (c *requestContext) Request() *http.Request        { return c.request }
func (c *requestContext) Response() http.ResponseWriter { return c.rw }
func (c *requestContext) Context() context.Context      { return c.request.Context() }

func (c *requestContext) Deadline() (time.Time, bool) { return c.request.Context().Deadline() }
func (c *requestContext) Done() <-chan struct{}       { return c.request.Context().Done() }
func (c *requestContext) Err() error                  { return c.request.Context().Err() }
func (c *requestContext) Value(key any) any           { return c.request.Context().Value(key) }

func (c *requestContext) Param(name string) string {
	return chi.URLParam(c.request, name)
}

func (c *requestContext) Query(name string) string {
	return c.request.URL.Query().Get(name)
}

func (c *requestContext) QueryDefault(name, defaultValue string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	return defaultValue
}

func (c *requestContext) Header(name string) string {
	return c.request.Header.Get(name)
}

func (c *requestContext) SetHeader(name, value string) {
	c.rw.Header().Set(name, value)
}

func (c *requestContext) write(code int, contentType string, body []byte) error {
	if contentType != "" {
		c.rw.Header().Set("Content-Type", contentType)
	}
	c.rw.WriteHeader(code)
	if len(body) == 0 {
		return nil
	}
	_, err := c.rw.Write(body)
	return err
}

func (c *requestContext) JSON(code int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(code, "application/json; charset=utf-8", append(body, '\n'))
}

func (c *requestContext) String(code int, s string) error {
	return c.write(code, "text/plain; charset=utf-8", []byte(s))
}

func (c *requestContext) NoContent(code int) error {
	return c.write(code, "", nil)
}

func (c *requestContext) Redirect(code int, url string) error {
	http.Redirect(c.rw, c.request, url, code)
	return nil
}

func (c *requestContext) Error(code int, message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(code, message, opts...)
}

func (c *requestContext) Written() bool {
	return c.rw.Written()
}

func (c *requestContext) Logger() *slog.Logger {
	return c.app.logger
}

func (c *requestContext) log(level slog.Level, msg string, attrs ...any) {
	c.app.logger.Log(c.request.Context(), level, msg, attrs...)
}

func (c *requestContext) LogDebug(msg string, attrs ...any) { c.log(slog.LevelDebug, msg, attrs...) }
func (c *requestContext) LogInfo(msg string, attrs ...any)  { c.log(slog.LevelInfo, msg, attrs...) }
func (c *requestContext) LogWarn(msg string, attrs ...any)  { c.log(slog.LevelWarn, msg, attrs...) }
func (c *requestContext) LogError(msg string, attrs ...any) { c.log(slog.LevelError, msg, attrs...) }

func (c *requestContext) Set(key, value any) {
	c.request = c.request.WithContext(context.WithValue(c.request.Context(), key, value))
}

func (c *requestContext) Get(key any) any {
	return c.request.Context().Value(key)
}

func (c *requestContext) ShuttingDown() bool {
	return c.app.coord.InProgress()
}

func (c *requestContext) Go(name string, work schedule.Work) error {
	return c.app.scheduler.RunOnce(name, work)
}
