package internal

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
)

// Router declares routes. Paths use chi patterns, so "/items/{id}" binds
// the id parameter read with Context.Param.
//
// Route middleware passed to a registration wraps only that handler and
// runs inside the middleware added with Use.
type Router interface {
	GET(path string, h HandlerFunc, mw ...Middleware)
	POST(path string, h HandlerFunc, mw ...Middleware)
	PUT(path string, h HandlerFunc, mw ...Middleware)
	PATCH(path string, h HandlerFunc, mw ...Middleware)
	DELETE(path string, h HandlerFunc, mw ...Middleware)
	HEAD(path string, h HandlerFunc, mw ...Middleware)
	OPTIONS(path string, h HandlerFunc, mw ...Middleware)

	// Method registers h for any method chi knows, e.g. TRACE. Custom
	// methods must first be added with chi.RegisterMethod.
	Method(method, path string, h HandlerFunc, mw ...Middleware)

	// Group opens an inline group sharing middleware but no prefix.
	Group(fn func(r Router))

	// Route opens a group mounted under pattern.
	Route(pattern string, fn func(r Router))

	// Use appends middleware to this router and its groups.
	Use(mw ...Middleware)

	// Mount attaches a plain http.Handler under pattern.
	Mount(pattern string, h http.Handler)
}

type routerAdapter struct {
	router chi.Router
	app    *App
}

func (r *routerAdapter) GET(path string, h HandlerFunc, mw ...Middleware) {
	r.Method(http.MethodGet, path, h, mw...)
}

func (r *routerAdapter) POST(path string, h HandlerFunc, mw ...Middleware) {
	r.Method(http.MethodPost, path, h, mw...)
}

func (r *routerAdapter) PUT(path string, h HandlerFunc, mw ...Middleware) {
	r.Method(http.MethodPut, path, h, mw...)
}

func (r *routerAdapter) PATCH(path string, h HandlerFunc, mw ...Middleware) {
	r.Method(http.MethodPatch, path, h, mw...)
}

func (r *routerAdapter) DELETE(path string, h HandlerFunc, mw ...Middleware) {
	r.Method(http.MethodDelete, path, h, mw...)
}

func (r *routerAdapter) HEAD(path string, h HandlerFunc, mw ...Middleware) {
	r.Method(http.MethodHead, path, h, mw...)
}

func (r *routerAdapter) OPTIONS(path string, h HandlerFunc, mw ...Middleware) {
	r.Method(http.MethodOptions, path, h, mw...)
}

func (r *routerAdapter) Method(method, path string, h HandlerFunc, mw ...Middleware) {
	for _, m := range slices.Backward(mw) {
		h = m(h)
	}
	r.router.Method(method, path, r.app.wrapHandler(h))
}

func (r *routerAdapter) sub(cr chi.Router) Router {
	return &routerAdapter{router: cr, app: r.app}
}

func (r *routerAdapter) Group(fn func(Router)) {
	r.router.Group(func(cr chi.Router) { fn(r.sub(cr)) })
}

func (r *routerAdapter) Route(pattern string, fn func(Router)) {
	r.router.Route(pattern, func(cr chi.Router) { fn(r.sub(cr)) })
}

func (r *routerAdapter) Use(mw ...Middleware) {
	for _, m := range mw {
		r.router.Use(r.app.adaptMiddleware(m))
	}
}

func (r *routerAdapter) Mount(pattern string, h http.Handler) {
	r.router.Mount(pattern, h)
}

// adaptMiddleware converts a Middleware to chi middleware.
// Values stored with Context.Set travel to the next handler through
// the request context.
func (a *App) adaptMiddleware(mw Middleware) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := mw(func(c Context) error {
				next.ServeHTTP(c.Response(), c.Request())
				return nil
			})
			c := newContext(w, r, a)
			if err := wrapped(c); err != nil {
				a.handleError(c, err)
			}
		})
	}
}
