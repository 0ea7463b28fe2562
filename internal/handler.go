package internal

// Handler declares routes on a router.
//
// Example:
//
//	type PagesHandler struct {
//	    store *kv.Store
//	}
//
//	func (h *PagesHandler) Routes(r kiln.Router) {
//	    r.GET("/visits/{path}", h.visits)
//	    r.POST("/visits/{path}", h.record)
//	}
type Handler interface {
	Routes(r Router)
}

// HandlerFunc is the signature for route handlers.
// Returning a non-nil error hands it to the app's error handler.
type HandlerFunc func(c Context) error

// Middleware wraps a HandlerFunc to add cross-cutting concerns.
//
// Example:
//
//	func NoStore(next kiln.HandlerFunc) kiln.HandlerFunc {
//	    return func(c kiln.Context) error {
//	        c.SetHeader("Cache-Control", "no-store")
//	        return next(c)
//	    }
//	}
type Middleware func(next HandlerFunc) HandlerFunc

// ErrorHandler handles errors returned from handlers.
type ErrorHandler func(Context, error) error
