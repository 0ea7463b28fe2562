// Package middlewares provides HTTP middleware for kiln applications.
//
// # Request ID
//
// RequestID tags each request with an ID taken from upstream headers or
// generated as a UUIDv7. Pair it with RequestIDExtractor to get request_id
// in every log record:
//
//	app := kiln.New(
//	    kiln.WithLogger("api", middlewares.RequestIDExtractor()),
//	    kiln.WithMiddleware(middlewares.RequestID()),
//	)
//
// # Recover
//
// Recover converts handler panics into a PanicError for the error handler:
//
//	kiln.WithErrorHandler(func(c kiln.Context, err error) error {
//	    if middlewares.IsPanicError(err) {
//	        return c.String(http.StatusInternalServerError, "Internal Server Error")
//	    }
//	    return c.String(http.StatusBadRequest, err.Error())
//	})
//
// # Draining
//
// Draining sets "Connection: close" on every response once shutdown has
// begun, and can refuse selected paths with 503:
//
//	kiln.WithMiddleware(middlewares.Draining(
//	    middlewares.WithDrainingReject("/exports"),
//	))
package middlewares
