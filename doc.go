// Package kiln runs an HTTP application together with its background tasks
// and shuts both down without losing work.
//
// An App owns three things: a chi router, a shutdown coordinator, and a
// task scheduler. Run binds the listeners, releases the scheduled tasks,
// and blocks until the termination sequence has finished.
//
// # Quick Start
//
//	store, err := kv.Open("data/app.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	app := kiln.New(
//	    kiln.WithLogger("web"),
//	    kiln.WithHandlers(handlers.NewVisits(store)),
//	    kiln.WithPeriodicTask("prune", kiln.Every(time.Hour), pruner.Run),
//	    kiln.WithHealthChecks(
//	        kiln.WithReadinessCheck("store", kv.Healthcheck(store)),
//	    ),
//	)
//
//	if err := app.Run(kiln.Address(":8080"), kiln.Store(store)); err != nil {
//	    log.Fatal(err)
//	}
//
// # Shutdown
//
// SIGINT, SIGTERM, cancellation of the WithContext context, App.Stop, or a
// failing listener begins shutdown. From that moment:
//
//   - listeners stop accepting and in-flight requests get a one second grace
//   - scheduled tasks stop firing, including those sleeping until their next run
//   - running tasks finish, and new ones are refused with [ErrShuttingDown]
//   - stores registered with [Store] are flushed in order
//   - shutdown hooks run within [ShutdownTimeout]
//
// A store that fails to flush aborts the process. Repeated signals during
// shutdown are absorbed.
//
// # Listeners
//
// Plain, TLS, ACME, and redirect listeners can be combined:
//
//	app.Run(
//	    kiln.ACME(":443", kiln.ACMEConfig{
//	        Email:   "ops@example.com",
//	        Domains: []string{"example.com"},
//	    }),
//	    kiln.RedirectHTTP(":80", 443),
//	)
//
// # Handlers
//
// Handlers implement [Handler] to declare routes:
//
//	func (h *Visits) Routes(r kiln.Router) {
//	    r.GET("/visits/{path}", h.show)
//	}
//
//	func (h *Visits) show(c kiln.Context) error {
//	    v, err := kv.GetJSON[Visit](h.store, "visits", c.Param("path"))
//	    if errors.Is(err, kv.ErrNotFound) {
//	        return kiln.ErrNotFound("no visits yet")
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    return c.JSON(http.StatusOK, v)
//	}
package kiln
