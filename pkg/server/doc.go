// Package server binds HTTP listeners and drains them under a
// shutdown.Coordinator.
//
// Every listener registers a drain handle with the coordinator before it
// binds. It serves until the handle is drained, then stops accepting new
// connections and gives in-flight requests the handle's grace period before
// the remaining connections are closed.
//
// Four listener kinds are supported:
//
//   - Plain: HTTP
//   - TLS: HTTPS with a certificate and key loaded from files
//   - ACME: HTTPS with certificates issued automatically (Let's Encrypt by default)
//   - Redirect: HTTP that permanently redirects every request to HTTPS
//
// # Usage
//
//	coord := shutdown.New()
//	srv := server.New(router, coord,
//	    server.WithLogger(log),
//	    server.WithListeners(
//	        server.ACME(":443", server.ACMEConfig{Domains: []string{"example.com"}, CacheDir: "data/certs"}),
//	        server.Redirect(":80", 443),
//	    ),
//	)
//	go coord.ListenSignals(ctx)
//	if err := srv.Run(ctx); err != nil {
//	    log.Error("server failed", "error", err)
//	}
//
// Bind and configuration errors are returned by Run before anything is
// served. Certificate issuance failures on ACME listeners are logged and
// retried on the next handshake; they never stop the listener.
package server
