// Package health provides liveness and readiness probe handlers.
//
// [LivenessHandler] always answers OK while the process runs.
// [ReadinessHandler] runs a set of named [Checks] in parallel and answers
// 503 when any of them fails. With [WithDraining] it also answers 503 as
// soon as graceful shutdown begins, so load balancers stop routing new
// traffic to an instance whose listeners are about to drain.
//
// # Usage
//
//	r.Get("/health/live", health.LivenessHandler())
//	r.Get("/health/ready", health.ReadinessHandler(health.Checks{
//	    "postgres": db.Healthcheck(pool),
//	    "redis":    redis.Healthcheck(client),
//	    "store":    kv.Healthcheck(store),
//	}, health.WithDraining(coord.InProgress)))
//
// # Response Formats
//
// Plain text by default ("OK" / "Service Unavailable"). Send
// Accept: application/json or ?format=json for a JSON body:
//
//	{
//	  "status": "unhealthy",
//	  "checks": {
//	    "postgres": {"status": "healthy"},
//	    "redis": {"status": "unhealthy", "error": "connection refused"}
//	  }
//	}
//
// While draining the status is "draining" and no checks are run.
package health
