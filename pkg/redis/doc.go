// Package redis opens go-redis clients and adapts them to the kiln
// lifecycle: a readiness check, a shutdown flusher and a close hook.
//
// # Usage
//
//	client, err := redis.Open(ctx, "redis://localhost:6379/0",
//	    redis.WithPoolSize(20),
//	    redis.WithRetry(5, time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//
//	app := kiln.New(
//	    kiln.WithHealthChecks(kiln.WithReadinessCheck("redis", redis.Healthcheck(client))),
//	)
//	err = app.Run(
//	    kiln.Store(redis.Flusher(client, 0)),
//	    kiln.ShutdownHook(redis.Shutdown(client)),
//	)
//
// The flusher issues SAVE once every scheduled task has finished, so the
// dataset on disk includes everything those tasks wrote. The close hook
// runs after that.
//
// # Defaults
//
//	pool size 10, min idle 5, idle timeout 10m, lifetime 30m,
//	3 connection attempts with 5s linear backoff,
//	read/write timeout 3s, dial timeout 5s.
package redis
