// Package schedule runs background work once or on a recurring period while
// cooperating with a shutdown.Coordinator.
//
// Every execution is counted on the coordinator's running-task counter, so
// the termination sequence waits for it before stores are flushed. Periodic
// loops re-check the shutdown flag before and after every sleep: once
// shutdown has started no new execution begins, and a sleeping loop wakes
// immediately instead of waiting for its next tick.
//
// # Usage
//
//	coord := shutdown.New()
//	sched := schedule.New(coord, schedule.WithLogger(log))
//
//	_ = sched.Schedule("cleanup", schedule.Every(time.Minute), func(ctx context.Context) error {
//	    return repo.DeleteExpired(ctx)
//	})
//	_ = sched.Schedule("report", schedule.MustCron("0 3 * * *"), sendReport)
//	_ = sched.RunOnce("warmup", warmCaches)
//
//	// later
//	coord.Initiate()
//	sched.Wait()
//
// # Periods
//
// A Period computes the next firing after a given time. Every, Cron, At and
// Limit cover the common cases; any robfig/cron Schedule is a Period too.
//
// # Failures
//
// Errors returned by work and panics raised inside it are caught, logged and
// recorded. They never leak the running-task counter.
//
// # Run records
//
// WithRecorder stores a Record per execution. StoreRecorder keeps them as JSON
// in a bucket store such as kv.Store; Summarize and StatsHandler aggregate
// them per task.
package schedule
