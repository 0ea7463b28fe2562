package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// ListenSignals calls Initiate for every received termination signal until
// ctx is cancelled or the termination sequence completes.
// Defaults to SIGINT and SIGTERM when no signals are given.
//
// Example:
//
//	go coord.ListenSignals(ctx)
func (c *Coordinator) ListenSignals(ctx context.Context, sigs ...os.Signal) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case sig := <-ch:
			c.logger.Warn("received termination signal", slog.String("signal", sig.String()))
			// Initiate blocks for the whole sequence; run it aside so that
			// repeated signals keep being drained from the channel.
			go c.Initiate()
		}
	}
}
