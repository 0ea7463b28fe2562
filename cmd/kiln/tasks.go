package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/kiln"
	"github.com/dmitrymomot/kiln/pkg/schedule"
)

// status reports the lifecycle state over HTTP and in the heartbeat log.
// app is set once kiln.New returns, before Run.
type status struct {
	app    *kiln.App
	logger *slog.Logger
}

type statusResponse struct {
	Version      string   `json:"version"`
	Tasks        []string `json:"tasks"`
	Running      int64    `json:"running"`
	ShuttingDown bool     `json:"shutting_down"`
}

func (s *status) Routes(r kiln.Router) {
	r.GET("/status", s.show)
}

func (s *status) snapshot() statusResponse {
	return statusResponse{
		Version:      version,
		Tasks:        s.app.Scheduler().Tasks(),
		Running:      s.app.Coordinator().Running(),
		ShuttingDown: s.app.ShuttingDown(),
	}
}

func (s *status) show(c kiln.Context) error {
	return c.JSON(http.StatusOK, s.snapshot())
}

func (s *status) heartbeat(ctx context.Context) error {
	snap := s.snapshot()
	s.logger.InfoContext(ctx, "heartbeat",
		slog.Int("tasks", len(snap.Tasks)),
		slog.Int64("running", snap.Running),
	)
	return nil
}

// pruneTask removes finished task records older than the retention.
type pruneTask struct {
	recorder  *schedule.StoreRecorder
	logger    *slog.Logger
	schedule  string
	retention time.Duration
}

func (p pruneTask) Name() string { return "prune-task-records" }

func (p pruneTask) Schedule() string { return p.schedule }

func (p pruneTask) Handle(ctx context.Context) error {
	n, err := p.recorder.Prune(ctx, time.Now().Add(-p.retention))
	if err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "task records pruned", slog.Int("removed", n))
	return nil
}
