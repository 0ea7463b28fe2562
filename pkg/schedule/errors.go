package schedule

import (
	"errors"

	"github.com/dmitrymomot/kiln/pkg/shutdown"
)

var (
	// ErrShuttingDown is returned when work is submitted after shutdown began.
	// It is the same value as shutdown.ErrShuttingDown.
	ErrShuttingDown = shutdown.ErrShuttingDown

	// ErrNilWork is returned when RunOnce or Schedule gets a nil work function.
	ErrNilWork = errors.New("schedule: work is nil")

	// ErrNilPeriod is returned when Schedule gets a nil period.
	ErrNilPeriod = errors.New("schedule: period is nil")

	// ErrInvalidPeriod is returned for an unparsable cron expression or a
	// period that can never fire.
	ErrInvalidPeriod = errors.New("schedule: invalid period")

	// ErrEmptyName is returned when a task is submitted without a name.
	ErrEmptyName = errors.New("schedule: task name is empty")

	// ErrTaskPanic wraps the value of a panic raised by work.
	ErrTaskPanic = errors.New("schedule: task panicked")
)
