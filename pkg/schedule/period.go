package schedule

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Period computes recurring fire times.
// Next returns the first firing strictly after t, or the zero time when
// there is none.
//
// robfig/cron's cron.Schedule satisfies Period.
type Period interface {
	Next(t time.Time) time.Time
}

// PeriodFunc adapts a function to the Period interface.
type PeriodFunc func(time.Time) time.Time

// Next calls f(t).
func (f PeriodFunc) Next(t time.Time) time.Time {
	return f(t)
}

// Standard parser plus an optional leading seconds field, so both
// "*/5 * * * *" and "*/10 * * * * *" are accepted, as well as descriptors
// such as "@hourly" and "@every 90s".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Cron parses a cron expression.
//
// Example:
//
//	p, err := schedule.Cron("0 */6 * * *") // every six hours
func Cron(expr string) (Period, error) {
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, errors.Join(ErrInvalidPeriod, err)
	}
	return s, nil
}

// MustCron is like Cron but panics on an invalid expression.
// Use it for expressions known at compile time.
func MustCron(expr string) Period {
	p, err := Cron(expr)
	if err != nil {
		panic(err)
	}
	return p
}

type every time.Duration

func (e every) Next(t time.Time) time.Time {
	if e <= 0 {
		return time.Time{}
	}
	return t.Add(time.Duration(e))
}

// Every fires d after the previous computation. Unlike the cron "@every"
// descriptor it accepts sub-second durations. A non-positive d never fires
// and is rejected by ValidatePeriod.
func Every(d time.Duration) Period {
	return every(d)
}

// ValidatePeriod rejects periods that can never fire by construction,
// such as Every with a non-positive duration, also when wrapped by Limit.
func ValidatePeriod(p Period) error {
	switch v := p.(type) {
	case nil:
		return ErrNilPeriod
	case every:
		if v <= 0 {
			return fmt.Errorf("%w: every %s", ErrInvalidPeriod, time.Duration(v))
		}
	case *limited:
		return ValidatePeriod(v.period)
	}
	return nil
}

type at time.Time

func (a at) Next(t time.Time) time.Time {
	if when := time.Time(a); t.Before(when) {
		return when
	}
	return time.Time{}
}

// At fires once at the given moment. A moment in the past never fires.
func At(when time.Time) Period {
	return at(when)
}

type limited struct {
	period Period
	limit  int64
	fired  atomic.Int64
}

func (l *limited) Next(t time.Time) time.Time {
	if l.fired.Add(1) > l.limit {
		return time.Time{}
	}
	return l.period.Next(t)
}

// Limit stops p after n firings. The count is kept in the returned value,
// so it must not be shared between loops.
func Limit(p Period, n int) Period {
	return &limited{period: p, limit: int64(n)}
}
