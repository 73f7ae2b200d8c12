// Package scheduler runs a job at a fixed cadence for as long as a run lasts.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval time.Duration
	// FinalTick runs the job once more when the context is cancelled.
	FinalTick bool
}

// Scheduler drives periodic execution of a job.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Interval <= 0 {
		return nil, errors.New("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}, nil
}

// Run blocks, invoking tick at each interval until ctx is cancelled. Tick
// errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	next := time.Now().UTC().Add(s.opts.Interval)
	for {
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			if s.opts.FinalTick {
				s.invoke(context.WithoutCancel(ctx), tick, time.Now().UTC())
			}
			return ctx.Err()
		case <-timer.C:
		}

		s.invoke(ctx, tick, next)

		next = next.Add(s.opts.Interval)
		if now := time.Now().UTC(); next.Before(now) {
			next = now.Add(s.opts.Interval)
		}
	}
}

func (s *Scheduler) invoke(ctx context.Context, tick TickFunc, at time.Time) {
	if err := tick(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
	}
}
