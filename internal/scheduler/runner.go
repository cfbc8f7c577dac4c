// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

// Package scheduler runs the time-driven jobs: lifecycle transitions,
// reminder dispatch, and notification retention. Jobs are independent
// periodic single-shot tasks executed under the process supervisor with
// a per-job single-flight guard, so an overlapping tick skips instead
// of double-running side effects.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/metrics"
)

// Job is one periodic task. RunOnce executes a single tick and must be
// safe to re-run: every tick's selection predicate excludes work already
// done.
type Job interface {
	Name() string
	Interval() time.Duration
	RunOnce(ctx context.Context) error
}

// Runner drives one Job on its cadence. It satisfies suture.Service.
type Runner struct {
	job    Job
	logger zerolog.Logger

	// inFlight guards against overlapping ticks. State correctness
	// survives overlap, notification side effects do not.
	inFlight sync.Mutex
}

// NewRunner wraps a job for supervised execution.
func NewRunner(job Job, logger zerolog.Logger) *Runner {
	return &Runner{
		job:    job,
		logger: logger.With().Str("job", job.Name()).Logger(),
	}
}

// Serve runs the job immediately and then on every interval tick until
// ctx is cancelled.
func (r *Runner) Serve(ctx context.Context) error {
	r.logger.Info().Dur("interval", r.job.Interval()).Msg("Job started")

	r.tick(ctx)

	ticker := time.NewTicker(r.job.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Job stopped")
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if !r.inFlight.TryLock() {
		metrics.SchedulerTicksSkipped.WithLabelValues(r.job.Name()).Inc()
		r.logger.Warn().Msg("Previous tick still running, skipping")
		return
	}
	defer r.inFlight.Unlock()

	start := time.Now()
	if err := r.job.RunOnce(ctx); err != nil {
		metrics.SchedulerTickErrors.WithLabelValues(r.job.Name()).Inc()
		r.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Tick failed")
		return
	}
	r.logger.Debug().Dur("elapsed", time.Since(start)).Msg("Tick completed")
}

// String names the runner for supervisor logs.
func (r *Runner) String() string {
	return "scheduler-" + r.job.Name()
}
