// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/metrics"
	"github.com/meetfield/meetfield/internal/models"
)

// LifecycleStore is the slice of the store the lifecycle job needs.
type LifecycleStore interface {
	TransitionMeetups(ctx context.Context, from, to models.MeetupStatus, predicate string, args ...any) ([]*models.MeetupPost, error)
}

// LifecycleJob advances meetup state purely from elapsed time. Each
// tick runs three bulk transitions in fixed order:
//
//  1. FULL posts whose start time has arrived become IN_PROGRESS.
//  2. IN_PROGRESS posts past the completion cutoff become COMPLETED.
//  3. OPEN posts past the completion cutoff become EXPIRED.
//
// An OPEN post whose start time has passed without reaching capacity
// stays OPEN until the expiry cutover; only FULL posts begin. Ticks are
// idempotent: already-transitioned rows never match a predicate again.
type LifecycleJob struct {
	store    LifecycleStore
	interval time.Duration
	cutoff   time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewLifecycleJob builds the job. cutoff is the age past start time at
// which posts complete or expire.
func NewLifecycleJob(store LifecycleStore, interval, cutoff time.Duration, logger zerolog.Logger) *LifecycleJob {
	return &LifecycleJob{
		store:    store,
		interval: interval,
		cutoff:   cutoff,
		logger:   logger.With().Str("component", "lifecycle").Logger(),
		now:      time.Now,
	}
}

// SetClock overrides the job's clock.
func (j *LifecycleJob) SetClock(now func() time.Time) {
	j.now = now
}

func (j *LifecycleJob) Name() string            { return "lifecycle" }
func (j *LifecycleJob) Interval() time.Duration { return j.interval }

// RunOnce applies the three transitions. A failed step aborts the tick;
// the next tick retries naturally because the predicates still match.
func (j *LifecycleJob) RunOnce(ctx context.Context) error {
	now := j.now().UTC()

	steps := []struct {
		from, to  models.MeetupStatus
		predicate string
		args      []any
	}{
		{models.MeetupStatusFull, models.MeetupStatusInProgress,
			"start_time <= ?", []any{now}},
		{models.MeetupStatusInProgress, models.MeetupStatusCompleted,
			"start_time <= ?", []any{now.Add(-j.cutoff)}},
		{models.MeetupStatusOpen, models.MeetupStatusExpired,
			"start_time <= ?", []any{now.Add(-j.cutoff)}},
	}

	for _, step := range steps {
		posts, err := j.store.TransitionMeetups(ctx, step.from, step.to, step.predicate, step.args...)
		if err != nil {
			return fmt.Errorf("transition %s -> %s: %w", step.from, step.to, err)
		}
		if len(posts) > 0 {
			metrics.RecordTransition(string(step.from), string(step.to), len(posts))
			j.logger.Info().
				Str("from", string(step.from)).
				Str("to", string(step.to)).
				Int("count", len(posts)).
				Msg("Lifecycle transition applied")
		}
	}
	return nil
}
