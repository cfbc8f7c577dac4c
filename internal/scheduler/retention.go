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
	"github.com/meetfield/meetfield/internal/store"
)

// RetentionStore is the slice of the store the retention job needs.
type RetentionStore interface {
	PurgeAgedNotifications(ctx context.Context, now time.Time, standardMaxAge, urgentMaxAge, failedMaxAge time.Duration) (store.RetentionResult, error)
}

// RetentionConfig holds the age limits for the purge.
type RetentionConfig struct {
	Interval       time.Duration
	StandardMaxAge time.Duration
	UrgentMaxAge   time.Duration
	FailedMaxAge   time.Duration
}

// RetentionJob purges aged notification rows and the receipts orphaned
// by those deletes. Pure batch deletion; its only other output is the
// count log line.
type RetentionJob struct {
	store  RetentionStore
	config RetentionConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewRetentionJob builds the job.
func NewRetentionJob(store RetentionStore, cfg RetentionConfig, logger zerolog.Logger) *RetentionJob {
	return &RetentionJob{
		store:  store,
		config: cfg,
		logger: logger.With().Str("component", "retention").Logger(),
		now:    time.Now,
	}
}

func (j *RetentionJob) Name() string            { return "retention" }
func (j *RetentionJob) Interval() time.Duration { return j.config.Interval }

func (j *RetentionJob) RunOnce(ctx context.Context) error {
	result, err := j.store.PurgeAgedNotifications(ctx, j.now().UTC(),
		j.config.StandardMaxAge, j.config.UrgentMaxAge, j.config.FailedMaxAge)
	if err != nil {
		return fmt.Errorf("retention purge: %w", err)
	}

	metrics.RetentionDeleted.WithLabelValues("standard").Add(float64(result.StandardDeleted))
	metrics.RetentionDeleted.WithLabelValues("urgent").Add(float64(result.UrgentDeleted))
	metrics.RetentionDeleted.WithLabelValues("failed").Add(float64(result.FailedDeleted))
	metrics.RetentionDeleted.WithLabelValues("orphan_receipts").Add(float64(result.OrphanReceipts))

	j.logger.Info().
		Int64("standard", result.StandardDeleted).
		Int64("urgent", result.UrgentDeleted).
		Int64("failed", result.FailedDeleted).
		Int64("orphan_receipts", result.OrphanReceipts).
		Msg("Retention sweep completed")
	return nil
}
