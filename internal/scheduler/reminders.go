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

	"github.com/meetfield/meetfield/internal/models"
	"github.com/meetfield/meetfield/internal/notify"
)

// ReminderStore is the slice of the store the reminder job needs.
type ReminderStore interface {
	SelectDueBeforeStart(ctx context.Context, now time.Time, offsetMinutes int) ([]*models.MeetupPost, error)
	SelectDueStartingNow(ctx context.Context, now time.Time, grace time.Duration) ([]*models.MeetupPost, error)
	TryLogReminder(ctx context.Context, postID, kind string, offsetMinutes int) (bool, error)
}

// Notifier dispatches one notification. Satisfied by notify.Dispatcher.
type Notifier interface {
	CreateAndSend(ctx context.Context, spec notify.Spec) (*notify.Report, error)
}

// ReminderJob runs the short-horizon tick: before-start reminders at
// each allowed offset, and starting-now notices once start time passes.
// Reminders are scheduled redundantly at every offset; the filter
// engine picks the one each user configured, and the reminder log makes
// each (post, kind, offset) fire at most once across overlapping runs.
type ReminderJob struct {
	store    ReminderStore
	notifier Notifier
	interval time.Duration
	grace    time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewReminderJob builds the job. grace bounds how far past start time a
// starting-now notice may still fire, so a long outage does not blast
// notices for long-started meetups on recovery.
func NewReminderJob(store ReminderStore, notifier Notifier, interval time.Duration, logger zerolog.Logger) *ReminderJob {
	grace := 3 * interval
	if grace < 10*time.Minute {
		grace = 10 * time.Minute
	}
	return &ReminderJob{
		store:    store,
		notifier: notifier,
		interval: interval,
		grace:    grace,
		logger:   logger.With().Str("component", "reminders").Logger(),
		now:      time.Now,
	}
}

// SetClock overrides the job's clock.
func (j *ReminderJob) SetClock(now func() time.Time) {
	j.now = now
}

func (j *ReminderJob) Name() string            { return "reminders" }
func (j *ReminderJob) Interval() time.Duration { return j.interval }

// RunOnce sweeps every reminder window. Failures on one post never stop
// the sweep; the first error is reported after the full pass.
func (j *ReminderJob) RunOnce(ctx context.Context) error {
	now := j.now().UTC()
	var firstErr error

	for _, offset := range models.AllowedReminderOffsets {
		posts, err := j.store.SelectDueBeforeStart(ctx, now, offset)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("selecting before-start window %dm: %w", offset, err)
			}
			continue
		}
		for _, post := range posts {
			if err := j.sendBeforeStart(ctx, post, offset); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	posts, err := j.store.SelectDueStartingNow(ctx, now, j.grace)
	if err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("selecting starting-now posts: %w", err)
		}
		return firstErr
	}
	for _, post := range posts {
		if err := j.sendStartingNow(ctx, post); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (j *ReminderJob) sendBeforeStart(ctx context.Context, post *models.MeetupPost, offset int) error {
	claimed, err := j.store.TryLogReminder(ctx, post.ID, "before_start", offset)
	if err != nil {
		return fmt.Errorf("claiming reminder for %s: %w", post.ID, err)
	}
	if !claimed {
		return nil
	}

	event := models.EventContext{
		PostID:        post.ID,
		TopicID:       post.TopicID,
		MinutesBefore: offset,
		MeetupFull:    post.IsFull(),
	}
	title := fmt.Sprintf("%s starts in %d minutes", post.Title, offset)

	// Participants and the author are separate categories with separate
	// preference matrices. The author goes through an explicit-id
	// audience so the filter engine still applies.
	j.dispatch(ctx, post, notify.Spec{
		Category: models.CategoryParticipating,
		SubEvent: models.SubEventBeforeStart,
		Title:    title,
		Body:     "Get ready, your meetup is coming up.",
		LinkURL:  "/meetups/" + post.ID,
		Priority: models.PriorityHigh,
		Audience: models.PostParticipants(post.ID),
		Event:    event,
	})
	j.dispatch(ctx, post, notify.Spec{
		Category: models.CategoryOwnMeetup,
		SubEvent: models.SubEventBeforeStart,
		Title:    title,
		Body:     "Your meetup is coming up.",
		LinkURL:  "/meetups/" + post.ID,
		Priority: models.PriorityHigh,
		Audience: models.ExplicitUsers(post.AuthorID),
		Event:    event,
	})
	return nil
}

func (j *ReminderJob) sendStartingNow(ctx context.Context, post *models.MeetupPost) error {
	claimed, err := j.store.TryLogReminder(ctx, post.ID, "starting_now", 0)
	if err != nil {
		return fmt.Errorf("claiming starting-now for %s: %w", post.ID, err)
	}
	if !claimed {
		return nil
	}

	event := models.EventContext{
		PostID:     post.ID,
		TopicID:    post.TopicID,
		MeetupFull: post.IsFull(),
	}
	title := post.Title + " is starting now"

	j.dispatch(ctx, post, notify.Spec{
		Category: models.CategoryParticipating,
		SubEvent: models.SubEventStartingNow,
		Title:    title,
		Body:     "Your meetup is starting.",
		LinkURL:  "/meetups/" + post.ID,
		Priority: models.PriorityUrgent,
		Audience: models.PostParticipants(post.ID),
		Event:    event,
	})
	j.dispatch(ctx, post, notify.Spec{
		Category: models.CategoryOwnMeetup,
		SubEvent: models.SubEventStartingNow,
		Title:    title,
		Body:     "Your meetup is starting.",
		LinkURL:  "/meetups/" + post.ID,
		Priority: models.PriorityUrgent,
		Audience: models.ExplicitUsers(post.AuthorID),
		Event:    event,
	})
	return nil
}

func (j *ReminderJob) dispatch(ctx context.Context, post *models.MeetupPost, spec notify.Spec) {
	if _, err := j.notifier.CreateAndSend(ctx, spec); err != nil {
		// The reminder is already claimed; a dispatch failure here is
		// lost rather than retried, matching best-effort delivery.
		j.logger.Error().Err(err).
			Str("post_id", post.ID).
			Str("category", string(spec.Category)).
			Str("sub_event", string(spec.SubEvent)).
			Msg("Reminder dispatch failed")
	}
}
