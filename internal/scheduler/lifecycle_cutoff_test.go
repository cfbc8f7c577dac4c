// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/models"
	"github.com/meetfield/meetfield/internal/store"
)

// The cutoff predicates run against the real store here: a post one
// minute short of the six-hour mark must survive the tick, a post
// exactly at the mark must not.
func TestLifecycleCutoffBoundary(t *testing.T) {
	st, err := store.New(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	now := time.Now().UTC()
	seed := func(id string, status models.MeetupStatus, start time.Time) {
		t.Helper()
		err := st.CreateMeetupPost(context.Background(), &models.MeetupPost{
			ID:        id,
			Status:    status,
			Title:     "Post " + id,
			StartTime: start,
			Capacity:  4,
			AuthorID:  "author-1",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	shortOfCutoff := now.Add(-(6*time.Hour - time.Minute)) // 5h59m elapsed
	atCutoff := now.Add(-6 * time.Hour)

	seed("in-early", models.MeetupStatusInProgress, shortOfCutoff)
	seed("in-due", models.MeetupStatusInProgress, atCutoff)
	seed("open-early", models.MeetupStatusOpen, shortOfCutoff)
	seed("open-due", models.MeetupStatusOpen, atCutoff)

	job := NewLifecycleJob(st, 30*time.Minute, 6*time.Hour, zerolog.Nop())
	job.SetClock(func() time.Time { return now })
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	wantStatus := map[string]models.MeetupStatus{
		"in-early":   models.MeetupStatusInProgress,
		"in-due":     models.MeetupStatusCompleted,
		"open-early": models.MeetupStatusOpen,
		"open-due":   models.MeetupStatusExpired,
	}
	for id, want := range wantStatus {
		post, err := st.GetMeetupPost(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if post.Status != want {
			t.Errorf("post %s status = %s, want %s", id, post.Status, want)
		}
	}

	// A repeated tick matches nothing new and changes nothing.
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	for id, want := range wantStatus {
		post, err := st.GetMeetupPost(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if post.Status != want {
			t.Errorf("post %s status after second tick = %s, want %s", id, post.Status, want)
		}
	}
}
