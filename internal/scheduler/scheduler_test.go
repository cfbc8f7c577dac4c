// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/meetfield/meetfield/internal/models"
	"github.com/meetfield/meetfield/internal/notify"
)

type transitionCall struct {
	from, to  models.MeetupStatus
	predicate string
}

type mockLifecycleStore struct {
	calls   []transitionCall
	failOn  int // 1-based call index to fail on, 0 = never
	returns map[int][]*models.MeetupPost
}

func (m *mockLifecycleStore) TransitionMeetups(_ context.Context, from, to models.MeetupStatus, predicate string, _ ...any) ([]*models.MeetupPost, error) {
	m.calls = append(m.calls, transitionCall{from, to, predicate})
	if m.failOn == len(m.calls) {
		return nil, errors.New("database unavailable")
	}
	return m.returns[len(m.calls)], nil
}

func TestLifecycleTickOrder(t *testing.T) {
	store := &mockLifecycleStore{}
	job := NewLifecycleJob(store, 30*time.Minute, 6*time.Hour, zerolog.Nop())

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []transitionCall{
		{models.MeetupStatusFull, models.MeetupStatusInProgress, "start_time <= ?"},
		{models.MeetupStatusInProgress, models.MeetupStatusCompleted, "start_time <= ?"},
		{models.MeetupStatusOpen, models.MeetupStatusExpired, "start_time <= ?"},
	}
	if len(store.calls) != len(want) {
		t.Fatalf("got %d transitions, want %d", len(store.calls), len(want))
	}
	for i, w := range want {
		if store.calls[i] != w {
			t.Errorf("step %d = %+v, want %+v", i+1, store.calls[i], w)
		}
	}
}

func TestLifecycleTickAbortsOnStepFailure(t *testing.T) {
	store := &mockLifecycleStore{failOn: 2}
	job := NewLifecycleJob(store, 30*time.Minute, 6*time.Hour, zerolog.Nop())

	if err := job.RunOnce(context.Background()); err == nil {
		t.Fatal("expected tick error")
	}
	if len(store.calls) != 2 {
		t.Errorf("steps executed after failure: got %d calls, want 2", len(store.calls))
	}
}

type mockReminderStore struct {
	beforeStart map[int][]*models.MeetupPost // offset -> due posts
	startingNow []*models.MeetupPost
	logged      map[string]bool // postID/kind/offset
	mu          sync.Mutex
}

func newMockReminderStore() *mockReminderStore {
	return &mockReminderStore{
		beforeStart: make(map[int][]*models.MeetupPost),
		logged:      make(map[string]bool),
	}
}

func (m *mockReminderStore) SelectDueBeforeStart(_ context.Context, _ time.Time, offset int) ([]*models.MeetupPost, error) {
	return m.beforeStart[offset], nil
}

func (m *mockReminderStore) SelectDueStartingNow(_ context.Context, _ time.Time, _ time.Duration) ([]*models.MeetupPost, error) {
	return m.startingNow, nil
}

func (m *mockReminderStore) TryLogReminder(_ context.Context, postID, kind string, offset int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s/%s/%d", postID, kind, offset)
	if m.logged[key] {
		return false, nil
	}
	m.logged[key] = true
	return true, nil
}

type mockNotifier struct {
	mu    sync.Mutex
	specs []notify.Spec
}

func (m *mockNotifier) CreateAndSend(_ context.Context, spec notify.Spec) (*notify.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.specs = append(m.specs, spec)
	return &notify.Report{}, nil
}

func TestReminderTickSendsOncePerWindow(t *testing.T) {
	post := &models.MeetupPost{
		ID:       "p1",
		Title:    "Chess night",
		AuthorID: "author-1",
		TopicID:  "chess",
		Capacity: 4, CurrentParticipantCount: 4,
	}
	store := newMockReminderStore()
	store.beforeStart[30] = []*models.MeetupPost{post}

	notifier := &mockNotifier{}
	job := NewReminderJob(store, notifier, 5*time.Minute, zerolog.Nop())

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	// One claim fans out to participants and to the author.
	if len(notifier.specs) != 2 {
		t.Fatalf("dispatched %d notifications, want 2", len(notifier.specs))
	}
	categories := map[models.NotificationCategory]bool{}
	for _, spec := range notifier.specs {
		categories[spec.Category] = true
		if spec.SubEvent != models.SubEventBeforeStart {
			t.Errorf("sub-event = %s, want before_start", spec.SubEvent)
		}
		if spec.Event.MinutesBefore != 30 {
			t.Errorf("event offset = %d, want 30", spec.Event.MinutesBefore)
		}
		if !spec.Event.MeetupFull {
			t.Error("full meetup not flagged in event context")
		}
	}
	if !categories[models.CategoryParticipating] || !categories[models.CategoryOwnMeetup] {
		t.Errorf("categories = %v, want participating and own-meetup", categories)
	}

	// The post is still inside the window next tick; the reminder log
	// must keep it from firing again.
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(notifier.specs) != 2 {
		t.Errorf("second tick re-sent: %d dispatches total, want 2", len(notifier.specs))
	}
}

func TestReminderTickStartingNow(t *testing.T) {
	post := &models.MeetupPost{ID: "p1", Title: "Go meetup", AuthorID: "a1", TopicID: "go"}
	store := newMockReminderStore()
	store.startingNow = []*models.MeetupPost{post}

	notifier := &mockNotifier{}
	job := NewReminderJob(store, notifier, 5*time.Minute, zerolog.Nop())

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(notifier.specs) != 2 {
		t.Fatalf("dispatched %d notifications, want 2", len(notifier.specs))
	}
	for _, spec := range notifier.specs {
		if spec.SubEvent != models.SubEventStartingNow {
			t.Errorf("sub-event = %s, want starting_now", spec.SubEvent)
		}
		if spec.Priority != models.PriorityUrgent {
			t.Errorf("priority = %s, want URGENT", spec.Priority)
		}
	}
}

// blockingJob parks in RunOnce until released.
type blockingJob struct {
	started chan struct{}
	release chan struct{}
	runs    int
	mu      sync.Mutex
}

func (j *blockingJob) Name() string            { return "blocking" }
func (j *blockingJob) Interval() time.Duration { return time.Hour }
func (j *blockingJob) RunOnce(ctx context.Context) error {
	j.mu.Lock()
	j.runs++
	j.mu.Unlock()
	j.started <- struct{}{}
	<-j.release
	return nil
}

func TestRunnerSkipsOverlappingTick(t *testing.T) {
	job := &blockingJob{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	runner := NewRunner(job, zerolog.Nop())

	go runner.tick(context.Background())
	<-job.started

	// Second tick while the first is in flight must skip, not queue.
	done := make(chan struct{})
	go func() {
		runner.tick(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("overlapping tick blocked instead of skipping")
	}

	close(job.release)

	job.mu.Lock()
	defer job.mu.Unlock()
	if job.runs != 1 {
		t.Errorf("job ran %d times, want 1", job.runs)
	}
}

type noopJob struct{ name string }

func (j *noopJob) Name() string                    { return j.name }
func (j *noopJob) Interval() time.Duration         { return time.Hour }
func (j *noopJob) RunOnce(_ context.Context) error { return nil }

func TestRegistryIdempotentStart(t *testing.T) {
	supervisor := suture.NewSimple("test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	supervisor.ServeBackground(ctx)

	registry := NewRegistry(supervisor, zerolog.Nop())
	registry.Register(&noopJob{name: "lifecycle"})

	if err := registry.Start("lifecycle"); err != nil {
		t.Fatal(err)
	}
	if err := registry.Start("lifecycle"); err != nil {
		t.Fatalf("second Start must be a no-op, got: %v", err)
	}
	if !registry.Running("lifecycle") {
		t.Error("job not running after Start")
	}

	if err := registry.Start("unknown"); err == nil {
		t.Error("starting an unregistered job must fail")
	}

	if err := registry.Stop("lifecycle"); err != nil {
		t.Fatal(err)
	}
	if registry.Running("lifecycle") {
		t.Error("job still running after Stop")
	}
}
