// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package store

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreatePost(t *testing.T, s *Store, status models.MeetupStatus, startTime time.Time) *models.MeetupPost {
	t.Helper()
	p := &models.MeetupPost{
		Status:    models.MeetupStatusOpen,
		Title:     "test meetup",
		StartTime: startTime,
		Capacity:  4,
		AuthorID:  "author-1",
		TopicID:   "topic-1",
	}
	if err := s.CreateMeetupPost(context.Background(), p); err != nil {
		t.Fatalf("creating post: %v", err)
	}
	if status != models.MeetupStatusOpen {
		// Walk the post forward through the legal graph to reach the
		// desired starting state for the test.
		path := map[models.MeetupStatus][]models.MeetupStatus{
			models.MeetupStatusFull:       {models.MeetupStatusFull},
			models.MeetupStatusInProgress: {models.MeetupStatusFull, models.MeetupStatusInProgress},
			models.MeetupStatusCompleted:  {models.MeetupStatusFull, models.MeetupStatusInProgress, models.MeetupStatusCompleted},
			models.MeetupStatusExpired:    {models.MeetupStatusExpired},
		}[status]
		cur := models.MeetupStatusOpen
		for _, next := range path {
			if _, err := s.TransitionMeetups(context.Background(), cur, next, "id = ?", p.ID); err != nil {
				t.Fatalf("advancing post to %s: %v", next, err)
			}
			cur = next
		}
		p.Status = status
	}
	return p
}

func TestTransitionMeetups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	full := mustCreatePost(t, s, models.MeetupStatusFull, now.Add(-time.Minute))
	notDue := mustCreatePost(t, s, models.MeetupStatusFull, now.Add(time.Hour))
	open := mustCreatePost(t, s, models.MeetupStatusOpen, now.Add(-time.Minute))

	transitioned, err := s.TransitionMeetups(ctx,
		models.MeetupStatusFull, models.MeetupStatusInProgress,
		"start_time <= ?", now)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if len(transitioned) != 1 || transitioned[0].ID != full.ID {
		t.Fatalf("expected exactly the due FULL post to transition, got %d", len(transitioned))
	}

	// Second run of the same tick selects nothing.
	again, err := s.TransitionMeetups(ctx,
		models.MeetupStatusFull, models.MeetupStatusInProgress,
		"start_time <= ?", now)
	if err != nil {
		t.Fatalf("repeat transition failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("repeat tick transitioned %d posts, want 0", len(again))
	}

	got, _ := s.GetMeetupPost(ctx, notDue.ID)
	if got.Status != models.MeetupStatusFull {
		t.Errorf("future post status = %s, want FULL", got.Status)
	}
	got, _ = s.GetMeetupPost(ctx, open.ID)
	if got.Status != models.MeetupStatusOpen {
		t.Errorf("OPEN post was touched by FULL transition: %s", got.Status)
	}
}

func TestTransitionMeetupsRejectsIllegalEdge(t *testing.T) {
	s := newTestStore(t)
	_, err := s.TransitionMeetups(context.Background(),
		models.MeetupStatusCompleted, models.MeetupStatusOpen, "1 = 1")
	if err == nil {
		t.Fatal("expected error for transition out of a terminal state")
	}
}

func TestTerminalStatesStayTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	done := mustCreatePost(t, s, models.MeetupStatusCompleted, time.Now().Add(-8*time.Hour))

	// Every legal bulk transition with a catch-all predicate must leave
	// the terminal row untouched.
	edges := []struct{ from, to models.MeetupStatus }{
		{models.MeetupStatusOpen, models.MeetupStatusExpired},
		{models.MeetupStatusFull, models.MeetupStatusInProgress},
		{models.MeetupStatusInProgress, models.MeetupStatusCompleted},
	}
	for _, e := range edges {
		if _, err := s.TransitionMeetups(ctx, e.from, e.to, "1 = 1"); err != nil {
			t.Fatalf("transition %s->%s: %v", e.from, e.to, err)
		}
	}

	got, _ := s.GetMeetupPost(ctx, done.ID)
	if got.Status != models.MeetupStatusCompleted {
		t.Errorf("terminal post changed to %s", got.Status)
	}
}

func TestAddParticipantMarksFull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &models.MeetupPost{
		Title:     "small meetup",
		StartTime: time.Now().Add(time.Hour),
		Capacity:  2,
		AuthorID:  "author-1",
		TopicID:   "topic-1",
	}
	if err := s.CreateMeetupPost(ctx, p); err != nil {
		t.Fatal(err)
	}

	post, err := s.AddParticipant(ctx, &models.Participant{PostID: p.ID, UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if post.Status != models.MeetupStatusOpen {
		t.Errorf("status after 1/2 joins = %s, want OPEN", post.Status)
	}

	post, err = s.AddParticipant(ctx, &models.Participant{PostID: p.ID, UserID: "u2"})
	if err != nil {
		t.Fatal(err)
	}
	if post.Status != models.MeetupStatusFull {
		t.Errorf("status after 2/2 joins = %s, want FULL", post.Status)
	}
}

func TestReminderSelectionAndLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := mustCreatePost(t, s, models.MeetupStatusFull, now.Add(25*time.Minute))
	mustCreatePost(t, s, models.MeetupStatusOpen, now.Add(2*time.Hour)) // outside 30m window

	posts, err := s.SelectDueBeforeStart(ctx, now, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || posts[0].ID != due.ID {
		t.Fatalf("SelectDueBeforeStart(30m) returned %d posts, want the one at +25m", len(posts))
	}

	claimed, err := s.TryLogReminder(ctx, due.ID, "before_start", 30)
	if err != nil || !claimed {
		t.Fatalf("first reminder claim = (%v, %v), want (true, nil)", claimed, err)
	}
	claimed, err = s.TryLogReminder(ctx, due.ID, "before_start", 30)
	if err != nil || claimed {
		t.Fatalf("duplicate reminder claim = (%v, %v), want (false, nil)", claimed, err)
	}

	// A different offset is a distinct reminder.
	claimed, err = s.TryLogReminder(ctx, due.ID, "before_start", 10)
	if err != nil || !claimed {
		t.Fatalf("distinct offset claim = (%v, %v), want (true, nil)", claimed, err)
	}

	posts, err = s.SelectDueBeforeStart(ctx, now, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 0 {
		t.Errorf("logged reminder still selected: %d posts", len(posts))
	}
}

func TestSelectDueStartingNow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	started := mustCreatePost(t, s, models.MeetupStatusFull, now.Add(-2*time.Minute))
	mustCreatePost(t, s, models.MeetupStatusFull, now.Add(time.Hour))           // not started
	mustCreatePost(t, s, models.MeetupStatusCompleted, now.Add(-5*time.Minute)) // terminal

	posts, err := s.SelectDueStartingNow(ctx, now, 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || posts[0].ID != started.ID {
		t.Fatalf("SelectDueStartingNow returned %d posts, want 1", len(posts))
	}
}

func TestReceiptsSkipOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := &models.Notification{
		Category: models.CategoryNewPost,
		Title:    "hello",
		Body:     "body",
		Priority: models.PriorityNormal,
		Audience: models.ExplicitUsers("u1", "u2"),
		Status:   models.NotificationStatusSending,
	}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatal(err)
	}

	created, err := s.CreateReceipts(ctx, n.ID, []string{"u1", "u2"})
	if err != nil || created != 2 {
		t.Fatalf("first CreateReceipts = (%d, %v), want (2, nil)", created, err)
	}
	created, err = s.CreateReceipts(ctx, n.ID, []string{"u1", "u2", "u3"})
	if err != nil || created != 1 {
		t.Fatalf("overlapping CreateReceipts = (%d, %v), want (1, nil)", created, err)
	}

	unread, err := s.CountUnread(ctx, "u1")
	if err != nil || unread != 1 {
		t.Fatalf("CountUnread(u1) = (%d, %v), want (1, nil)", unread, err)
	}

	if err := s.MarkReceiptRead(ctx, n.ID, "u1"); err != nil {
		t.Fatal(err)
	}
	unread, _ = s.CountUnread(ctx, "u1")
	if unread != 0 {
		t.Errorf("unread after read = %d, want 0", unread)
	}
	if err := s.MarkReceiptRead(ctx, n.ID, "missing-user"); err != ErrNotFound {
		t.Errorf("read on missing receipt = %v, want ErrNotFound", err)
	}
}

func TestRetentionPolicy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	day := 24 * time.Hour

	mk := func(age time.Duration, priority models.NotificationPriority, status models.NotificationStatus) string {
		n := &models.Notification{
			Category:  models.CategoryNewPost,
			Title:     "t",
			Body:      "b",
			Priority:  priority,
			Audience:  models.AllUsers(),
			Status:    status,
			CreatedAt: now.Add(-age),
		}
		if err := s.CreateNotification(ctx, n); err != nil {
			t.Fatal(err)
		}
		return n.ID
	}

	agedNormal := mk(31*day, models.PriorityNormal, models.NotificationStatusSent)
	freshNormal := mk(5*day, models.PriorityNormal, models.NotificationStatusSent)
	agedUrgent := mk(31*day, models.PriorityUrgent, models.NotificationStatusSent)
	veryAgedUrgent := mk(61*day, models.PriorityUrgent, models.NotificationStatusSent)
	agedFailedUrgent := mk(31*day, models.PriorityUrgent, models.NotificationStatusFailed)

	if _, err := s.CreateReceipts(ctx, agedNormal, []string{"u1"}); err != nil {
		t.Fatal(err)
	}

	result, err := s.PurgeAgedNotifications(ctx, now, 30*day, 60*day, 30*day)
	if err != nil {
		t.Fatal(err)
	}
	if result.StandardDeleted != 1 {
		t.Errorf("StandardDeleted = %d, want 1", result.StandardDeleted)
	}
	if result.UrgentDeleted != 1 {
		t.Errorf("UrgentDeleted = %d, want 1", result.UrgentDeleted)
	}
	if result.FailedDeleted != 1 {
		t.Errorf("FailedDeleted = %d, want 1", result.FailedDeleted)
	}
	if result.OrphanReceipts != 1 {
		t.Errorf("OrphanReceipts = %d, want 1", result.OrphanReceipts)
	}

	if _, err := s.GetNotification(ctx, agedNormal); err != ErrNotFound {
		t.Errorf("aged normal notification survived the purge")
	}
	if _, err := s.GetNotification(ctx, freshNormal); err != nil {
		t.Errorf("fresh notification was purged: %v", err)
	}
	if _, err := s.GetNotification(ctx, agedUrgent); err != nil {
		t.Errorf("31-day urgent notification was purged: %v", err)
	}
	if _, err := s.GetNotification(ctx, veryAgedUrgent); err != ErrNotFound {
		t.Errorf("61-day urgent notification survived the purge")
	}
	if _, err := s.GetNotification(ctx, agedFailedUrgent); err != ErrNotFound {
		t.Errorf("aged FAILED notification survived the purge")
	}
}

func TestPushSubscriptionUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := &models.PushSubscription{
		UserID:            "u1",
		Endpoint:          "https://push.example.com/a",
		P256dhKey:         "p256",
		AuthKey:           "auth",
		DeviceFingerprint: "device-1",
		DeviceType:        models.DeviceTypeDesktop,
		Enabled:           true,
	}
	if err := s.UpsertPushSubscription(ctx, sub); err != nil {
		t.Fatal(err)
	}

	// Re-register same device with a rotated endpoint.
	renewed := *sub
	renewed.ID = ""
	renewed.Endpoint = "https://push.example.com/b"
	if err := s.UpsertPushSubscription(ctx, &renewed); err != nil {
		t.Fatal(err)
	}

	subs, err := s.ListEnabledSubscriptions(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 {
		t.Fatalf("re-registration duplicated subscription: %d rows", len(subs))
	}
	if subs[0].Endpoint != "https://push.example.com/b" {
		t.Errorf("endpoint not rotated: %s", subs[0].Endpoint)
	}

	if err := s.DeletePushSubscription(ctx, subs[0].ID); err != nil {
		t.Fatal(err)
	}
	subs, _ = s.ListEnabledSubscriptions(ctx, "u1")
	if len(subs) != 0 {
		t.Errorf("subscription survived deletion")
	}
}

func TestResolveAudience(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, u := range []struct{ id, role string }{
		{"u1", "member"}, {"u2", "member"}, {"u3", "organizer"},
	} {
		if err := s.EnsureUser(ctx, u.id, u.role); err != nil {
			t.Fatal(err)
		}
	}
	post := mustCreatePost(t, s, models.MeetupStatusOpen, time.Now().Add(time.Hour))
	if _, err := s.AddParticipant(ctx, &models.Participant{PostID: post.ID, UserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddParticipant(ctx, &models.Participant{PostID: post.ID, GuestName: "guest"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddWaitlistEntry(ctx, &models.WaitlistEntry{PostID: post.ID, UserID: "u2"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		audience models.Audience
		want     map[string]bool
	}{
		{"single", models.SingleRecipient("u9"), map[string]bool{"u9": true}},
		{"all users", models.AllUsers(), map[string]bool{"u1": true, "u2": true, "u3": true}},
		{"all except author", models.AllExceptAuthor("u1"), map[string]bool{"u2": true, "u3": true}},
		{"role", models.RoleBased("organizer"), map[string]bool{"u3": true}},
		{"participants skips guests", models.PostParticipants(post.ID), map[string]bool{"u1": true}},
		{"waitlist", models.PostWaitlist(post.ID), map[string]bool{"u2": true}},
		{"explicit", models.ExplicitUsers("a", "b"), map[string]bool{"a": true, "b": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := s.ResolveAudience(ctx, tt.audience)
			if err != nil {
				t.Fatal(err)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("resolved %v, want %v", ids, tt.want)
			}
			for _, id := range ids {
				if !tt.want[id] {
					t.Errorf("unexpected recipient %s", id)
				}
			}
		})
	}
}

func TestNotificationSettingsBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	setting := &models.NotificationSetting{
		UserID:      "u1",
		DNDEnabled:  true,
		DNDStart:    "23:00",
		DNDEnd:      "07:00",
		DNDDays:     []int{0, 6},
		NewPostMode: models.NewPostModeFavorites,
	}
	if err := s.SaveNotificationSetting(ctx, setting); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetNotificationSetting(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.DNDEnabled || got.DNDStart != "23:00" {
		t.Fatalf("round-tripped setting mismatch: %+v", got)
	}

	// Absent row is a valid state, not an error.
	got, err = s.GetNotificationSetting(ctx, "nobody")
	if err != nil || got != nil {
		t.Fatalf("absent setting = (%v, %v), want (nil, nil)", got, err)
	}

	batch, err := s.GetNotificationSettings(ctx, []string{"u1", "nobody"})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || batch["u1"] == nil {
		t.Fatalf("batch lookup = %v, want only u1", batch)
	}
}

func TestChangeHookEmission(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	type event struct {
		table string
		typ   ChangeType
	}
	var events []event
	s.SetChangeHook(func(table string, typ ChangeType, row any) {
		events = append(events, event{table, typ})
	})

	post := mustCreatePost(t, s, models.MeetupStatusOpen, time.Now().Add(time.Hour))
	part := &models.Participant{PostID: post.ID, UserID: "u1"}
	if _, err := s.AddParticipant(ctx, part); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveParticipant(ctx, part.ID); err != nil {
		t.Fatal(err)
	}

	want := []event{
		{"meetup_posts", ChangeInsert},
		{"participants", ChangeInsert},
		{"meetup_posts", ChangeUpdate},
		{"participants", ChangeDelete},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %v", len(events), len(want), events)
	}
	for i, w := range want {
		if events[i] != w {
			t.Errorf("event[%d] = %v, want %v", i, events[i], w)
		}
	}
}
