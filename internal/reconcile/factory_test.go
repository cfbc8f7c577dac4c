// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/models"
	"github.com/meetfield/meetfield/internal/store"
)

func newTestStoreFetcher(t *testing.T) (*StoreFetcher, *store.Store) {
	t.Helper()
	st, err := store.New(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewStoreFetcher(st), st
}

func TestFactoryAppliesFeedTuning(t *testing.T) {
	feed, _ := newTestFeed(t)
	fetcher, _ := newTestStoreFetcher(t)
	factory := NewFactory(feed, fetcher, Config{
		ListDebounce:       42 * time.Millisecond,
		ListPollInterval:   7 * time.Second,
		DetailDebounce:     99 * time.Millisecond,
		DetailPollInterval: 11 * time.Second,
		AuxPollInterval:    13 * time.Second,
		ParentIndexSize:    64,
		ParentIndexTTL:     5 * time.Minute,
	}, zerolog.Nop())

	lv := factory.ListView(ListFilter{TopicID: "chess"})
	if lv.config.ChildDebounce != 42*time.Millisecond {
		t.Errorf("list ChildDebounce = %v, want 42ms", lv.config.ChildDebounce)
	}
	if lv.config.PollInterval != 7*time.Second {
		t.Errorf("list PollInterval = %v, want 7s", lv.config.PollInterval)
	}
	if lv.config.ParentIndexSize != 64 || lv.config.ParentIndexTTL != 5*time.Minute {
		t.Errorf("parent index bounds = %d/%v, want 64/5m",
			lv.config.ParentIndexSize, lv.config.ParentIndexTTL)
	}
	if lv.config.Filter.TopicID != "chess" {
		t.Errorf("list filter topic = %q, want chess", lv.config.Filter.TopicID)
	}

	dv := factory.DetailView("p1")
	if dv.config.PostID != "p1" {
		t.Errorf("detail PostID = %q, want p1", dv.config.PostID)
	}
	if dv.config.RefetchDebounce != 99*time.Millisecond {
		t.Errorf("detail RefetchDebounce = %v, want 99ms", dv.config.RefetchDebounce)
	}
	if dv.config.PollInterval != 11*time.Second {
		t.Errorf("detail PollInterval = %v, want 11s", dv.config.PollInterval)
	}
	if dv.config.MessagePollInterval != 13*time.Second {
		t.Errorf("detail MessagePollInterval = %v, want 13s", dv.config.MessagePollInterval)
	}
}

func TestStoreFetcherRoundTrip(t *testing.T) {
	fetcher, st := newTestStoreFetcher(t)
	ctx := context.Background()

	err := st.CreateMeetupPost(ctx, &models.MeetupPost{
		ID:        "p1",
		Status:    models.MeetupStatusOpen,
		Title:     "Chess night",
		StartTime: time.Now().Add(time.Hour),
		Capacity:  4,
		AuthorID:  "author-1",
		TopicID:   "chess",
	})
	if err != nil {
		t.Fatal(err)
	}

	posts, err := fetcher.FetchList(ctx, ListFilter{TopicID: "chess"})
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || posts[0].ID != "p1" {
		t.Fatalf("FetchList returned %d posts, want p1 only", len(posts))
	}

	if _, err := fetcher.FetchPost(ctx, "p1"); err != nil {
		t.Errorf("FetchPost(p1) error: %v", err)
	}
	if _, err := fetcher.FetchPost(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FetchPost(ghost) error = %v, want store.ErrNotFound", err)
	}

	if _, err := fetcher.FetchParticipants(ctx, "p1"); err != nil {
		t.Errorf("FetchParticipants error: %v", err)
	}
	if _, err := fetcher.FetchMessages(ctx, "p1"); err != nil {
		t.Errorf("FetchMessages error: %v", err)
	}
}
