// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/store"
)

func newTestFeed(t *testing.T) (*Feed, *Publisher, context.CancelFunc) {
	t.Helper()
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{Persistent: true},
		watermill.NopLogger{},
	)
	feed := NewFeed(pubsub, zerolog.Nop())
	publisher := NewPublisher(pubsub, watermill.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	go feed.Run(ctx)

	t.Cleanup(func() {
		cancel()
		pubsub.Close()
	})
	return feed, publisher, cancel
}

func waitEvent(t *testing.T, sub *Subscription) ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
		return ChangeEvent{}
	}
}

func TestFeedDeliversMatchingEvents(t *testing.T) {
	feed, publisher, _ := newTestFeed(t)

	sub, err := feed.Subscribe(SubscriptionSpec{
		Table: "meetup_posts",
		Types: []EventType{EventInsert, EventUpdate},
	})
	if err != nil {
		t.Fatal(err)
	}

	hook := publisher.Hook()
	hook("meetup_posts", store.ChangeInsert, map[string]string{"id": "p1"})
	hook("meetup_posts", store.ChangeDelete, map[string]string{"id": "p1"}) // masked out
	hook("participants", store.ChangeInsert, map[string]string{"id": "c1"}) // wrong table
	hook("meetup_posts", store.ChangeUpdate, map[string]string{"id": "p2"})

	ev := waitEvent(t, sub)
	if ev.Type != EventInsert || ev.Table != "meetup_posts" {
		t.Errorf("first event = %s %s, want INSERT meetup_posts", ev.Type, ev.Table)
	}
	ev = waitEvent(t, sub)
	if ev.Type != EventUpdate {
		t.Errorf("second event = %s, want UPDATE (DELETE must be masked)", ev.Type)
	}

	var row map[string]string
	if err := ev.DecodeRow(&row); err != nil {
		t.Fatal(err)
	}
	if row["id"] != "p2" {
		t.Errorf("row id = %q, want p2", row["id"])
	}
}

func TestFeedFilterPredicate(t *testing.T) {
	feed, publisher, _ := newTestFeed(t)

	sub, err := feed.Subscribe(SubscriptionSpec{
		Table: "meetup_posts",
		Filter: func(ev ChangeEvent) bool {
			var row map[string]string
			if ev.DecodeRow(&row) != nil {
				return false
			}
			return row["topicId"] == "chess"
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	hook := publisher.Hook()
	hook("meetup_posts", store.ChangeInsert, map[string]string{"id": "p1", "topicId": "go"})
	hook("meetup_posts", store.ChangeInsert, map[string]string{"id": "p2", "topicId": "chess"})

	ev := waitEvent(t, sub)
	var row map[string]string
	if err := ev.DecodeRow(&row); err != nil {
		t.Fatal(err)
	}
	if row["id"] != "p2" {
		t.Errorf("filter let through %q, want only p2", row["id"])
	}
}

func TestFeedUnsubscribeClosesChannels(t *testing.T) {
	feed, _, _ := newTestFeed(t)

	sub, err := feed.Subscribe(SubscriptionSpec{Table: "meetup_posts"})
	if err != nil {
		t.Fatal(err)
	}
	feed.Unsubscribe(sub)

	if _, ok := <-sub.C; ok {
		t.Error("event channel still open after unsubscribe")
	}
	if _, ok := <-sub.Status; ok {
		t.Error("status channel still open after unsubscribe")
	}

	// Double unsubscribe must be a no-op.
	feed.Unsubscribe(sub)
}

func TestFeedReportsChannelError(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	feed := NewFeed(pubsub, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	sub, err := feed.Subscribe(SubscriptionSpec{Table: "meetup_posts"})
	if err != nil {
		t.Fatal(err)
	}

	// Give the consume loop time to attach, then kill the transport.
	time.Sleep(100 * time.Millisecond)
	pubsub.Close()

	select {
	case status := <-sub.Status:
		if status != ChannelError {
			t.Errorf("status = %s, want CHANNEL_ERROR", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no health signal after transport closed")
	}
	if feed.HealthStatus() != ChannelError {
		t.Errorf("HealthStatus() = %s, want CHANNEL_ERROR", feed.HealthStatus())
	}
}
