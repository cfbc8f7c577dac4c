// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/changefeed"
	"github.com/meetfield/meetfield/internal/models"
	"github.com/meetfield/meetfield/internal/reconcile"
	"github.com/meetfield/meetfield/internal/store"
)

// setupViewClient wires a store-backed view factory over an in-process
// feed and hands back a client with views attached.
func setupViewClient(t *testing.T) (*Client, *store.Store) {
	t.Helper()

	st, err := store.New(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	pubsub := gochannel.NewGoChannel(
		gochannel.Config{Persistent: true},
		watermill.NopLogger{},
	)
	t.Cleanup(func() { pubsub.Close() })
	st.SetChangeHook(changefeed.NewPublisher(pubsub, watermill.NopLogger{}).Hook())

	feed := changefeed.NewFeed(pubsub, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go feed.Run(ctx)

	hub, _ := setupHub(t)
	client := newTestClient(hub)
	client.AttachViews(reconcile.NewFactory(feed, reconcile.NewStoreFetcher(st), reconcile.Config{
		ListDebounce: 30 * time.Millisecond,
	}, zerolog.Nop()))
	t.Cleanup(client.cancelView)
	return client, st
}

func seedMeetup(t *testing.T, st *store.Store, id, topicID string) {
	t.Helper()
	err := st.CreateMeetupPost(context.Background(), &models.MeetupPost{
		ID:        id,
		Status:    models.MeetupStatusOpen,
		Title:     "Post " + id,
		StartTime: time.Now().Add(time.Hour),
		Capacity:  4,
		AuthorID:  "author-1",
		TopicID:   topicID,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func waitForFrame(t *testing.T, client *Client, want string, cond func(Message) bool) Message {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-client.viewFrames:
			if msg.Type == want && cond(msg) {
				return msg
			}
		case <-deadline:
			t.Fatalf("no %s frame arrived in time", want)
		}
	}
}

func TestClientListSubscriptionStreamsSnapshots(t *testing.T) {
	client, st := setupViewClient(t)
	seedMeetup(t, st, "p1", "chess")
	seedMeetup(t, st, "p2", "go")

	client.handleMessage(inboundMessage{
		Type: MessageTypeSubscribeList,
		Data: json.RawMessage(`{"topicId":"chess"}`),
	})

	waitForFrame(t, client, MessageTypeListSnapshot, func(msg Message) bool {
		posts, ok := msg.Data.([]*models.MeetupPost)
		return ok && len(posts) == 1 && posts[0].ID == "p1"
	})

	// A matching insert reaches the subscribed client as a new snapshot.
	seedMeetup(t, st, "p3", "chess")
	waitForFrame(t, client, MessageTypeListSnapshot, func(msg Message) bool {
		posts, ok := msg.Data.([]*models.MeetupPost)
		return ok && len(posts) == 2
	})
}

func TestClientDetailSubscriptionReplacesListView(t *testing.T) {
	client, st := setupViewClient(t)
	seedMeetup(t, st, "p1", "chess")

	client.handleMessage(inboundMessage{
		Type: MessageTypeSubscribeList,
		Data: json.RawMessage(`{}`),
	})
	waitForFrame(t, client, MessageTypeListSnapshot, func(msg Message) bool {
		posts, ok := msg.Data.([]*models.MeetupPost)
		return ok && len(posts) == 1
	})

	client.handleMessage(inboundMessage{
		Type: MessageTypeSubscribeDetail,
		Data: json.RawMessage(`{"postId":"p1"}`),
	})
	waitForFrame(t, client, MessageTypeDetailSnapshot, func(msg Message) bool {
		snapshot, ok := msg.Data.(reconcile.DetailSnapshot)
		return ok && snapshot.Post != nil && snapshot.Post.ID == "p1"
	})
}

func TestClientRejectsUnknownListStatus(t *testing.T) {
	client, _ := setupViewClient(t)

	client.handleMessage(inboundMessage{
		Type: MessageTypeSubscribeList,
		Data: json.RawMessage(`{"statuses":["NOT_A_STATUS"]}`),
	})

	select {
	case msg := <-client.viewFrames:
		t.Fatalf("view started for invalid subscription, got %s frame", msg.Type)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestHubBroadcastUnreadCount(t *testing.T) {
	hub, _ := setupHub(t)
	client := newTestClient(hub)
	registerClient(hub, client)

	hub.BroadcastUnreadCount("u1", 3)

	select {
	case msg := <-client.send:
		if msg.Type != MessageTypeUnreadCount {
			t.Fatalf("frame type = %s, want %s", msg.Type, MessageTypeUnreadCount)
		}
		data, ok := msg.Data.(UnreadCountData)
		if !ok {
			t.Fatalf("message data is %T, want UnreadCountData", msg.Data)
		}
		if data.UserID != "u1" || data.Unread != 3 {
			t.Errorf("badge = %+v, want u1/3", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("unread count frame not delivered")
	}
}
