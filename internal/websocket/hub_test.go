// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package websocket

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/changefeed"
	"github.com/meetfield/meetfield/internal/logging"
	"github.com/meetfield/meetfield/internal/store"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

func setupHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.RunWithContext(ctx)
	time.Sleep(10 * time.Millisecond)
	t.Cleanup(cancel)
	return hub, cancel
}

func newTestClient(hub *Hub) *Client {
	return &Client{
		id:         clientIDCounter.Add(1),
		hub:        hub,
		send:       make(chan Message, 256),
		viewFrames: make(chan Message, 16),
	}
}

func registerClient(hub *Hub, client *Client) {
	hub.Register <- client
	time.Sleep(20 * time.Millisecond)
}

func TestHubRegisterUnregister(t *testing.T) {
	hub, _ := setupHub(t)

	client := newTestClient(hub)
	registerClient(hub, client)
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d after register, want 1", hub.ClientCount())
	}

	hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)
	if hub.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d after unregister, want 0", hub.ClientCount())
	}
	if _, ok := <-client.send; ok {
		t.Error("send channel still open after unregister")
	}
}

func TestHubBroadcastChange(t *testing.T) {
	hub, _ := setupHub(t)

	c1 := newTestClient(hub)
	c2 := newTestClient(hub)
	registerClient(hub, c1)
	registerClient(hub, c2)

	hub.BroadcastChange("meetup_posts", "UPDATE", []byte(`{"id":"p1"}`))

	for _, client := range []*Client{c1, c2} {
		select {
		case msg := <-client.send:
			if msg.Type != MessageTypeChange {
				t.Errorf("message type = %q, want %q", msg.Type, MessageTypeChange)
			}
			data, ok := msg.Data.(ChangeData)
			if !ok {
				t.Fatalf("message data is %T, want ChangeData", msg.Data)
			}
			if data.Table != "meetup_posts" || data.Event != "UPDATE" {
				t.Errorf("got %s %s, want meetup_posts UPDATE", data.Table, data.Event)
			}
		case <-time.After(time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub, _ := setupHub(t)

	slow := &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		send: make(chan Message), // unbuffered with no reader
	}
	registerClient(hub, slow)

	hub.BroadcastChange("meetup_posts", "INSERT", []byte(`{}`))
	time.Sleep(50 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0 after slow client dropped", hub.ClientCount())
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub, cancel := setupHub(t)

	client := newTestClient(hub)
	registerClient(hub, client)

	cancel()
	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed on shutdown")
	}
}

func TestBridgeForwardsFeedEvents(t *testing.T) {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{Persistent: true},
		watermill.NopLogger{},
	)
	feed := changefeed.NewFeed(pubsub, zerolog.Nop())
	publisher := changefeed.NewPublisher(pubsub, watermill.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	hub, _ := setupHub(t)
	bridge := NewBridge(feed, hub, zerolog.Nop())
	go bridge.Serve(ctx)
	time.Sleep(50 * time.Millisecond)

	client := newTestClient(hub)
	registerClient(hub, client)

	publisher.Hook()("meetup_posts", store.ChangeInsert, map[string]string{"id": "p1"})

	select {
	case msg := <-client.send:
		data, ok := msg.Data.(ChangeData)
		if !ok {
			t.Fatalf("message data is %T, want ChangeData", msg.Data)
		}
		if data.Table != "meetup_posts" || data.Event != "INSERT" {
			t.Errorf("forwarded %s %s, want meetup_posts INSERT", data.Table, data.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not forward feed event")
	}

	t.Cleanup(func() { pubsub.Close() })
}
