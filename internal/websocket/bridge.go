// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package websocket

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/changefeed"
)

// bridgeTables are the tables whose changes browsers care about.
var bridgeTables = []string{
	"meetup_posts",
	"participants",
	"waitlist_entries",
	"meetup_messages",
}

// Bridge forwards change feed events to the websocket hub so browser
// reconcilers see the same stream the server-side views do.
type Bridge struct {
	feed   *changefeed.Feed
	hub    *Hub
	logger zerolog.Logger
}

// NewBridge wires a feed to a hub. Call Serve to start forwarding.
func NewBridge(feed *changefeed.Feed, hub *Hub, logger zerolog.Logger) *Bridge {
	return &Bridge{
		feed:   feed,
		hub:    hub,
		logger: logger.With().Str("component", "ws-bridge").Logger(),
	}
}

// Serve subscribes to every bridged table and forwards events until
// ctx is cancelled.
func (b *Bridge) Serve(ctx context.Context) error {
	subs := make([]*changefeed.Subscription, 0, len(bridgeTables))
	defer func() {
		for _, sub := range subs {
			b.feed.Unsubscribe(sub)
		}
	}()

	for _, table := range bridgeTables {
		sub, err := b.feed.Subscribe(changefeed.SubscriptionSpec{Table: table})
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		go b.forward(ctx, sub)
	}

	<-ctx.Done()
	return ctx.Err()
}

// String names the bridge for supervisor logs.
func (b *Bridge) String() string { return "ws-bridge" }

func (b *Bridge) forward(ctx context.Context, sub *changefeed.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			b.hub.BroadcastChange(ev.Table, string(ev.Type), ev.Row)
		case status, ok := <-sub.Status:
			if !ok {
				return
			}
			if status == changefeed.ChannelError {
				b.logger.Warn().Str("table", sub.Spec().Table).Msg("Bridge channel degraded")
			}
		}
	}
}
