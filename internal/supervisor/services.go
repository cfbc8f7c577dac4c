// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package supervisor

import (
	"context"
	"time"

	"github.com/meetfield/meetfield/internal/changefeed"
)

// FeedService adapts the change feed to suture's Service interface.
type FeedService struct {
	Feed *changefeed.Feed
}

// Serve runs the feed until ctx is cancelled.
func (s FeedService) Serve(ctx context.Context) error {
	return s.Feed.Run(ctx)
}

// String names the service for supervisor logs.
func (s FeedService) String() string { return "change-feed" }

// NATSService supervises the embedded NATS server. The server starts
// in NewEmbeddedServer; this wrapper just ties its lifetime to the
// tree and shuts it down when the tree stops.
type NATSService struct {
	Server *changefeed.EmbeddedServer
}

// Serve blocks until ctx is cancelled, then shuts the server down.
func (s NATSService) Serve(ctx context.Context) error {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}

// String names the service for supervisor logs.
func (s NATSService) String() string { return "nats-server" }
