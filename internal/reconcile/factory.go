// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/changefeed"
	"github.com/meetfield/meetfield/internal/models"
	"github.com/meetfield/meetfield/internal/store"
)

// Fetcher combines the list and detail fetch surfaces.
type Fetcher interface {
	ListFetcher
	DetailFetcher
}

// Config carries process-wide view tuning, sourced from the feed
// section of the server configuration. Zero fields fall back to the
// per-view defaults.
type Config struct {
	ListDebounce       time.Duration
	ListPollInterval   time.Duration
	DetailDebounce     time.Duration
	DetailPollInterval time.Duration
	AuxPollInterval    time.Duration
	ParentIndexSize    int
	ParentIndexTTL     time.Duration
}

// Factory stamps out configured views over one feed and one fetcher.
// Connection handlers use it to give every client the same tuning
// without threading seven knobs through each call site.
type Factory struct {
	feed    *changefeed.Feed
	fetcher Fetcher
	config  Config
	logger  zerolog.Logger
}

// NewFactory builds a factory.
func NewFactory(feed *changefeed.Feed, fetcher Fetcher, cfg Config, logger zerolog.Logger) *Factory {
	return &Factory{feed: feed, fetcher: fetcher, config: cfg, logger: logger}
}

// ListView builds a started-ready list view for one filter.
func (f *Factory) ListView(filter ListFilter) *ListView {
	return NewListView(f.feed, f.fetcher, ListViewConfig{
		Filter:          filter,
		ChildDebounce:   f.config.ListDebounce,
		PollInterval:    f.config.ListPollInterval,
		ParentIndexSize: f.config.ParentIndexSize,
		ParentIndexTTL:  f.config.ParentIndexTTL,
	}, f.logger)
}

// DetailView builds a started-ready detail view for one post.
func (f *Factory) DetailView(postID string) *DetailView {
	return NewDetailView(f.feed, f.fetcher, DetailViewConfig{
		PostID:              postID,
		RefetchDebounce:     f.config.DetailDebounce,
		PollInterval:        f.config.DetailPollInterval,
		MessagePollInterval: f.config.AuxPollInterval,
	}, f.logger)
}

// StoreFetcher adapts the SQLite store to the view fetch interfaces.
type StoreFetcher struct {
	store *store.Store
}

// NewStoreFetcher wraps a store.
func NewStoreFetcher(st *store.Store) *StoreFetcher {
	return &StoreFetcher{store: st}
}

func (sf *StoreFetcher) FetchList(ctx context.Context, filter ListFilter) ([]*models.MeetupPost, error) {
	return sf.store.ListMeetupPosts(ctx, store.MeetupFilter{
		Statuses: filter.Statuses,
		TopicID:  filter.TopicID,
	})
}

func (sf *StoreFetcher) FetchPost(ctx context.Context, id string) (*models.MeetupPost, error) {
	return sf.store.GetMeetupPost(ctx, id)
}

func (sf *StoreFetcher) FetchParticipants(ctx context.Context, postID string) ([]*models.Participant, error) {
	return sf.store.ListParticipants(ctx, postID)
}

func (sf *StoreFetcher) FetchWaitlist(ctx context.Context, postID string) ([]*models.WaitlistEntry, error) {
	return sf.store.ListWaitlist(ctx, postID)
}

func (sf *StoreFetcher) FetchMessages(ctx context.Context, postID string) ([]*models.MeetupMessage, error) {
	return sf.store.ListMessages(ctx, postID)
}
