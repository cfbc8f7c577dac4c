// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

// Package reconcile keeps per-client list and detail views consistent
// against the change feed, with a polling fallback when the feed
// degrades. Views must stay correct under duplicate and out-of-order
// event delivery: every handler either applies an idempotent local
// mutation or refetches the authoritative row.
package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/cache"
	"github.com/meetfield/meetfield/internal/changefeed"
	"github.com/meetfield/meetfield/internal/models"
	"github.com/meetfield/meetfield/internal/store"
)

// ListFetcher is the fetch side of the list view. FetchPost returns an
// error wrapping store.ErrNotFound when the row no longer exists; any
// other error is treated as transient.
type ListFetcher interface {
	FetchList(ctx context.Context, filter ListFilter) ([]*models.MeetupPost, error)
	FetchPost(ctx context.Context, id string) (*models.MeetupPost, error)
}

// ListFilter is the view's admission predicate, mirrored from the fetch
// query so streamed inserts are evaluated the same way a fetch would.
type ListFilter struct {
	Statuses []models.MeetupStatus
	TopicID  string
}

// Matches reports whether a post belongs in a view with this filter.
func (f ListFilter) Matches(p *models.MeetupPost) bool {
	if f.TopicID != "" && p.TopicID != f.TopicID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if p.Status == s {
			return true
		}
	}
	return false
}

// ListViewConfig tunes one list view.
type ListViewConfig struct {
	Filter ListFilter

	// ChildDebounce coalesces rapid child-table events per parent.
	ChildDebounce time.Duration

	// PollInterval is the fallback cadence when the feed reports an
	// error. Intentionally longer than the debounce window.
	PollInterval time.Duration

	// ParentIndexSize and ParentIndexTTL bound the child-to-parent
	// reverse index.
	ParentIndexSize int
	ParentIndexTTL  time.Duration
}

// ListView maintains an ordered, filtered collection of meetup posts
// for one client. OnUpdate fires with a fresh snapshot after every
// applied change.
type ListView struct {
	feed    *changefeed.Feed
	fetcher ListFetcher
	config  ListViewConfig
	logger  zerolog.Logger

	// OnUpdate, when set, receives a snapshot after each change. Called
	// from the view's goroutine; must not block.
	OnUpdate func([]*models.MeetupPost)

	mu    sync.Mutex
	posts map[string]*models.MeetupPost
	order []string

	// parentIndex maps child row id -> parent post id, resolving child
	// DELETE payloads that omit the parent reference. It is fed only by
	// observed child INSERT/UPDATE events; list fetches carry no child
	// rows, so a full refetch never reseeds it. After a polling spell
	// child deletes therefore degrade to full refetches until live
	// inserts repopulate the index.
	parentIndex *cache.LRUCache

	// pendingRefetch marks parents with a coalescing timer in flight.
	pendingMu      sync.Mutex
	pendingRefetch map[string]bool
	refetchCh      chan string

	subs    []*changefeed.Subscription
	polling bool
}

// NewListView builds a view. Call Run to start it.
func NewListView(feed *changefeed.Feed, fetcher ListFetcher, cfg ListViewConfig, logger zerolog.Logger) *ListView {
	if cfg.ChildDebounce <= 0 {
		cfg.ChildDebounce = 300 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.ParentIndexSize <= 0 {
		cfg.ParentIndexSize = 2048
	}
	if cfg.ParentIndexTTL <= 0 {
		cfg.ParentIndexTTL = 30 * time.Minute
	}
	return &ListView{
		feed:           feed,
		fetcher:        fetcher,
		config:         cfg,
		logger:         logger.With().Str("component", "list-view").Logger(),
		posts:          make(map[string]*models.MeetupPost),
		parentIndex:    cache.NewLRUCache(cfg.ParentIndexSize, cfg.ParentIndexTTL),
		pendingRefetch: make(map[string]bool),
		refetchCh:      make(chan string, 64),
	}
}

// Snapshot returns the current ordered collection.
func (v *ListView) Snapshot() []*models.MeetupPost {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *ListView) snapshotLocked() []*models.MeetupPost {
	out := make([]*models.MeetupPost, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.posts[id])
	}
	return out
}

// Run subscribes, loads the initial state, and processes events until
// ctx is cancelled. Tearing down the context unsubscribes everything.
func (v *ListView) Run(ctx context.Context) error {
	subs, err := v.subscribe()
	if err != nil {
		return err
	}
	defer v.teardown()

	if err := v.refetchAll(ctx); err != nil {
		v.logger.Error().Err(err).Msg("Initial list fetch failed")
	}
	return v.loop(ctx, subs)
}

// SetFilter replaces the admission predicate. State is cleared and the
// old subscriptions torn down rather than patched in place; tearing
// them down ends an active Run loop, and the next Run resubscribes and
// reloads under the new filter.
func (v *ListView) SetFilter(filter ListFilter) {
	v.teardown()

	v.mu.Lock()
	v.config.Filter = filter
	v.posts = make(map[string]*models.MeetupPost)
	v.order = nil
	v.parentIndex.Clear()
	v.mu.Unlock()
}

func (v *ListView) subscribe() ([]*changefeed.Subscription, error) {
	specs := []changefeed.SubscriptionSpec{
		{Table: "meetup_posts"},
		{Table: "participants"},
		{Table: "waitlist_entries"},
	}
	var subs []*changefeed.Subscription
	for _, spec := range specs {
		sub, err := v.feed.Subscribe(spec)
		if err != nil {
			for _, s := range subs {
				v.feed.Unsubscribe(s)
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	v.mu.Lock()
	v.subs = subs
	v.mu.Unlock()
	return subs, nil
}

func (v *ListView) teardown() {
	v.mu.Lock()
	subs := v.subs
	v.subs = nil
	v.mu.Unlock()
	for _, sub := range subs {
		v.feed.Unsubscribe(sub)
	}
}

func (v *ListView) loop(ctx context.Context, subs []*changefeed.Subscription) error {
	poll := time.NewTicker(v.config.PollInterval)
	poll.Stop()
	defer poll.Stop()

	posts, participants, waitlist := subs[0], subs[1], subs[2]
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-posts.C:
			if !ok {
				return nil
			}
			v.handlePostEvent(ctx, ev)
		case ev, ok := <-participants.C:
			if !ok {
				return nil
			}
			v.handleChildEvent(ctx, ev)
		case ev, ok := <-waitlist.C:
			if !ok {
				return nil
			}
			v.handleChildEvent(ctx, ev)

		case parentID := <-v.refetchCh:
			v.refetchOne(ctx, parentID)

		case status := <-posts.Status:
			if status == changefeed.ChannelError && !v.polling {
				v.polling = true
				poll.Reset(v.config.PollInterval)
				v.logger.Warn().Msg("Feed degraded, polling")
			} else if status == changefeed.ChannelOK && v.polling {
				v.polling = false
				poll.Stop()
				v.logger.Info().Msg("Feed recovered, live again")
			}

		case <-poll.C:
			if err := v.refetchAll(ctx); err != nil {
				v.logger.Error().Err(err).Msg("Poll fetch failed")
			}
		}
	}
}

func (v *ListView) handlePostEvent(ctx context.Context, ev changefeed.ChangeEvent) {
	var post models.MeetupPost
	switch ev.Type {
	case changefeed.EventInsert:
		if err := ev.DecodeRow(&post); err != nil {
			v.logger.Error().Err(err).Msg("Undecodable post insert")
			return
		}
		// Admission is re-evaluated against the current filter; an
		// already-present id is replaced, not duplicated.
		if !v.config.Filter.Matches(&post) {
			return
		}
		v.upsert(&post)
	case changefeed.EventUpdate:
		if err := ev.DecodeRow(&post); err != nil {
			v.logger.Error().Err(err).Msg("Undecodable post update")
			return
		}
		// Partial reconciliation: refetch only this entity, never the
		// whole list.
		v.refetchOne(ctx, post.ID)
	case changefeed.EventDelete:
		if err := ev.DecodeRow(&post); err != nil {
			v.logger.Error().Err(err).Msg("Undecodable post delete")
			return
		}
		v.remove(post.ID)
	}
}

// childRow is the subset of child-table payloads the view needs. The
// parent reference may be empty on DELETE events.
type childRow struct {
	ID     string `json:"id"`
	PostID string `json:"postId"`
}

func (v *ListView) handleChildEvent(ctx context.Context, ev changefeed.ChangeEvent) {
	var row childRow
	if err := ev.DecodeRow(&row); err != nil {
		v.logger.Error().Err(err).Str("table", ev.Table).Msg("Undecodable child event")
		return
	}

	switch ev.Type {
	case changefeed.EventInsert, changefeed.EventUpdate:
		if row.PostID != "" {
			v.parentIndex.Add(ev.Table+"/"+row.ID, row.PostID)
			v.scheduleRefetch(row.PostID)
		}
	case changefeed.EventDelete:
		parentID := row.PostID
		if parentID == "" {
			cached, ok := v.parentIndex.Take(ev.Table + "/" + row.ID)
			if !ok {
				// Designed degradation path: without the parent we
				// cannot do a partial refetch, so refetch everything.
				v.logger.Debug().Str("child_id", row.ID).Msg("Parent unknown, full refetch")
				if err := v.refetchAll(ctx); err != nil {
					v.logger.Error().Err(err).Msg("Fallback refetch failed")
				}
				return
			}
			parentID = cached
		}
		v.scheduleRefetch(parentID)
	}
}

// scheduleRefetch coalesces bursts of child events for one parent into
// a single partial refetch after the debounce window.
func (v *ListView) scheduleRefetch(parentID string) {
	v.pendingMu.Lock()
	if v.pendingRefetch[parentID] {
		v.pendingMu.Unlock()
		return
	}
	v.pendingRefetch[parentID] = true
	v.pendingMu.Unlock()

	time.AfterFunc(v.config.ChildDebounce, func() {
		v.pendingMu.Lock()
		delete(v.pendingRefetch, parentID)
		v.pendingMu.Unlock()
		select {
		case v.refetchCh <- parentID:
		default:
		}
	})
}

func (v *ListView) refetchOne(ctx context.Context, id string) {
	post, err := v.fetcher.FetchPost(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		// The row is gone; removing a missing id is a no-op either way.
		v.remove(id)
		return
	}
	if err != nil {
		// Transient fetch failure. Keep the stale row: evicting it
		// would flicker a valid post out of the view, and the next
		// event or poll reconciles it anyway.
		v.logger.Warn().Err(err).Str("post_id", id).Msg("Post refetch failed, keeping stale row")
		return
	}
	if !v.config.Filter.Matches(post) {
		v.remove(id)
		return
	}
	v.upsert(post)
}

func (v *ListView) refetchAll(ctx context.Context) error {
	posts, err := v.fetcher.FetchList(ctx, v.config.Filter)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.posts = make(map[string]*models.MeetupPost, len(posts))
	v.order = v.order[:0]
	for _, p := range posts {
		v.posts[p.ID] = p
		v.order = append(v.order, p.ID)
	}
	snapshot := v.snapshotLocked()
	v.mu.Unlock()

	v.notify(snapshot)
	return nil
}

func (v *ListView) upsert(post *models.MeetupPost) {
	v.mu.Lock()
	if _, exists := v.posts[post.ID]; !exists {
		v.order = append(v.order, post.ID)
	}
	v.posts[post.ID] = post
	sort.SliceStable(v.order, func(i, j int) bool {
		return v.posts[v.order[i]].StartTime.Before(v.posts[v.order[j]].StartTime)
	})
	snapshot := v.snapshotLocked()
	v.mu.Unlock()

	v.notify(snapshot)
}

func (v *ListView) remove(id string) {
	v.mu.Lock()
	if _, exists := v.posts[id]; !exists {
		v.mu.Unlock()
		return
	}
	delete(v.posts, id)
	for i, oid := range v.order {
		if oid == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
	snapshot := v.snapshotLocked()
	v.mu.Unlock()

	v.notify(snapshot)
}

func (v *ListView) notify(snapshot []*models.MeetupPost) {
	if v.OnUpdate != nil {
		v.OnUpdate(snapshot)
	}
}
