// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/changefeed"
	"github.com/meetfield/meetfield/internal/models"
)

// DetailFetcher is the fetch side of the detail view.
type DetailFetcher interface {
	FetchPost(ctx context.Context, id string) (*models.MeetupPost, error)
	FetchParticipants(ctx context.Context, postID string) ([]*models.Participant, error)
	FetchWaitlist(ctx context.Context, postID string) ([]*models.WaitlistEntry, error)
	FetchMessages(ctx context.Context, postID string) ([]*models.MeetupMessage, error)
}

// DetailSnapshot is one consistent read of a post and its children.
type DetailSnapshot struct {
	Post         *models.MeetupPost      `json:"post"`
	Participants []*models.Participant   `json:"participants"`
	Waitlist     []*models.WaitlistEntry `json:"waitlist"`
	Messages     []*models.MeetupMessage `json:"messages"`
}

// DetailViewConfig tunes one detail view.
type DetailViewConfig struct {
	PostID string

	// RefetchDebounce batches bursts of post and child events into one
	// refetch. Messages are exempt and refresh immediately.
	RefetchDebounce time.Duration

	// PollInterval is the fallback cadence when the feed degrades.
	PollInterval time.Duration

	// MessagePollInterval refreshes messages alone while polling, so
	// chat stays fresher than the full-snapshot cadence when it is
	// configured shorter, and cheaper when longer.
	MessagePollInterval time.Duration
}

// DetailView tracks a single meetup post with its participants,
// waitlist, and messages. Structural changes are debounced; new
// messages refresh without delay so chat stays responsive.
type DetailView struct {
	feed    *changefeed.Feed
	fetcher DetailFetcher
	config  DetailViewConfig
	logger  zerolog.Logger

	// OnUpdate, when set, receives each fresh snapshot. Called from the
	// view's goroutine; must not block.
	OnUpdate func(DetailSnapshot)

	mu       sync.Mutex
	snapshot DetailSnapshot

	debounceMu     sync.Mutex
	refetchPending bool
	refetchCh      chan struct{}
	messageRefetch chan struct{}

	subs    []*changefeed.Subscription
	polling bool
}

// NewDetailView builds a view for one post. Call Run to start it.
func NewDetailView(feed *changefeed.Feed, fetcher DetailFetcher, cfg DetailViewConfig, logger zerolog.Logger) *DetailView {
	if cfg.RefetchDebounce <= 0 {
		cfg.RefetchDebounce = 500 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.MessagePollInterval <= 0 {
		cfg.MessagePollInterval = cfg.PollInterval
	}
	return &DetailView{
		feed:           feed,
		fetcher:        fetcher,
		config:         cfg,
		logger:         logger.With().Str("component", "detail-view").Str("post_id", cfg.PostID).Logger(),
		refetchCh:      make(chan struct{}, 1),
		messageRefetch: make(chan struct{}, 1),
	}
}

// Snapshot returns the most recent consistent read.
func (v *DetailView) Snapshot() DetailSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshot
}

// Run subscribes, loads the initial state, and processes events until
// ctx is cancelled.
func (v *DetailView) Run(ctx context.Context) error {
	if err := v.subscribe(); err != nil {
		return err
	}
	defer v.teardown()

	if err := v.refetch(ctx); err != nil {
		v.logger.Error().Err(err).Msg("Initial detail fetch failed")
	}
	return v.loop(ctx)
}

func (v *DetailView) subscribe() error {
	specs := []changefeed.SubscriptionSpec{
		{Table: "meetup_posts", Filter: v.isOwnPost},
		{Table: "participants", Filter: v.isOwnChild},
		{Table: "waitlist_entries", Filter: v.isOwnChild},
		{Table: "meetup_messages", Filter: v.isOwnChild},
	}
	for _, spec := range specs {
		sub, err := v.feed.Subscribe(spec)
		if err != nil {
			v.teardown()
			return err
		}
		v.subs = append(v.subs, sub)
	}
	return nil
}

func (v *DetailView) teardown() {
	for _, sub := range v.subs {
		v.feed.Unsubscribe(sub)
	}
	v.subs = nil
}

func (v *DetailView) loop(ctx context.Context) error {
	poll := time.NewTicker(v.config.PollInterval)
	poll.Stop()
	defer poll.Stop()
	messagePoll := time.NewTicker(v.config.MessagePollInterval)
	messagePoll.Stop()
	defer messagePoll.Stop()

	posts, participants, waitlist, messages := v.subs[0], v.subs[1], v.subs[2], v.subs[3]
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case _, ok := <-posts.C:
			if !ok {
				return nil
			}
			v.scheduleRefetch()
		case _, ok := <-participants.C:
			if !ok {
				return nil
			}
			v.scheduleRefetch()
		case _, ok := <-waitlist.C:
			if !ok {
				return nil
			}
			v.scheduleRefetch()
		case _, ok := <-messages.C:
			if !ok {
				return nil
			}
			// Messages skip the debounce so chat lands immediately.
			select {
			case v.messageRefetch <- struct{}{}:
			default:
			}

		case <-v.refetchCh:
			if err := v.refetch(ctx); err != nil {
				v.logger.Error().Err(err).Msg("Detail refetch failed")
			}
		case <-v.messageRefetch:
			if err := v.refetchMessages(ctx); err != nil {
				v.logger.Error().Err(err).Msg("Message refetch failed")
			}

		case status := <-posts.Status:
			if status == changefeed.ChannelError && !v.polling {
				v.polling = true
				poll.Reset(v.config.PollInterval)
				messagePoll.Reset(v.config.MessagePollInterval)
				v.logger.Warn().Msg("Feed degraded, polling")
			} else if status == changefeed.ChannelOK && v.polling {
				v.polling = false
				poll.Stop()
				messagePoll.Stop()
				v.logger.Info().Msg("Feed recovered, live again")
			}

		case <-poll.C:
			if err := v.refetch(ctx); err != nil {
				v.logger.Error().Err(err).Msg("Poll fetch failed")
			}
		case <-messagePoll.C:
			if err := v.refetchMessages(ctx); err != nil {
				v.logger.Error().Err(err).Msg("Message poll fetch failed")
			}
		}
	}
}

func (v *DetailView) isOwnPost(ev changefeed.ChangeEvent) bool {
	var post models.MeetupPost
	if err := ev.DecodeRow(&post); err != nil {
		return false
	}
	return post.ID == v.config.PostID
}

func (v *DetailView) isOwnChild(ev changefeed.ChangeEvent) bool {
	var row childRow
	if err := ev.DecodeRow(&row); err != nil {
		return false
	}
	// DELETE payloads lack the parent id; admit them and let the
	// refetch decide.
	return row.PostID == "" || row.PostID == v.config.PostID
}

// scheduleRefetch coalesces a burst of events into one refetch after
// the debounce window. Repeated calls inside the window are folded.
func (v *DetailView) scheduleRefetch() {
	v.debounceMu.Lock()
	if v.refetchPending {
		v.debounceMu.Unlock()
		return
	}
	v.refetchPending = true
	v.debounceMu.Unlock()

	time.AfterFunc(v.config.RefetchDebounce, func() {
		v.debounceMu.Lock()
		v.refetchPending = false
		v.debounceMu.Unlock()
		select {
		case v.refetchCh <- struct{}{}:
		default:
		}
	})
}

func (v *DetailView) refetch(ctx context.Context) error {
	post, err := v.fetcher.FetchPost(ctx, v.config.PostID)
	if err != nil {
		return err
	}
	participants, err := v.fetcher.FetchParticipants(ctx, v.config.PostID)
	if err != nil {
		return err
	}
	waitlist, err := v.fetcher.FetchWaitlist(ctx, v.config.PostID)
	if err != nil {
		return err
	}
	messages, err := v.fetcher.FetchMessages(ctx, v.config.PostID)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.snapshot = DetailSnapshot{
		Post:         post,
		Participants: participants,
		Waitlist:     waitlist,
		Messages:     messages,
	}
	snapshot := v.snapshot
	v.mu.Unlock()

	v.notify(snapshot)
	return nil
}

func (v *DetailView) refetchMessages(ctx context.Context) error {
	messages, err := v.fetcher.FetchMessages(ctx, v.config.PostID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.snapshot.Messages = messages
	snapshot := v.snapshot
	v.mu.Unlock()

	v.notify(snapshot)
	return nil
}

func (v *DetailView) notify(snapshot DetailSnapshot) {
	if v.OnUpdate != nil {
		v.OnUpdate(snapshot)
	}
}
