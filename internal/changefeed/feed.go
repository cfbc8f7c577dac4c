// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package changefeed

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/metrics"
)

// subscriptionBuffer is the per-subscription event queue length. A full
// queue drops the event: consumers reconcile by refetch, so a dropped
// event costs one extra fetch, never correctness.
const subscriptionBuffer = 64

// SubscriptionSpec selects which events a subscription receives.
type SubscriptionSpec struct {
	// Table is the source table. Required.
	Table string

	// Types limits delivery to these event types. Empty means all.
	Types []EventType

	// Filter, when set, drops events it returns false for. It runs on
	// the feed's dispatch goroutine and must be fast and non-blocking.
	Filter func(ChangeEvent) bool
}

func (s SubscriptionSpec) wants(event ChangeEvent) bool {
	if len(s.Types) > 0 {
		found := false
		for _, t := range s.Types {
			if t == event.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s.Filter != nil && !s.Filter(event) {
		return false
	}
	return true
}

// Subscription is one consumer's attachment to the feed. Events arrive
// on C; health transitions arrive on Status. Both channels close on
// Unsubscribe.
type Subscription struct {
	id     int64
	spec   SubscriptionSpec
	C      chan ChangeEvent
	Status chan ChannelStatus
	closed bool
}

// Spec returns the spec this subscription was created with.
func (s *Subscription) Spec() SubscriptionSpec { return s.spec }

// Feed fans change events out from one transport subscription per table
// to any number of view subscriptions. It owns no business logic.
type Feed struct {
	subscriber message.Subscriber
	logger     zerolog.Logger

	mu     sync.Mutex
	subs   map[string]map[int64]*Subscription
	loops  map[string]bool
	nextID int64
	status ChannelStatus
	runCtx context.Context
}

// NewFeed wraps a watermill subscriber. The feed does not consume
// anything until Run is called.
func NewFeed(subscriber message.Subscriber, logger zerolog.Logger) *Feed {
	return &Feed{
		subscriber: subscriber,
		logger:     logger.With().Str("component", "changefeed").Logger(),
		subs:       make(map[string]map[int64]*Subscription),
		loops:      make(map[string]bool),
		status:     ChannelOK,
	}
}

// Run consumes the transport until ctx is cancelled. Designed to run
// under the process supervisor.
func (f *Feed) Run(ctx context.Context) error {
	f.mu.Lock()
	f.runCtx = ctx
	for table := range f.subs {
		f.startLoopLocked(table)
	}
	f.mu.Unlock()

	metrics.RecordFeedHealth(true)
	<-ctx.Done()
	return ctx.Err()
}

// Subscribe attaches a consumer. The transport subscription for the
// table starts lazily with the first consumer.
func (f *Feed) Subscribe(spec SubscriptionSpec) (*Subscription, error) {
	if spec.Table == "" {
		return nil, fmt.Errorf("subscription requires a table")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	sub := &Subscription{
		id:     f.nextID,
		spec:   spec,
		C:      make(chan ChangeEvent, subscriptionBuffer),
		Status: make(chan ChannelStatus, 1),
	}
	if f.subs[spec.Table] == nil {
		f.subs[spec.Table] = make(map[int64]*Subscription)
	}
	f.subs[spec.Table][sub.id] = sub

	if f.runCtx != nil {
		f.startLoopLocked(spec.Table)
	}
	return sub, nil
}

// Unsubscribe detaches a consumer and closes its channels.
func (f *Feed) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	delete(f.subs[sub.spec.Table], sub.id)
	close(sub.C)
	close(sub.Status)
}

// HealthStatus returns the current channel health.
func (f *Feed) HealthStatus() ChannelStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *Feed) startLoopLocked(table string) {
	if f.loops[table] {
		return
	}
	f.loops[table] = true
	go f.consume(f.runCtx, table)
}

func (f *Feed) consume(ctx context.Context, table string) {
	topic := TopicForTable(table)
	messages, err := f.subscriber.Subscribe(ctx, topic)
	if err != nil {
		f.logger.Error().Err(err).Str("topic", topic).Msg("Feed subscription failed")
		f.setStatus(ChannelError)
		return
	}

	f.logger.Debug().Str("topic", topic).Msg("Feed consuming")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() == nil {
					// Transport closed underneath us.
					f.setStatus(ChannelError)
				}
				return
			}
			f.dispatch(table, msg)
		}
	}
}

func (f *Feed) dispatch(table string, msg *message.Message) {
	var event ChangeEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		f.logger.Error().Err(err).Str("table", table).Msg("Undecodable change event")
		msg.Ack()
		return
	}

	f.mu.Lock()
	for _, sub := range f.subs[table] {
		if !sub.spec.wants(event) {
			continue
		}
		select {
		case sub.C <- event:
		default:
			f.logger.Debug().Str("table", table).Msg("Subscription queue full, dropping event")
		}
	}
	f.mu.Unlock()

	msg.Ack()
}

func (f *Feed) setStatus(status ChannelStatus) {
	f.mu.Lock()
	if f.status == status {
		f.mu.Unlock()
		return
	}
	f.status = status
	for _, table := range f.subs {
		for _, sub := range table {
			select {
			case sub.Status <- status:
			default:
			}
		}
	}
	f.mu.Unlock()

	metrics.RecordFeedHealth(status == ChannelOK)
	f.logger.Warn().Str("status", string(status)).Msg("Feed health changed")
}
