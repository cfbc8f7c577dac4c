// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package changefeed

import (
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/meetfield/meetfield/internal/metrics"
	"github.com/meetfield/meetfield/internal/store"
)

// PublisherConfig tunes the NATS-backed publisher.
type PublisherConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Publisher turns store row mutations into change events on the feed.
// Publishing is wrapped in a circuit breaker so a broker outage degrades
// to dropped events (clients recover via polling) instead of blocking
// every store write.
type Publisher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[any]
	logger    watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// NewPublisher wraps an existing watermill publisher. Used directly in
// tests with an in-memory pub/sub.
func NewPublisher(pub message.Publisher, logger watermill.LoggerAdapter) *Publisher {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "changefeed-publish",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Publisher{publisher: pub, breaker: breaker, logger: logger}
}

// NewNATSPublisher builds a JetStream publisher with message-id
// deduplication and reconnection handling.
func NewNATSPublisher(cfg PublisherConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false, // stream is pre-created by StreamInitializer
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return NewPublisher(pub, logger), nil
}

// PublishChange emits one change event on the table's subject.
func (p *Publisher) PublishChange(event ChangeEvent) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("publisher is closed")
	}
	p.mu.RUnlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding change event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	msg.Metadata.Set("table", event.Table)
	msg.Metadata.Set("type", string(event.Type))

	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.publisher.Publish(TopicForTable(event.Table), msg)
	})
	if err == nil {
		metrics.FeedEventsPublished.WithLabelValues(event.Table, string(event.Type)).Inc()
	}
	return err
}

// Hook adapts the publisher to the store's change hook. Publish errors
// are logged, never surfaced to the mutating transaction: the feed is
// best-effort and polling covers the gap.
func (p *Publisher) Hook() store.ChangeHook {
	return func(table string, typ store.ChangeType, row any) {
		data, err := json.Marshal(row)
		if err != nil {
			p.logger.Error("Encoding change row failed", err, watermill.LogFields{"table": table})
			return
		}
		event := ChangeEvent{
			Table:      table,
			Type:       EventType(typ),
			Row:        data,
			OccurredAt: time.Now().UTC(),
		}
		if err := p.PublishChange(event); err != nil {
			p.logger.Error("Publishing change event failed", err, watermill.LogFields{
				"table": table,
				"type":  string(typ),
			})
		}
	}
}

// Close shuts the underlying publisher down.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
