// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package push

import (
	"context"
	"errors"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/meetfield/meetfield/internal/metrics"
	"github.com/meetfield/meetfield/internal/models"
)

// SubscriptionStore is the slice of the store the adapter needs.
type SubscriptionStore interface {
	ListEnabledSubscriptions(ctx context.Context, userID string) ([]*models.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, id string) error
}

// AdapterConfig tunes the push adapter.
type AdapterConfig struct {
	// TTL in seconds handed to the push service.
	TTL int

	// RatePerSecond and Burst bound the outbound send rate across all
	// deliveries, protecting the push service relationship.
	RatePerSecond float64
	Burst         int
}

// Adapter fans one notification out to every enabled device of a user.
// One device failing never stops the remaining devices, and no failure
// is retried: redundant scheduling upstream covers reminder gaps.
type Adapter struct {
	store     SubscriptionStore
	transport Transport
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[any]
	ttl       int
	logger    zerolog.Logger
}

// NewAdapter builds the adapter.
func NewAdapter(store SubscriptionStore, transport Transport, cfg AdapterConfig, logger zerolog.Logger) *Adapter {
	if cfg.TTL <= 0 {
		cfg.TTL = 3600
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "push-transport",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
	})
	return &Adapter{
		store:     store,
		transport: transport,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker:   breaker,
		ttl:       cfg.TTL,
		logger:    logger.With().Str("component", "push").Logger(),
	}
}

// SendToUser delivers the notification to all of a user's enabled
// devices and reports the aggregate outcome for the user's receipt:
// DELIVERED when at least one device accepted, FAILED when every
// attempt failed, NONE when the user has no devices.
func (a *Adapter) SendToUser(ctx context.Context, userID string, n *models.Notification) (models.PushState, string) {
	subs, err := a.store.ListEnabledSubscriptions(ctx, userID)
	if err != nil {
		a.logger.Error().Err(err).Str("user_id", userID).Msg("Loading subscriptions failed")
		return models.PushStateFailed, err.Error()
	}
	if len(subs) == 0 {
		return models.PushStateNone, ""
	}

	payload, err := json.Marshal(models.PushPayload{
		Title: n.Title,
		Body:  n.Body,
		Tag:   n.ID,
		Data: models.PushPayloadData{
			URL:            n.LinkURL,
			NotificationID: n.ID,
		},
	})
	if err != nil {
		return models.PushStateFailed, err.Error()
	}

	opts := SendOptions{TTL: a.ttl, Urgency: urgencyFor(n.Priority)}

	delivered := 0
	lastErr := ""
	for _, sub := range subs {
		if err := a.limiter.Wait(ctx); err != nil {
			lastErr = err.Error()
			break
		}

		_, err := a.breaker.Execute(func() (any, error) {
			return nil, a.transport.Send(ctx, sub, payload, opts)
		})
		switch {
		case err == nil:
			delivered++
			metrics.PushDeliveries.WithLabelValues("delivered").Inc()
		case errors.Is(err, ErrPermanent):
			metrics.PushDeliveries.WithLabelValues("permanent_failure").Inc()
			a.removeSubscription(ctx, sub)
			lastErr = err.Error()
		default:
			metrics.PushDeliveries.WithLabelValues("transient_failure").Inc()
			a.logger.Debug().Err(err).
				Str("user_id", userID).
				Str("device", sub.DeviceFingerprint).
				Msg("Push delivery failed")
			lastErr = err.Error()
		}
	}

	if delivered > 0 {
		return models.PushStateDelivered, ""
	}
	return models.PushStateFailed, lastErr
}

func (a *Adapter) removeSubscription(ctx context.Context, sub *models.PushSubscription) {
	if err := a.store.DeletePushSubscription(ctx, sub.ID); err != nil {
		a.logger.Error().Err(err).
			Str("subscription_id", sub.ID).
			Msg("Removing stale subscription failed")
		return
	}
	metrics.PushSubscriptionsRemoved.Inc()
	a.logger.Info().
		Str("user_id", sub.UserID).
		Str("device", sub.DeviceFingerprint).
		Msg("Removed expired push subscription")
}

func urgencyFor(priority models.NotificationPriority) webpush.Urgency {
	switch priority {
	case models.PriorityUrgent, models.PriorityHigh:
		return webpush.UrgencyHigh
	case models.PriorityLow:
		return webpush.UrgencyLow
	default:
		return webpush.UrgencyNormal
	}
}
