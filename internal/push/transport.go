// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

// Package push delivers Web Push messages to user devices. Delivery is
// best-effort: transient errors are recorded and never retried here,
// permanent endpoint failures remove the stale subscription.
package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/meetfield/meetfield/internal/models"
)

// ErrPermanent marks an endpoint that will never accept deliveries
// again (expired or unsubscribed). The caller removes the subscription.
var ErrPermanent = errors.New("push: permanent endpoint failure")

// SendOptions carries per-message transport parameters.
type SendOptions struct {
	TTL     int
	Urgency webpush.Urgency
}

// Transport sends one encrypted payload to one device endpoint.
type Transport interface {
	Send(ctx context.Context, sub *models.PushSubscription, payload []byte, opts SendOptions) error
}

// WebPushTransport implements Transport over the Web Push protocol
// with VAPID authentication.
type WebPushTransport struct {
	subscriber      string
	vapidPublicKey  string
	vapidPrivateKey string
}

// NewWebPushTransport builds the transport. subscriber is the contact
// address (mailto: or https:) advertised to push services.
func NewWebPushTransport(subscriber, vapidPublicKey, vapidPrivateKey string) *WebPushTransport {
	return &WebPushTransport{
		subscriber:      subscriber,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
	}
}

func (t *WebPushTransport) Send(ctx context.Context, sub *models.PushSubscription, payload []byte, opts SendOptions) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		Subscriber:      t.subscriber,
		VAPIDPublicKey:  t.vapidPublicKey,
		VAPIDPrivateKey: t.vapidPrivateKey,
		TTL:             opts.TTL,
		Urgency:         opts.Urgency,
	})
	if err != nil {
		return fmt.Errorf("sending push: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("endpoint returned %d: %w", resp.StatusCode, ErrPermanent)
	case resp.StatusCode >= 400:
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}
