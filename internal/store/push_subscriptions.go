// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meetfield/meetfield/internal/models"
)

// UpsertPushSubscription registers a device endpoint. Re-registering
// the same (user, fingerprint) pair updates the existing row instead of
// duplicating it, so a browser refreshing its subscription keys never
// multiplies deliveries.
func (s *Store) UpsertPushSubscription(ctx context.Context, sub *models.PushSubscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sub.UpdatedAt = now
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions
			(id, user_id, endpoint, p256dh_key, auth_key, device_fingerprint,
			 device_type, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, device_fingerprint) DO UPDATE SET
			endpoint = excluded.endpoint,
			p256dh_key = excluded.p256dh_key,
			auth_key = excluded.auth_key,
			device_type = excluded.device_type,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		sub.ID, sub.UserID, sub.Endpoint, sub.P256dhKey, sub.AuthKey,
		sub.DeviceFingerprint, sub.DeviceType, sub.Enabled, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting push subscription: %w", err)
	}
	return nil
}

// ListEnabledSubscriptions returns a user's active device endpoints.
func (s *Store) ListEnabledSubscriptions(ctx context.Context, userID string) ([]*models.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, endpoint, p256dh_key, auth_key, device_fingerprint,
		       device_type, enabled, created_at, updated_at
		FROM push_subscriptions
		WHERE user_id = ? AND enabled = 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions for %s: %w", userID, err)
	}
	defer rows.Close()

	var subs []*models.PushSubscription
	for rows.Next() {
		var sub models.PushSubscription
		err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dhKey,
			&sub.AuthKey, &sub.DeviceFingerprint, &sub.DeviceType, &sub.Enabled,
			&sub.CreatedAt, &sub.UpdatedAt)
		if err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// DeletePushSubscription removes one subscription by id. Called by the
// push adapter on a permanent endpoint failure.
func (s *Store) DeletePushSubscription(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting push subscription %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubscriptionsForDevice removes the subscription for one device,
// used when a user unsubscribes that device.
func (s *Store) DeleteSubscriptionsForDevice(ctx context.Context, userID, deviceFingerprint string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = ? AND device_fingerprint = ?`,
		userID, deviceFingerprint)
	if err != nil {
		return fmt.Errorf("deleting subscription for device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DisableSubscriptionsForUser keeps the rows but stops deliveries,
// used when the user turns notifications off entirely.
func (s *Store) DisableSubscriptionsForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE push_subscriptions SET enabled = 0, updated_at = ? WHERE user_id = ?`,
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("disabling subscriptions for %s: %w", userID, err)
	}
	return nil
}
