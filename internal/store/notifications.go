// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/meetfield/meetfield/internal/models"
)

// CreateNotification persists one notification row. The audience
// descriptor is stored as a JSON document alongside the flat columns.
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	audience, err := json.Marshal(n.Audience)
	if err != nil {
		return fmt.Errorf("encoding audience: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications
			(id, category, sub_event, title, body, link_url, priority, audience,
			 status, created_at, scheduled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Category, n.SubEvent, n.Title, n.Body, n.LinkURL, n.Priority,
		string(audience), n.Status, n.CreatedAt, nullTime(n.ScheduledAt))
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

// GetNotification returns one notification by id, or ErrNotFound.
func (s *Store) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	var audience string
	var scheduledAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, category, sub_event, title, body, link_url, priority, audience,
		       status, created_at, scheduled_at
		FROM notifications WHERE id = ?`, id).Scan(
		&n.ID, &n.Category, &n.SubEvent, &n.Title, &n.Body, &n.LinkURL,
		&n.Priority, &audience, &n.Status, &n.CreatedAt, &scheduledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading notification %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(audience), &n.Audience); err != nil {
		return nil, fmt.Errorf("decoding audience for %s: %w", id, err)
	}
	if scheduledAt.Valid {
		t := scheduledAt.Time
		n.ScheduledAt = &t
	}
	return &n, nil
}

// UpdateNotificationStatus advances a notification's dispatch status.
func (s *Store) UpdateNotificationStatus(ctx context.Context, id string, status models.NotificationStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("updating notification %s status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateReceipts inserts one receipt per recipient, skipping any
// (notification, user) pair that already exists. Returns how many rows
// were actually created.
func (s *Store) CreateReceipts(ctx context.Context, notificationID string, userIDs []string) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	created := 0
	for _, userID := range userIDs {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO notification_receipts (notification_id, user_id, push_state, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(notification_id, user_id) DO NOTHING`,
			notificationID, userID, models.PushStateNone, now)
		if err != nil {
			return created, fmt.Errorf("inserting receipt for %s: %w", userID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created++
		}
	}
	return created, nil
}

// MarkReceiptRead flags a receipt as read. Idempotent.
func (s *Store) MarkReceiptRead(ctx context.Context, notificationID, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_receipts SET read = 1, read_at = ?
		WHERE notification_id = ? AND user_id = ? AND read = 0`,
		time.Now().UTC(), notificationID, userID)
	if err != nil {
		return fmt.Errorf("marking receipt read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either already read, or no such receipt; distinguish for the API.
		var exists int
		err := s.db.QueryRowContext(ctx, `
			SELECT 1 FROM notification_receipts WHERE notification_id = ? AND user_id = ?`,
			notificationID, userID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// MarkReceiptClicked flags a receipt as clicked, implying read.
func (s *Store) MarkReceiptClicked(ctx context.Context, notificationID, userID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_receipts
		SET clicked = 1, clicked_at = ?, read = 1, read_at = COALESCE(read_at, ?)
		WHERE notification_id = ? AND user_id = ?`,
		now, now, notificationID, userID)
	if err != nil {
		return fmt.Errorf("marking receipt clicked: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordPushOutcome stores the per-receipt push delivery result.
// Delivery outcomes never touch the parent notification row.
func (s *Store) RecordPushOutcome(ctx context.Context, notificationID, userID string, state models.PushState, pushErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_receipts SET push_state = ?, push_error = ?
		WHERE notification_id = ? AND user_id = ?`,
		state, pushErr, notificationID, userID)
	if err != nil {
		return fmt.Errorf("recording push outcome: %w", err)
	}
	return nil
}

// UserNotification is one entry of a user's notification feed: the
// notification joined with the user's receipt state.
type UserNotification struct {
	Notification models.Notification        `json:"notification"`
	Receipt      models.NotificationReceipt `json:"receipt"`
}

// ListNotificationsForUser returns a user's notifications newest first.
func (s *Store) ListNotificationsForUser(ctx context.Context, userID string, limit int) ([]*UserNotification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.category, n.sub_event, n.title, n.body, n.link_url,
		       n.priority, n.audience, n.status, n.created_at, n.scheduled_at,
		       r.read, r.read_at, r.clicked, r.clicked_at, r.push_state, r.push_error, r.created_at
		FROM notification_receipts r
		JOIN notifications n ON n.id = r.notification_id
		WHERE r.user_id = ?
		ORDER BY n.created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing notifications for %s: %w", userID, err)
	}
	defer rows.Close()

	var result []*UserNotification
	for rows.Next() {
		var un UserNotification
		var audience string
		var scheduledAt, readAt, clickedAt sql.NullTime
		err := rows.Scan(
			&un.Notification.ID, &un.Notification.Category, &un.Notification.SubEvent,
			&un.Notification.Title, &un.Notification.Body, &un.Notification.LinkURL,
			&un.Notification.Priority, &audience, &un.Notification.Status,
			&un.Notification.CreatedAt, &scheduledAt,
			&un.Receipt.Read, &readAt, &un.Receipt.Clicked, &clickedAt,
			&un.Receipt.PushState, &un.Receipt.PushError, &un.Receipt.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(audience), &un.Notification.Audience); err != nil {
			return nil, fmt.Errorf("decoding audience: %w", err)
		}
		if scheduledAt.Valid {
			t := scheduledAt.Time
			un.Notification.ScheduledAt = &t
		}
		if readAt.Valid {
			t := readAt.Time
			un.Receipt.ReadAt = &t
		}
		if clickedAt.Valid {
			t := clickedAt.Time
			un.Receipt.ClickedAt = &t
		}
		un.Receipt.NotificationID = un.Notification.ID
		un.Receipt.UserID = userID
		result = append(result, &un)
	}
	return result, rows.Err()
}

// CountUnread returns how many unread receipts a user holds.
func (s *Store) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notification_receipts WHERE user_id = ? AND read = 0`,
		userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting unread for %s: %w", userID, err)
	}
	return n, nil
}

// RetentionResult reports what one retention sweep removed.
type RetentionResult struct {
	StandardDeleted int64
	UrgentDeleted   int64
	FailedDeleted   int64
	OrphanReceipts  int64
}

// PurgeAgedNotifications applies the retention policy: standard rows
// past standardMaxAge, urgent rows past urgentMaxAge, failed rows past
// failedMaxAge regardless of priority, then receipts whose notification
// no longer exists.
func (s *Store) PurgeAgedNotifications(ctx context.Context, now time.Time, standardMaxAge, urgentMaxAge, failedMaxAge time.Duration) (RetentionResult, error) {
	var result RetentionResult

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE created_at < ? AND priority != ?`,
		now.Add(-standardMaxAge).UTC(), models.PriorityUrgent)
	if err != nil {
		return result, fmt.Errorf("purging standard notifications: %w", err)
	}
	result.StandardDeleted, _ = res.RowsAffected()

	res, err = s.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE created_at < ? AND priority = ?`,
		now.Add(-urgentMaxAge).UTC(), models.PriorityUrgent)
	if err != nil {
		return result, fmt.Errorf("purging urgent notifications: %w", err)
	}
	result.UrgentDeleted, _ = res.RowsAffected()

	res, err = s.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE created_at < ? AND status = ?`,
		now.Add(-failedMaxAge).UTC(), models.NotificationStatusFailed)
	if err != nil {
		return result, fmt.Errorf("purging failed notifications: %w", err)
	}
	result.FailedDeleted, _ = res.RowsAffected()

	res, err = s.db.ExecContext(ctx, `
		DELETE FROM notification_receipts
		WHERE notification_id NOT IN (SELECT id FROM notifications)`)
	if err != nil {
		return result, fmt.Errorf("sweeping orphan receipts: %w", err)
	}
	result.OrphanReceipts, _ = res.RowsAffected()

	return result, nil
}
