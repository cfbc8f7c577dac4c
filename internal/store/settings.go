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
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/meetfield/meetfield/internal/models"
)

// GetNotificationSetting returns a user's settings, or (nil, nil) when
// the user has never configured preferences. Absence is a meaningful
// state the filter engine treats as allow-all, so it is not an error.
func (s *Store) GetNotificationSetting(ctx context.Context, userID string) (*models.NotificationSetting, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM notification_settings WHERE user_id = ?`, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings for %s: %w", userID, err)
	}

	var setting models.NotificationSetting
	if err := json.Unmarshal([]byte(payload), &setting); err != nil {
		return nil, fmt.Errorf("decoding settings for %s: %w", userID, err)
	}
	setting.UserID = userID
	return &setting, nil
}

// GetNotificationSettings loads settings for many users in one query.
// Users without a row are simply absent from the returned map.
func (s *Store) GetNotificationSettings(ctx context.Context, userIDs []string) (map[string]*models.NotificationSetting, error) {
	result := make(map[string]*models.NotificationSetting, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(userIDs))
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, payload FROM notification_settings WHERE user_id IN (`+
			strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("batch reading settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, payload string
		if err := rows.Scan(&userID, &payload); err != nil {
			return nil, err
		}
		var setting models.NotificationSetting
		if err := json.Unmarshal([]byte(payload), &setting); err != nil {
			return nil, fmt.Errorf("decoding settings for %s: %w", userID, err)
		}
		setting.UserID = userID
		result[userID] = &setting
	}
	return result, rows.Err()
}

// SaveNotificationSetting upserts a user's settings document.
func (s *Store) SaveNotificationSetting(ctx context.Context, setting *models.NotificationSetting) error {
	payload, err := json.Marshal(setting)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_settings (user_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		setting.UserID, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving settings for %s: %w", setting.UserID, err)
	}
	return nil
}
