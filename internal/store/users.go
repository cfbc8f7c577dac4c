// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package store

import (
	"context"
	"fmt"

	"github.com/meetfield/meetfield/internal/models"
)

// EnsureUser registers a user id, keeping the role if the row exists.
func (s *Store) EnsureUser(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, role_id) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET role_id = excluded.role_id`,
		userID, roleID)
	if err != nil {
		return fmt.Errorf("ensuring user %s: %w", userID, err)
	}
	return nil
}

// ResolveAudience maps a tagged audience variant to the user-id set it
// targets. Each kind is bound to exactly one query; there is no string
// dispatch beyond the closed switch.
func (s *Store) ResolveAudience(ctx context.Context, a models.Audience) ([]string, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	switch a.Kind {
	case models.AudienceSingle:
		return []string{a.UserID}, nil
	case models.AudienceExplicit:
		return a.UserIDs, nil
	case models.AudienceAllUsers:
		return s.queryUserIDs(ctx, `SELECT id FROM users`)
	case models.AudienceAllExceptAuthor:
		return s.queryUserIDs(ctx, `SELECT id FROM users WHERE id != ?`, a.AuthorID)
	case models.AudienceRole:
		return s.queryUserIDs(ctx, `SELECT id FROM users WHERE role_id = ?`, a.RoleID)
	case models.AudienceParticipants:
		return s.queryUserIDs(ctx, `
			SELECT DISTINCT user_id FROM participants
			WHERE post_id = ? AND status = ? AND user_id != ''`,
			a.PostID, models.ParticipantStatusActive)
	case models.AudienceWaitlist:
		return s.queryUserIDs(ctx, `
			SELECT DISTINCT user_id FROM waitlist_entries
			WHERE post_id = ? AND user_id != ''`, a.PostID)
	default:
		return nil, fmt.Errorf("unknown audience kind %q", a.Kind)
	}
}

func (s *Store) queryUserIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("resolving audience: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
