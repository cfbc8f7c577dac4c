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

// AddParticipant inserts a participant and bumps the parent's counter.
// When the post reaches capacity its status advances to FULL, which is
// the only lifecycle transition not driven by the clock.
func (s *Store) AddParticipant(ctx context.Context, part *models.Participant) (*models.MeetupPost, error) {
	if part.ID == "" {
		part.ID = uuid.NewString()
	}
	if part.Status == "" {
		part.Status = models.ParticipantStatusActive
	}
	part.JoinedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, post_id, user_id, guest_name, status, joined_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		part.ID, part.PostID, part.UserID, part.GuestName, part.Status, part.JoinedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting participant: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE meetup_posts
		SET current_participant_count = current_participant_count + 1, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), part.PostID)
	if err != nil {
		return nil, fmt.Errorf("incrementing participant count: %w", err)
	}

	post, err := s.GetMeetupPost(ctx, part.PostID)
	if err != nil {
		return nil, err
	}
	if post.Status == models.MeetupStatusOpen && post.IsFull() {
		_, err = s.db.ExecContext(ctx,
			`UPDATE meetup_posts SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			models.MeetupStatusFull, time.Now().UTC(), post.ID, models.MeetupStatusOpen)
		if err != nil {
			return nil, fmt.Errorf("marking post full: %w", err)
		}
		post.Status = models.MeetupStatusFull
	}

	s.emit("participants", ChangeInsert, part)
	s.emit("meetup_posts", ChangeUpdate, post)
	return post, nil
}

// RemoveParticipant deletes a participant row and decrements the
// parent's counter. The emitted delete payload deliberately omits the
// parent id, matching the transport's behavior for child deletions.
func (s *Store) RemoveParticipant(ctx context.Context, participantID string) error {
	var postID string
	err := s.db.QueryRowContext(ctx,
		`SELECT post_id FROM participants WHERE id = ?`, participantID).Scan(&postID)
	if err != nil {
		return fmt.Errorf("reading participant %s: %w", participantID, err)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM participants WHERE id = ?`, participantID)
	if err != nil {
		return fmt.Errorf("deleting participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE meetup_posts
		SET current_participant_count = MAX(current_participant_count - 1, 0), updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), postID)
	if err != nil {
		return fmt.Errorf("decrementing participant count: %w", err)
	}

	s.emit("participants", ChangeDelete, &models.Participant{ID: participantID})
	return nil
}

// ListParticipants returns active participants of a post.
func (s *Store) ListParticipants(ctx context.Context, postID string) ([]*models.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_id, user_id, guest_name, status, joined_at
		FROM participants WHERE post_id = ? ORDER BY joined_at ASC`, postID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	defer rows.Close()

	var parts []*models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.PostID, &p.UserID, &p.GuestName, &p.Status, &p.JoinedAt); err != nil {
			return nil, err
		}
		parts = append(parts, &p)
	}
	return parts, rows.Err()
}

// AddWaitlistEntry appends a waitlist entry to a post.
func (s *Store) AddWaitlistEntry(ctx context.Context, entry *models.WaitlistEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = models.WaitlistStatusWaiting
	}
	entry.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO waitlist_entries (id, post_id, user_id, guest_name, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.PostID, entry.UserID, entry.GuestName, entry.Status, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting waitlist entry: %w", err)
	}

	s.emit("waitlist_entries", ChangeInsert, entry)
	return nil
}

// RemoveWaitlistEntry deletes a waitlist entry. As with participants,
// the delete payload carries only the child id.
func (s *Store) RemoveWaitlistEntry(ctx context.Context, entryID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM waitlist_entries WHERE id = ?`, entryID)
	if err != nil {
		return fmt.Errorf("deleting waitlist entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.emit("waitlist_entries", ChangeDelete, &models.WaitlistEntry{ID: entryID})
	return nil
}

// ListWaitlist returns the waitlist of a post in arrival order.
func (s *Store) ListWaitlist(ctx context.Context, postID string) ([]*models.WaitlistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_id, user_id, guest_name, status, created_at
		FROM waitlist_entries WHERE post_id = ? ORDER BY created_at ASC`, postID)
	if err != nil {
		return nil, fmt.Errorf("listing waitlist: %w", err)
	}
	defer rows.Close()

	var entries []*models.WaitlistEntry
	for rows.Next() {
		var e models.WaitlistEntry
		if err := rows.Scan(&e.ID, &e.PostID, &e.UserID, &e.GuestName, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// AddMessage appends a comment to a post.
func (s *Store) AddMessage(ctx context.Context, msg *models.MeetupMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meetup_messages (id, post_id, user_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.PostID, msg.UserID, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.emit("meetup_messages", ChangeInsert, msg)
	return nil
}

// ListMessages returns a post's comments newest first.
func (s *Store) ListMessages(ctx context.Context, postID string) ([]*models.MeetupMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_id, user_id, body, created_at
		FROM meetup_messages WHERE post_id = ? ORDER BY created_at DESC`, postID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.MeetupMessage
	for rows.Next() {
		var m models.MeetupMessage
		if err := rows.Scan(&m.ID, &m.PostID, &m.UserID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}
