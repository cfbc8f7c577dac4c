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

	"github.com/google/uuid"

	"github.com/meetfield/meetfield/internal/models"
)

// ErrNotFound is returned by point reads when no row matches.
var ErrNotFound = errors.New("store: not found")

const meetupColumns = `id, status, title, start_time, capacity,
	current_participant_count, author_id, topic_id, created_at, updated_at`

func scanMeetup(row interface{ Scan(...any) error }) (*models.MeetupPost, error) {
	var p models.MeetupPost
	err := row.Scan(&p.ID, &p.Status, &p.Title, &p.StartTime, &p.Capacity,
		&p.CurrentParticipantCount, &p.AuthorID, &p.TopicID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateMeetupPost inserts a new post. Post creation is a user action
// arriving through the API; the scheduler never creates posts.
func (s *Store) CreateMeetupPost(ctx context.Context, p *models.MeetupPost) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.MeetupStatusOpen
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meetup_posts
			(id, status, title, start_time, capacity, current_participant_count,
			 author_id, topic_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Status, p.Title, p.StartTime.UTC(), p.Capacity,
		p.CurrentParticipantCount, p.AuthorID, p.TopicID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting meetup post: %w", err)
	}

	s.emit("meetup_posts", ChangeInsert, p)
	return nil
}

// GetMeetupPost returns one post by id, or ErrNotFound.
func (s *Store) GetMeetupPost(ctx context.Context, id string) (*models.MeetupPost, error) {
	p, err := scanMeetup(s.db.QueryRowContext(ctx,
		`SELECT `+meetupColumns+` FROM meetup_posts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading meetup post %s: %w", id, err)
	}
	return p, nil
}

// MeetupFilter narrows ListMeetupPosts. Zero values mean "no filter".
type MeetupFilter struct {
	Statuses []models.MeetupStatus
	TopicID  string
}

// ListMeetupPosts returns posts matching the filter, ordered by start
// time ascending. This is the fetch operation behind both the list view
// and its polling fallback.
func (s *Store) ListMeetupPosts(ctx context.Context, filter MeetupFilter) ([]*models.MeetupPost, error) {
	query := `SELECT ` + meetupColumns + ` FROM meetup_posts`
	var conds []string
	var args []any
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.TopicID != "" {
		conds = append(conds, "topic_id = ?")
		args = append(args, filter.TopicID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_time ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing meetup posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.MeetupPost
	for rows.Next() {
		p, err := scanMeetup(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning meetup post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// TransitionMeetups bulk-advances every post in state `from` matching
// the predicate to state `to`, and returns the transitioned posts. The
// transition must be in the allowed state graph; an attempt outside it
// is a caller bug and fails without touching rows.
//
// The UPDATE re-checks the status predicate, so a concurrent run of the
// same tick selects nothing on its second pass.
func (s *Store) TransitionMeetups(ctx context.Context, from, to models.MeetupStatus, predicate string, args ...any) ([]*models.MeetupPost, error) {
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("illegal lifecycle transition %s -> %s", from, to)
	}

	selectArgs := append([]any{from}, args...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+meetupColumns+` FROM meetup_posts WHERE status = ? AND `+predicate,
		selectArgs...)
	if err != nil {
		return nil, fmt.Errorf("selecting %s posts: %w", from, err)
	}
	var posts []*models.MeetupPost
	for rows.Next() {
		p, err := scanMeetup(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning %s post: %w", from, err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(posts) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	var transitioned []*models.MeetupPost
	for _, p := range posts {
		res, err := s.db.ExecContext(ctx,
			`UPDATE meetup_posts SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to, now, p.ID, from)
		if err != nil {
			return transitioned, fmt.Errorf("transitioning post %s to %s: %w", p.ID, to, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			// Another run got there first.
			continue
		}
		p.Status = to
		p.UpdatedAt = now
		transitioned = append(transitioned, p)
		s.emit("meetup_posts", ChangeUpdate, p)
	}
	return transitioned, nil
}

// SelectDueBeforeStart returns posts whose start time falls inside the
// (now, now+offset] reminder window and for which no before-start
// reminder at this offset has been logged yet.
func (s *Store) SelectDueBeforeStart(ctx context.Context, now time.Time, offsetMinutes int) ([]*models.MeetupPost, error) {
	windowEnd := now.Add(time.Duration(offsetMinutes) * time.Minute)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+meetupColumns+` FROM meetup_posts p
		WHERE p.status IN (?, ?)
		  AND p.start_time > ?
		  AND p.start_time <= ?
		  AND NOT EXISTS (
			SELECT 1 FROM reminder_log r
			WHERE r.post_id = p.id AND r.kind = 'before_start' AND r.offset_minutes = ?
		  )`,
		models.MeetupStatusOpen, models.MeetupStatusFull,
		now.UTC(), windowEnd.UTC(), offsetMinutes)
	if err != nil {
		return nil, fmt.Errorf("selecting before-start reminders: %w", err)
	}
	defer rows.Close()

	var posts []*models.MeetupPost
	for rows.Next() {
		p, err := scanMeetup(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// SelectDueStartingNow returns non-terminal posts whose start time has
// passed within the grace window and which have not yet produced a
// starting-now notification.
func (s *Store) SelectDueStartingNow(ctx context.Context, now time.Time, grace time.Duration) ([]*models.MeetupPost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+meetupColumns+` FROM meetup_posts p
		WHERE p.status IN (?, ?, ?)
		  AND p.start_time <= ?
		  AND p.start_time > ?
		  AND NOT EXISTS (
			SELECT 1 FROM reminder_log r
			WHERE r.post_id = p.id AND r.kind = 'starting_now'
		  )`,
		models.MeetupStatusOpen, models.MeetupStatusFull, models.MeetupStatusInProgress,
		now.UTC(), now.Add(-grace).UTC())
	if err != nil {
		return nil, fmt.Errorf("selecting starting-now reminders: %w", err)
	}
	defer rows.Close()

	var posts []*models.MeetupPost
	for rows.Next() {
		p, err := scanMeetup(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// TryLogReminder records that a reminder fired for a post. Returns true
// if this call claimed the reminder, false if an earlier run already
// logged it. The unique key makes reminder sends idempotent across
// overlapping ticks.
func (s *Store) TryLogReminder(ctx context.Context, postID, kind string, offsetMinutes int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO reminder_log (post_id, kind, offset_minutes, sent_at)
		VALUES (?, ?, ?, ?)`,
		postID, kind, offsetMinutes, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("logging reminder %s/%s: %w", postID, kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
