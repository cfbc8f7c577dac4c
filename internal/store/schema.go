// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package store

// schema is executed verbatim on startup. Every statement is
// idempotent so repeated startups are harmless.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	role_id    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS meetup_posts (
	id                        TEXT PRIMARY KEY,
	status                    TEXT NOT NULL,
	title                     TEXT NOT NULL,
	start_time                TIMESTAMP NOT NULL,
	capacity                  INTEGER NOT NULL DEFAULT 0,
	current_participant_count INTEGER NOT NULL DEFAULT 0,
	author_id                 TEXT NOT NULL,
	topic_id                  TEXT NOT NULL DEFAULT '',
	created_at                TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at                TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_meetup_posts_status_start
	ON meetup_posts(status, start_time);

CREATE TABLE IF NOT EXISTS participants (
	id         TEXT PRIMARY KEY,
	post_id    TEXT NOT NULL REFERENCES meetup_posts(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL DEFAULT '',
	guest_name TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'ACTIVE',
	joined_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_participants_post ON participants(post_id);

CREATE TABLE IF NOT EXISTS waitlist_entries (
	id         TEXT PRIMARY KEY,
	post_id    TEXT NOT NULL REFERENCES meetup_posts(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL DEFAULT '',
	guest_name TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'WAITING',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_waitlist_post ON waitlist_entries(post_id);

CREATE TABLE IF NOT EXISTS meetup_messages (
	id         TEXT PRIMARY KEY,
	post_id    TEXT NOT NULL REFERENCES meetup_posts(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_post ON meetup_messages(post_id);

CREATE TABLE IF NOT EXISTS notification_settings (
	user_id    TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notifications (
	id           TEXT PRIMARY KEY,
	category     TEXT NOT NULL,
	sub_event    TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL,
	body         TEXT NOT NULL,
	link_url     TEXT NOT NULL DEFAULT '',
	priority     TEXT NOT NULL DEFAULT 'NORMAL',
	audience     TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	scheduled_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notifications_created
	ON notifications(created_at);

CREATE TABLE IF NOT EXISTS notification_receipts (
	notification_id TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	read            INTEGER NOT NULL DEFAULT 0,
	read_at         TIMESTAMP,
	clicked         INTEGER NOT NULL DEFAULT 0,
	clicked_at      TIMESTAMP,
	push_state      TEXT NOT NULL DEFAULT 'NONE',
	push_error      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	UNIQUE(notification_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_receipts_user ON notification_receipts(user_id);

CREATE TABLE IF NOT EXISTS push_subscriptions (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL,
	endpoint           TEXT NOT NULL,
	p256dh_key         TEXT NOT NULL,
	auth_key           TEXT NOT NULL,
	device_fingerprint TEXT NOT NULL,
	device_type        TEXT NOT NULL DEFAULT 'unknown',
	enabled            INTEGER NOT NULL DEFAULT 1,
	created_at         TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL,
	UNIQUE(user_id, device_fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_push_subs_user ON push_subscriptions(user_id);

CREATE TABLE IF NOT EXISTS reminder_log (
	post_id        TEXT NOT NULL,
	kind           TEXT NOT NULL,
	offset_minutes INTEGER NOT NULL,
	sent_at        TIMESTAMP NOT NULL,
	UNIQUE(post_id, kind, offset_minutes)
);
`

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}
