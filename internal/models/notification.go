// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package models

import "time"

// NotificationCategory is the fixed top-level notification taxonomy.
type NotificationCategory string

const (
	// CategoryNewPost covers notifications about newly published meetup posts.
	CategoryNewPost NotificationCategory = "new_post"

	// CategoryParticipating covers events on meetups the user has joined.
	CategoryParticipating NotificationCategory = "participating_meetup"

	// CategoryOwnMeetup covers events on meetups the user authored.
	CategoryOwnMeetup NotificationCategory = "own_meetup"
)

// NotificationSubEvent is the fixed set of social/lifecycle sub-events for
// the participating and own-meetup categories.
type NotificationSubEvent string

const (
	SubEventMemberJoined NotificationSubEvent = "member_joined"
	SubEventMemberLeft   NotificationSubEvent = "member_left"
	SubEventTimeChanged  NotificationSubEvent = "time_changed"
	SubEventCancelled    NotificationSubEvent = "cancelled"
	SubEventNowFull      NotificationSubEvent = "now_full"
	SubEventBeforeStart  NotificationSubEvent = "before_start"
	SubEventStartingNow  NotificationSubEvent = "starting_now"
)

// NotificationPriority orders notifications for retention and display.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "LOW"
	PriorityNormal NotificationPriority = "NORMAL"
	PriorityHigh   NotificationPriority = "HIGH"
	PriorityUrgent NotificationPriority = "URGENT"
)

// NotificationStatus tracks dispatch progress. Status advances
// monotonically SENDING -> SENT (or -> FAILED); a notification is never
// mutated after a terminal status except by the retention sweep.
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "PENDING"
	NotificationStatusSending NotificationStatus = "SENDING"
	NotificationStatusSent    NotificationStatus = "SENT"
	NotificationStatusFailed  NotificationStatus = "FAILED"
)

// Notification is one dispatched (or scheduled) notification. The audience
// descriptor is a closed tagged variant, not a free-form string.
type Notification struct {
	ID          string               `json:"id"`
	Category    NotificationCategory `json:"category"`
	SubEvent    NotificationSubEvent `json:"subEvent,omitempty"`
	Title       string               `json:"title"`
	Body        string               `json:"body"`
	LinkURL     string               `json:"linkUrl,omitempty"`
	Priority    NotificationPriority `json:"priority"`
	Audience    Audience             `json:"audience"`
	Status      NotificationStatus   `json:"status"`
	CreatedAt   time.Time            `json:"createdAt"`
	ScheduledAt *time.Time           `json:"scheduledAt,omitempty"`
}

// PushState records the per-receipt outcome of push delivery.
type PushState string

const (
	PushStateNone      PushState = "NONE"      // no delivery attempted (e.g. no subscriptions)
	PushStateDelivered PushState = "DELIVERED" // at least one device accepted the payload
	PushStateFailed    PushState = "FAILED"    // every device attempt failed
)

// NotificationReceipt is one row per (notification, recipient). Uniqueness
// on that pair is enforced by the store with skip-on-conflict semantics.
type NotificationReceipt struct {
	NotificationID string     `json:"notificationId"`
	UserID         string     `json:"userId"`
	Read           bool       `json:"read"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	Clicked        bool       `json:"clicked"`
	ClickedAt      *time.Time `json:"clickedAt,omitempty"`
	PushState      PushState  `json:"pushState"`
	PushError      string     `json:"pushError,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// EventContext carries the event-side facts the filter engine matches
// against a user's settings.
type EventContext struct {
	// PostID identifies the meetup the event concerns, when applicable.
	PostID string

	// TopicID is the meetup's topic, matched against new-post topic filters.
	TopicID string

	// MinutesBefore is the reminder offset of a before-start event.
	// Zero for all other sub-events.
	MinutesBefore int

	// MeetupFull reports whether the meetup had reached capacity at event
	// time. Matched against the "only when full" qualifiers.
	MeetupFull bool
}
