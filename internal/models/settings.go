// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package models

// NewPostMode selects which new-post notifications a user receives.
type NewPostMode string

const (
	NewPostModeAll       NewPostMode = "all"
	NewPostModeFavorites NewPostMode = "favorites"
	NewPostModeExplicit  NewPostMode = "explicit"
)

// AllowedReminderOffsets is the enumerated set of before-start reminder
// offsets, in minutes.
var AllowedReminderOffsets = []int{10, 30, 60, 180}

// ValidReminderOffset reports whether minutes is an allowed offset.
func ValidReminderOffset(minutes int) bool {
	for _, m := range AllowedReminderOffsets {
		if m == minutes {
			return true
		}
	}
	return false
}

// SubEventToggles is the boolean matrix for one notification category,
// keyed by sub-event.
type SubEventToggles struct {
	MemberJoined bool `json:"memberJoined"`
	MemberLeft   bool `json:"memberLeft"`
	TimeChanged  bool `json:"timeChanged"`
	Cancelled    bool `json:"cancelled"`
	NowFull      bool `json:"nowFull"`
	BeforeStart  bool `json:"beforeStart"`
	StartingNow  bool `json:"startingNow"`
}

// Enabled reports whether the toggle for the given sub-event is on.
func (t SubEventToggles) Enabled(sub NotificationSubEvent) bool {
	switch sub {
	case SubEventMemberJoined:
		return t.MemberJoined
	case SubEventMemberLeft:
		return t.MemberLeft
	case SubEventTimeChanged:
		return t.TimeChanged
	case SubEventCancelled:
		return t.Cancelled
	case SubEventNowFull:
		return t.NowFull
	case SubEventBeforeStart:
		return t.BeforeStart
	case SubEventStartingNow:
		return t.StartingNow
	default:
		return false
	}
}

// ReminderQualifiers holds the per-category reminder tuning: the chosen
// minute offset for before-start, and the "only when the meetup is full"
// qualifiers for the two start-related sub-events.
type ReminderQualifiers struct {
	BeforeStartMinutes  int  `json:"beforeStartMinutes"`
	BeforeStartOnlyFull bool `json:"beforeStartOnlyFull"`
	StartingNowOnlyFull bool `json:"meetingStartOnlyFull"`
}

// NotificationSetting holds one user's notification preferences. At most
// one row exists per user; absence of a row is a valid state meaning
// "never configured", which the filter engine treats as allow-all.
type NotificationSetting struct {
	UserID string `json:"userId"`

	// Do-not-disturb window. Start and End are "HH:MM" times of day;
	// when Start > End the window spans midnight. Days holds active
	// weekdays, 0=Sunday .. 6=Saturday.
	DNDEnabled bool   `json:"dndEnabled"`
	DNDStart   string `json:"dndStart"`
	DNDEnd     string `json:"dndEnd"`
	DNDDays    []int  `json:"dndDays"`

	// New-post category.
	NewPostEnabled  bool        `json:"newPostEnabled"`
	NewPostMode     NewPostMode `json:"newPostMode"`
	NewPostTopicIDs []string    `json:"newPostTopicIds"`

	// FavoriteTopicIDs is the user's favorites set, consulted when
	// NewPostMode is favorites.
	FavoriteTopicIDs []string `json:"favoriteTopicIds"`

	// Per-category sub-event matrices and reminder qualifiers.
	Participating           SubEventToggles    `json:"participating"`
	ParticipatingQualifiers ReminderQualifiers `json:"participatingQualifiers"`
	OwnMeetup               SubEventToggles    `json:"ownMeetup"`
	OwnMeetupQualifiers     ReminderQualifiers `json:"ownMeetupQualifiers"`
}

// CategoryToggles returns the sub-event matrix and reminder qualifiers
// for the given category. Returns false for CategoryNewPost, which is not
// matrix-driven.
func (s *NotificationSetting) CategoryToggles(cat NotificationCategory) (SubEventToggles, ReminderQualifiers, bool) {
	switch cat {
	case CategoryParticipating:
		return s.Participating, s.ParticipatingQualifiers, true
	case CategoryOwnMeetup:
		return s.OwnMeetup, s.OwnMeetupQualifiers, true
	default:
		return SubEventToggles{}, ReminderQualifiers{}, false
	}
}
