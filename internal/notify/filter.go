// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

// Package notify decides who gets told about an event and gets it to
// them: the filter engine evaluates per-user preferences, the
// dispatcher persists notifications, resolves audiences, and fans
// delivery out to the push adapter.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/metrics"
	"github.com/meetfield/meetfield/internal/models"
)

// SettingsReader is the slice of the store the filter engine needs.
type SettingsReader interface {
	GetNotificationSetting(ctx context.Context, userID string) (*models.NotificationSetting, error)
	GetNotificationSettings(ctx context.Context, userIDs []string) (map[string]*models.NotificationSetting, error)
}

// FilterEngine evaluates whether an event should notify a user, based
// on the user's stored preferences. A user with no settings row is
// always allowed: absence means "never configured", not "opted out".
type FilterEngine struct {
	settings SettingsReader
	logger   zerolog.Logger
	now      func() time.Time
}

// NewFilterEngine builds the engine. The clock is injectable for tests.
func NewFilterEngine(settings SettingsReader, logger zerolog.Logger) *FilterEngine {
	return &FilterEngine{
		settings: settings,
		logger:   logger.With().Str("component", "notify-filter").Logger(),
		now:      time.Now,
	}
}

// SetClock overrides the engine's clock.
func (e *FilterEngine) SetClock(now func() time.Time) {
	e.now = now
}

// ShouldSend decides for a single user.
func (e *FilterEngine) ShouldSend(ctx context.Context, userID string, category models.NotificationCategory, sub models.NotificationSubEvent, ec models.EventContext) (bool, error) {
	setting, err := e.settings.GetNotificationSetting(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("loading settings for %s: %w", userID, err)
	}
	allowed := e.decide(setting, category, sub, ec)
	e.record(category, allowed)
	return allowed, nil
}

// FilterUsers decides for many users with a single settings lookup and
// returns the allowed subset. Order is not significant.
func (e *FilterEngine) FilterUsers(ctx context.Context, userIDs []string, category models.NotificationCategory, sub models.NotificationSubEvent, ec models.EventContext) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	settings, err := e.settings.GetNotificationSettings(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("batch loading settings: %w", err)
	}

	allowed := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		ok := e.decide(settings[userID], category, sub, ec)
		e.record(category, ok)
		if ok {
			allowed = append(allowed, userID)
		}
	}
	return allowed, nil
}

func (e *FilterEngine) record(category models.NotificationCategory, allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	metrics.FilterDecisions.WithLabelValues(string(category), decision).Inc()
}

// decide is the pure decision function. A nil setting fails open.
func (e *FilterEngine) decide(setting *models.NotificationSetting, category models.NotificationCategory, sub models.NotificationSubEvent, ec models.EventContext) bool {
	if setting == nil {
		return true
	}
	if e.inDNDWindow(setting, e.now()) {
		return false
	}

	switch category {
	case models.CategoryNewPost:
		return e.allowNewPost(setting, ec)
	case models.CategoryParticipating, models.CategoryOwnMeetup:
		toggles, qualifiers, ok := setting.CategoryToggles(category)
		if !ok {
			return false
		}
		return allowSubEvent(toggles, qualifiers, sub, ec)
	default:
		e.logger.Warn().Str("category", string(category)).Msg("Unknown notification category")
		return false
	}
}

func (e *FilterEngine) allowNewPost(setting *models.NotificationSetting, ec models.EventContext) bool {
	if !setting.NewPostEnabled {
		return false
	}
	switch setting.NewPostMode {
	case models.NewPostModeAll, "":
		return true
	case models.NewPostModeFavorites:
		return containsString(setting.FavoriteTopicIDs, ec.TopicID)
	case models.NewPostModeExplicit:
		return containsString(setting.NewPostTopicIDs, ec.TopicID)
	default:
		return false
	}
}

func allowSubEvent(toggles models.SubEventToggles, qualifiers models.ReminderQualifiers, sub models.NotificationSubEvent, ec models.EventContext) bool {
	if !toggles.Enabled(sub) {
		return false
	}
	switch sub {
	case models.SubEventBeforeStart:
		if qualifiers.BeforeStartMinutes != ec.MinutesBefore {
			return false
		}
		if qualifiers.BeforeStartOnlyFull && !ec.MeetupFull {
			return false
		}
	case models.SubEventStartingNow:
		if qualifiers.StartingNowOnlyFull && !ec.MeetupFull {
			return false
		}
	}
	return true
}

// inDNDWindow reports whether now falls inside the user's quiet hours.
// The window [start, end) spans midnight when start > end.
func (e *FilterEngine) inDNDWindow(setting *models.NotificationSetting, now time.Time) bool {
	if !setting.DNDEnabled {
		return false
	}
	if !containsInt(setting.DNDDays, int(now.Weekday())) {
		return false
	}

	start, okStart := parseClock(setting.DNDStart)
	end, okEnd := parseClock(setting.DNDEnd)
	if !okStart || !okEnd {
		e.logger.Warn().
			Str("user_id", setting.UserID).
			Str("dnd_start", setting.DNDStart).
			Str("dnd_end", setting.DNDEnd).
			Msg("Unparseable DND window, ignoring")
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	if start <= end {
		return minute >= start && minute < end
	}
	// Window spans midnight, e.g. 23:00-07:00.
	return minute >= start || minute < end
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	min, err := strconv.Atoi(parts[1])
	if err != nil || min < 0 || min > 59 {
		return 0, false
	}
	return hour*60 + min, true
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(set []int, v int) bool {
	for _, i := range set {
		if i == v {
			return true
		}
	}
	return false
}
