// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package notify

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/models"
)

type mockSettings struct {
	settings map[string]*models.NotificationSetting
	batches  int
}

func (m *mockSettings) GetNotificationSetting(_ context.Context, userID string) (*models.NotificationSetting, error) {
	return m.settings[userID], nil
}

func (m *mockSettings) GetNotificationSettings(_ context.Context, userIDs []string) (map[string]*models.NotificationSetting, error) {
	m.batches++
	result := make(map[string]*models.NotificationSetting)
	for _, id := range userIDs {
		if s, ok := m.settings[id]; ok {
			result[id] = s
		}
	}
	return result, nil
}

func newTestEngine(settings map[string]*models.NotificationSetting, now time.Time) (*FilterEngine, *mockSettings) {
	mock := &mockSettings{settings: settings}
	engine := NewFilterEngine(mock, zerolog.Nop())
	engine.SetClock(func() time.Time { return now })
	return engine, mock
}

// aMonday returns a fixed Monday at the given clock time.
func aMonday(hour, min int) time.Time {
	return time.Date(2026, 8, 31, hour, min, 0, 0, time.UTC) // 2026-08-31 is a Monday
}

func TestShouldSendFailOpen(t *testing.T) {
	engine, _ := newTestEngine(nil, aMonday(12, 0))
	ok, err := engine.ShouldSend(context.Background(), "unconfigured",
		models.CategoryNewPost, "", models.EventContext{TopicID: "t1"})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("user without settings row was denied; absence must fail open")
	}
}

func TestDNDWindow(t *testing.T) {
	monday := int(time.Monday)
	base := &models.NotificationSetting{
		DNDEnabled:     true,
		DNDStart:       "23:00",
		DNDEnd:         "07:00",
		DNDDays:        []int{monday},
		NewPostEnabled: true,
		NewPostMode:    models.NewPostModeAll,
	}

	tests := []struct {
		name string
		now  time.Time
		want bool // want = allowed
	}{
		{"late evening inside window", aMonday(23, 30), false},
		{"early morning inside window", aMonday(3, 0), false},
		{"midday outside window", aMonday(12, 0), true},
		{"window start boundary", aMonday(23, 0), false},
		{"window end boundary is exclusive", aMonday(7, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(map[string]*models.NotificationSetting{"u1": base}, tt.now)
			ok, err := engine.ShouldSend(context.Background(), "u1",
				models.CategoryNewPost, "", models.EventContext{})
			if err != nil {
				t.Fatal(err)
			}
			if ok != tt.want {
				t.Errorf("allowed = %v, want %v", ok, tt.want)
			}
		})
	}

	t.Run("wrong weekday disables window", func(t *testing.T) {
		sunday := time.Date(2026, 8, 30, 23, 30, 0, 0, time.UTC)
		engine, _ := newTestEngine(map[string]*models.NotificationSetting{"u1": base}, sunday)
		ok, _ := engine.ShouldSend(context.Background(), "u1",
			models.CategoryNewPost, "", models.EventContext{})
		if !ok {
			t.Error("DND applied on a weekday outside the configured set")
		}
	})

	t.Run("non-spanning window", func(t *testing.T) {
		daytime := *base
		daytime.DNDStart = "09:00"
		daytime.DNDEnd = "17:00"
		engine, _ := newTestEngine(map[string]*models.NotificationSetting{"u1": &daytime}, aMonday(12, 0))
		ok, _ := engine.ShouldSend(context.Background(), "u1",
			models.CategoryNewPost, "", models.EventContext{})
		if ok {
			t.Error("midday send allowed inside a 09:00-17:00 window")
		}
	})
}

func TestNewPostModes(t *testing.T) {
	tests := []struct {
		name    string
		setting models.NotificationSetting
		topicID string
		want    bool
	}{
		{
			name:    "disabled category denies",
			setting: models.NotificationSetting{NewPostEnabled: false, NewPostMode: models.NewPostModeAll},
			topicID: "t1",
			want:    false,
		},
		{
			name:    "mode all allows any topic",
			setting: models.NotificationSetting{NewPostEnabled: true, NewPostMode: models.NewPostModeAll},
			topicID: "t1",
			want:    true,
		},
		{
			name: "favorites mode allows favorite topic",
			setting: models.NotificationSetting{
				NewPostEnabled: true, NewPostMode: models.NewPostModeFavorites,
				FavoriteTopicIDs: []string{"t1", "t2"},
			},
			topicID: "t1",
			want:    true,
		},
		{
			name: "favorites mode denies other topic",
			setting: models.NotificationSetting{
				NewPostEnabled: true, NewPostMode: models.NewPostModeFavorites,
				FavoriteTopicIDs: []string{"t1"},
			},
			topicID: "t9",
			want:    false,
		},
		{
			name: "explicit mode matches configured list",
			setting: models.NotificationSetting{
				NewPostEnabled: true, NewPostMode: models.NewPostModeExplicit,
				NewPostTopicIDs: []string{"t3"},
			},
			topicID: "t3",
			want:    true,
		},
		{
			name: "explicit mode ignores favorites",
			setting: models.NotificationSetting{
				NewPostEnabled: true, NewPostMode: models.NewPostModeExplicit,
				NewPostTopicIDs:  []string{"t3"},
				FavoriteTopicIDs: []string{"t9"},
			},
			topicID: "t9",
			want:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.setting
			engine, _ := newTestEngine(map[string]*models.NotificationSetting{"u1": &s}, aMonday(12, 0))
			ok, err := engine.ShouldSend(context.Background(), "u1",
				models.CategoryNewPost, "", models.EventContext{TopicID: tt.topicID})
			if err != nil {
				t.Fatal(err)
			}
			if ok != tt.want {
				t.Errorf("allowed = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestSubEventMatrix(t *testing.T) {
	setting := &models.NotificationSetting{
		Participating: models.SubEventToggles{
			MemberJoined: true,
			BeforeStart:  true,
			StartingNow:  true,
		},
		ParticipatingQualifiers: models.ReminderQualifiers{
			BeforeStartMinutes:  30,
			BeforeStartOnlyFull: true,
			StartingNowOnlyFull: false,
		},
	}

	tests := []struct {
		name string
		sub  models.NotificationSubEvent
		ec   models.EventContext
		want bool
	}{
		{"enabled toggle allows", models.SubEventMemberJoined, models.EventContext{}, true},
		{"disabled toggle denies", models.SubEventCancelled, models.EventContext{}, false},
		{"before-start matching offset and full", models.SubEventBeforeStart,
			models.EventContext{MinutesBefore: 30, MeetupFull: true}, true},
		{"before-start offset mismatch", models.SubEventBeforeStart,
			models.EventContext{MinutesBefore: 60, MeetupFull: true}, false},
		{"before-start only-full unmet", models.SubEventBeforeStart,
			models.EventContext{MinutesBefore: 30, MeetupFull: false}, false},
		{"starting-now without only-full", models.SubEventStartingNow,
			models.EventContext{MeetupFull: false}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(map[string]*models.NotificationSetting{"u1": setting}, aMonday(12, 0))
			ok, err := engine.ShouldSend(context.Background(), "u1",
				models.CategoryParticipating, tt.sub, tt.ec)
			if err != nil {
				t.Fatal(err)
			}
			if ok != tt.want {
				t.Errorf("allowed = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestFilterUsersBatch(t *testing.T) {
	deny := &models.NotificationSetting{NewPostEnabled: false}
	allow := &models.NotificationSetting{NewPostEnabled: true, NewPostMode: models.NewPostModeAll}

	engine, mock := newTestEngine(map[string]*models.NotificationSetting{
		"denied":  deny,
		"allowed": allow,
	}, aMonday(12, 0))

	got, err := engine.FilterUsers(context.Background(),
		[]string{"denied", "allowed", "unconfigured"},
		models.CategoryNewPost, "", models.EventContext{})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{"allowed": true, "unconfigured": true}
	if len(got) != len(want) {
		t.Fatalf("filtered set = %v, want allowed+unconfigured", got)
	}
	for _, id := range got {
		if !want[id] {
			t.Errorf("unexpected user %s in filtered set", id)
		}
	}
	if mock.batches != 1 {
		t.Errorf("settings lookups = %d, want exactly 1 batched query", mock.batches)
	}
}
