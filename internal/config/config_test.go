// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package config

import (
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration should validate, got: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults pass",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "zero lifecycle interval",
			mutate:  func(c *Config) { c.Scheduler.LifecycleInterval = 0 },
			wantErr: true,
		},
		{
			name:    "reminder tick slower than shortest offset",
			mutate:  func(c *Config) { c.Scheduler.ReminderInterval = 15 * time.Minute },
			wantErr: true,
		},
		{
			name:    "standard retention exceeds urgent",
			mutate:  func(c *Config) { c.Retention.StandardMaxAge = 90 * 24 * time.Hour },
			wantErr: true,
		},
		{
			name: "push enabled without keys",
			mutate: func(c *Config) {
				c.Push.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "push enabled with keys",
			mutate: func(c *Config) {
				c.Push.Enabled = true
				c.Push.VAPIDPublicKey = "pub"
				c.Push.VAPIDPrivateKey = "priv"
				c.Push.Subscriber = "mailto:ops@example.com"
			},
			wantErr: false,
		},
		{
			name:    "list poll interval must exceed debounce",
			mutate:  func(c *Config) { c.Feed.ListPollInterval = 100 * time.Millisecond },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"HTTP_PORT", "server.port"},
		{"DATABASE_PATH", "database.path"},
		{"NATS_STREAM_NAME", "nats.stream_name"},
		{"SCHEDULER_LIFECYCLE_INTERVAL", "scheduler.lifecycle_interval"},
		{"VAPID_PUBLIC_KEY", "push.vapid_public_key"},
		{"LOG_LEVEL", "logging.level"},
		{"SOME_RANDOM_VAR", ""},
		{"PATH", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}
