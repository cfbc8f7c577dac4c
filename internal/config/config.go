// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

// Package config loads and validates the Meetfield server configuration.
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, YAML config file, built-in
// defaults. See koanf.go for the loader.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Meetfield server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	NATS      NATSConfig      `koanf:"nats"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Retention RetentionConfig `koanf:"retention"`
	Notify    NotifyConfig    `koanf:"notify"`
	Push      PushConfig      `koanf:"push"`
	Feed      FeedConfig      `koanf:"feed"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the SQLite database file. Use ":memory:" for tests.
	Path string `koanf:"path"`
}

// NATSConfig configures the change feed bus.
type NATSConfig struct {
	// URL of the NATS server. Ignored when EmbeddedServer is true, in
	// which case the embedded server's client URL is used.
	URL string `koanf:"url"`

	// EmbeddedServer runs an in-process NATS JetStream server, the
	// default for single-instance deployments.
	EmbeddedServer bool `koanf:"embedded_server"`

	// StoreDir is the JetStream storage directory for the embedded server.
	StoreDir string `koanf:"store_dir"`

	// MaxMemory and MaxStore bound embedded JetStream resource usage.
	MaxMemory int64 `koanf:"max_memory"`
	MaxStore  int64 `koanf:"max_store"`

	// StreamName is the JetStream stream holding row-change events.
	StreamName string `koanf:"stream_name"`

	// StreamRetentionDays bounds how long change events are retained.
	StreamRetentionDays int `koanf:"stream_retention_days"`

	// DurableName and QueueGroup identify the durable consumer used by
	// in-process subscribers.
	DurableName string `koanf:"durable_name"`
	QueueGroup  string `koanf:"queue_group"`

	// SubscribersCount is the number of concurrent subscriber workers.
	SubscribersCount int `koanf:"subscribers_count"`

	// Reconnection tuning.
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// SchedulerConfig configures the periodic lifecycle jobs.
type SchedulerConfig struct {
	// LifecycleInterval is the cadence of the main lifecycle tick.
	LifecycleInterval time.Duration `koanf:"lifecycle_interval"`

	// ReminderInterval is the cadence of the short-horizon reminder tick.
	// It must be short enough to hit every reminder-offset window.
	ReminderInterval time.Duration `koanf:"reminder_interval"`

	// CompletionCutoff is how long after startTime an IN_PROGRESS post
	// completes and an ungated OPEN post expires.
	CompletionCutoff time.Duration `koanf:"completion_cutoff"`
}

// RetentionConfig configures the daily notification purge.
type RetentionConfig struct {
	Interval       time.Duration `koanf:"interval"`
	StandardMaxAge time.Duration `koanf:"standard_max_age"`
	UrgentMaxAge   time.Duration `koanf:"urgent_max_age"`
	FailedMaxAge   time.Duration `koanf:"failed_max_age"`
}

// NotifyConfig configures the notification dispatcher.
type NotifyConfig struct {
	// FanoutWorkers bounds concurrent per-recipient delivery.
	FanoutWorkers int `koanf:"fanout_workers"`

	// DispatchTimeout bounds one CreateAndSend call end to end.
	DispatchTimeout time.Duration `koanf:"dispatch_timeout"`
}

// PushConfig configures the Web Push delivery adapter.
type PushConfig struct {
	Enabled bool `koanf:"enabled"`

	// VAPID key pair identifying this server to push services.
	VAPIDPublicKey  string `koanf:"vapid_public_key"`
	VAPIDPrivateKey string `koanf:"vapid_private_key"`

	// Subscriber is the contact address sent with VAPID claims
	// (mailto: or https: URL).
	Subscriber string `koanf:"subscriber"`

	// TTL is the push message time-to-live in seconds.
	TTL int `koanf:"ttl"`

	// RatePerSecond and Burst pace outbound push requests.
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`
}

// FeedConfig configures the client-side reconciliation layer defaults.
type FeedConfig struct {
	// ListDebounce coalesces child-table events per parent on list views.
	ListDebounce time.Duration `koanf:"list_debounce"`

	// DetailDebounce coalesces events into one refetch on detail views.
	DetailDebounce time.Duration `koanf:"detail_debounce"`

	// Polling fallback intervals, used when the live channel reports an
	// error. Intentionally longer than the debounce windows.
	ListPollInterval   time.Duration `koanf:"list_poll_interval"`
	DetailPollInterval time.Duration `koanf:"detail_poll_interval"`
	AuxPollInterval    time.Duration `koanf:"aux_poll_interval"`

	// Reverse-index cache bounds.
	ParentIndexSize int           `koanf:"parent_index_size"`
	ParentIndexTTL  time.Duration `koanf:"parent_index_ttl"`
}

// LoggingConfig configures the zerolog-based logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks cross-field constraints that the type system cannot.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path required")
	}
	if c.Scheduler.LifecycleInterval <= 0 {
		return fmt.Errorf("scheduler.lifecycle_interval must be positive")
	}
	if c.Scheduler.ReminderInterval <= 0 {
		return fmt.Errorf("scheduler.reminder_interval must be positive")
	}
	if c.Scheduler.ReminderInterval > 10*time.Minute {
		// The shortest reminder offset is 10 minutes; a slower tick
		// would skip its window entirely.
		return fmt.Errorf("scheduler.reminder_interval %s exceeds the shortest reminder offset", c.Scheduler.ReminderInterval)
	}
	if c.Scheduler.CompletionCutoff <= 0 {
		return fmt.Errorf("scheduler.completion_cutoff must be positive")
	}
	if c.Retention.StandardMaxAge > c.Retention.UrgentMaxAge {
		return fmt.Errorf("retention.standard_max_age exceeds urgent_max_age")
	}
	if c.Push.Enabled {
		if c.Push.VAPIDPublicKey == "" || c.Push.VAPIDPrivateKey == "" {
			return fmt.Errorf("push enabled but VAPID key pair missing")
		}
		if c.Push.Subscriber == "" {
			return fmt.Errorf("push enabled but subscriber contact missing")
		}
	}
	if c.Feed.ListPollInterval <= c.Feed.ListDebounce {
		return fmt.Errorf("feed.list_poll_interval must exceed feed.list_debounce")
	}
	if c.Feed.DetailPollInterval <= c.Feed.DetailDebounce {
		return fmt.Errorf("feed.detail_poll_interval must exceed feed.detail_debounce")
	}
	return nil
}
