// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/meetfield/config.yaml",
	"/etc/meetfield/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the
// config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and
// env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8380,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "/data/meetfield.db",
		},
		NATS: NATSConfig{
			URL:                 "nats://127.0.0.1:4222",
			EmbeddedServer:      true,
			StoreDir:            "/data/nats/jetstream",
			MaxMemory:           1 << 30,  // 1GB
			MaxStore:            10 << 30, // 10GB
			StreamName:          "MEETFIELD_CHANGES",
			StreamRetentionDays: 7,
			DurableName:         "change-processor",
			QueueGroup:          "reconcilers",
			SubscribersCount:    4,
			MaxReconnects:       -1, // retry forever
			ReconnectWait:       2 * time.Second,
		},
		Scheduler: SchedulerConfig{
			LifecycleInterval: 30 * time.Minute,
			ReminderInterval:  5 * time.Minute,
			CompletionCutoff:  6 * time.Hour,
		},
		Retention: RetentionConfig{
			Interval:       24 * time.Hour,
			StandardMaxAge: 30 * 24 * time.Hour,
			UrgentMaxAge:   60 * 24 * time.Hour,
			FailedMaxAge:   30 * 24 * time.Hour,
		},
		Notify: NotifyConfig{
			FanoutWorkers:   10,
			DispatchTimeout: 2 * time.Minute,
		},
		Push: PushConfig{
			Enabled:       false, // Disabled by default until VAPID keys are configured
			TTL:           3600,
			RatePerSecond: 50,
			Burst:         100,
		},
		Feed: FeedConfig{
			ListDebounce:       300 * time.Millisecond,
			DetailDebounce:     500 * time.Millisecond,
			ListPollInterval:   60 * time.Second,
			DetailPollInterval: 15 * time.Second,
			AuxPollInterval:    2 * time.Minute,
			ParentIndexSize:    2048,
			ParentIndexTTL:     30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Default returns the built-in defaults without reading any config
// file or environment. Useful for tests and tooling.
func Default() *Config {
	return defaultConfig()
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML config file (if exists)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so random environment variables cannot
// pollute the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Database mappings
		"database_path": "database.path",

		// NATS mappings
		"nats_url":            "nats.url",
		"nats_embedded":       "nats.embedded_server",
		"nats_store_dir":      "nats.store_dir",
		"nats_max_memory":     "nats.max_memory",
		"nats_max_store":      "nats.max_store",
		"nats_stream_name":    "nats.stream_name",
		"nats_retention_days": "nats.stream_retention_days",
		"nats_durable_name":   "nats.durable_name",
		"nats_queue_group":    "nats.queue_group",
		"nats_subscribers":    "nats.subscribers_count",
		"nats_max_reconnects": "nats.max_reconnects",
		"nats_reconnect_wait": "nats.reconnect_wait",

		// Scheduler mappings
		"scheduler_lifecycle_interval": "scheduler.lifecycle_interval",
		"scheduler_reminder_interval":  "scheduler.reminder_interval",
		"scheduler_completion_cutoff":  "scheduler.completion_cutoff",

		// Retention mappings
		"retention_interval":         "retention.interval",
		"retention_standard_max_age": "retention.standard_max_age",
		"retention_urgent_max_age":   "retention.urgent_max_age",
		"retention_failed_max_age":   "retention.failed_max_age",

		// Notification dispatcher mappings
		"notify_fanout_workers":   "notify.fanout_workers",
		"notify_dispatch_timeout": "notify.dispatch_timeout",

		// Push mappings
		"push_enabled":         "push.enabled",
		"vapid_public_key":     "push.vapid_public_key",
		"vapid_private_key":    "push.vapid_private_key",
		"push_subscriber":      "push.subscriber",
		"push_ttl":             "push.ttl",
		"push_rate_per_second": "push.rate_per_second",
		"push_burst":           "push.burst",

		// Feed mappings
		"feed_list_debounce":        "feed.list_debounce",
		"feed_detail_debounce":      "feed.detail_debounce",
		"feed_list_poll_interval":   "feed.list_poll_interval",
		"feed_detail_poll_interval": "feed.detail_poll_interval",
		"feed_aux_poll_interval":    "feed.aux_poll_interval",
		"feed_parent_index_size":    "feed.parent_index_size",
		"feed_parent_index_ttl":     "feed.parent_index_ttl",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}
