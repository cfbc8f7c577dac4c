// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

// Package metrics provides Prometheus instrumentation for Meetfield:
// lifecycle transitions, notification dispatch, push delivery outcomes,
// change feed traffic, and retention sweeps.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Lifecycle scheduler metrics
	LifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetfield_lifecycle_transitions_total",
			Help: "Total number of meetup lifecycle transitions applied",
		},
		[]string{"from", "to"},
	)

	SchedulerTickErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetfield_scheduler_tick_errors_total",
			Help: "Total number of failed scheduler tick steps",
		},
		[]string{"job"},
	)

	SchedulerTicksSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetfield_scheduler_ticks_skipped_total",
			Help: "Total number of ticks skipped because the previous run was still in flight",
		},
		[]string{"job"},
	)

	// Notification pipeline metrics
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetfield_notifications_created_total",
			Help: "Total number of notification rows created",
		},
		[]string{"category"},
	)

	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetfield_notifications_dispatched_total",
			Help: "Total number of notifications reaching a terminal dispatch status",
		},
		[]string{"status"},
	)

	FilterDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetfield_filter_decisions_total",
			Help: "Total number of per-user filter engine decisions",
		},
		[]string{"category", "decision"},
	)

	// Push delivery metrics
	PushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetfield_push_deliveries_total",
			Help: "Total number of per-device push delivery attempts",
		},
		[]string{"outcome"}, // "ok", "permanent_failure", "transient_error"
	)

	PushSubscriptionsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meetfield_push_subscriptions_removed_total",
			Help: "Total number of push subscriptions deleted after permanent endpoint failures",
		},
	)

	// Change feed metrics
	FeedEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetfield_feed_events_published_total",
			Help: "Total number of row-change events published to the change feed",
		},
		[]string{"table", "type"},
	)

	FeedChannelHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meetfield_feed_channel_healthy",
			Help: "Change feed channel health (1 = ok, 0 = error)",
		},
	)

	// WebSocket metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meetfield_websocket_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)

	// Retention metrics
	RetentionDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetfield_retention_deleted_total",
			Help: "Total number of rows removed by the retention sweep",
		},
		[]string{"kind"}, // "notification", "urgent_notification", "failed_notification", "orphan_receipt"
	)
)

// RecordTransition increments the lifecycle transition counter.
func RecordTransition(from, to string, count int) {
	if count <= 0 {
		return
	}
	LifecycleTransitions.WithLabelValues(from, to).Add(float64(count))
}

// RecordFeedHealth sets the feed channel health gauge.
func RecordFeedHealth(ok bool) {
	if ok {
		FeedChannelHealthy.Set(1)
	} else {
		FeedChannelHealthy.Set(0)
	}
}
