// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/metrics"
	"github.com/meetfield/meetfield/internal/models"
	ws "github.com/meetfield/meetfield/internal/websocket"
)

// DispatchStore is the slice of the store the dispatcher needs.
type DispatchStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	UpdateNotificationStatus(ctx context.Context, id string, status models.NotificationStatus) error
	ResolveAudience(ctx context.Context, a models.Audience) ([]string, error)
	CreateReceipts(ctx context.Context, notificationID string, userIDs []string) (int, error)
	RecordPushOutcome(ctx context.Context, notificationID, userID string, state models.PushState, pushErr string) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

// Broadcaster pushes live frames to browsers connected over the
// websocket hub. Frames are best-effort; clients refetch on reconnect.
type Broadcaster interface {
	BroadcastNotification(data ws.NotificationData)
	BroadcastUnreadCount(userID string, unread int)
}

// PushSender delivers one notification to every enabled device of one
// user. Implemented by the push adapter; a nil sender disables push.
type PushSender interface {
	SendToUser(ctx context.Context, userID string, n *models.Notification) (models.PushState, string)
}

// Spec describes one notification to create and send.
type Spec struct {
	Category    models.NotificationCategory
	SubEvent    models.NotificationSubEvent
	Title       string
	Body        string
	LinkURL     string
	Priority    models.NotificationPriority
	Audience    models.Audience
	ScheduledAt *time.Time
	Event       models.EventContext
}

// Report aggregates the outcome of one dispatch.
type Report struct {
	NotificationID string
	Resolved       int // audience size before filtering
	Recipients     int // receipts created
	Delivered      int
	Failed         int
	NoDevice       int
	Scheduled      bool
}

// Dispatcher persists notifications, resolves their audience, filters
// recipients, and fans push delivery out with settle-all semantics: no
// single recipient's failure aborts the batch.
type Dispatcher struct {
	store     DispatchStore
	filter    *FilterEngine
	push      PushSender
	broadcast Broadcaster
	workers   int
	timeout   time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// DispatcherConfig tunes the dispatcher.
type DispatcherConfig struct {
	// FanoutWorkers caps concurrent per-recipient push deliveries.
	FanoutWorkers int

	// DispatchTimeout bounds one CreateAndSend call end to end.
	DispatchTimeout time.Duration
}

// NewDispatcher builds a dispatcher. push may be nil when push delivery
// is disabled; receipts are still created.
func NewDispatcher(store DispatchStore, filter *FilterEngine, push PushSender, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	if cfg.FanoutWorkers <= 0 {
		cfg.FanoutWorkers = 10
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}
	return &Dispatcher{
		store:   store,
		filter:  filter,
		push:    push,
		workers: cfg.FanoutWorkers,
		timeout: cfg.DispatchTimeout,
		logger:  logger.With().Str("component", "notify-dispatch").Logger(),
		now:     time.Now,
	}
}

// SetBroadcaster attaches the websocket hub so dispatches reach open
// browser tabs without a refresh. nil leaves live frames off.
func (d *Dispatcher) SetBroadcaster(b Broadcaster) {
	d.broadcast = b
}

// CreateAndSend runs the full pipeline for one notification spec.
//
// Persistence success and delivery success are independent: once the
// notification row exists, push failures are recorded on receipts and
// never roll the row back.
func (d *Dispatcher) CreateAndSend(ctx context.Context, spec Spec) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := spec.Audience.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audience: %w", err)
	}
	if spec.Priority == "" {
		spec.Priority = models.PriorityNormal
	}

	scheduled := spec.ScheduledAt != nil && spec.ScheduledAt.After(d.now())
	status := models.NotificationStatusSending
	if scheduled {
		status = models.NotificationStatusPending
	}

	n := &models.Notification{
		Category:    spec.Category,
		SubEvent:    spec.SubEvent,
		Title:       spec.Title,
		Body:        spec.Body,
		LinkURL:     spec.LinkURL,
		Priority:    spec.Priority,
		Audience:    spec.Audience,
		Status:      status,
		ScheduledAt: spec.ScheduledAt,
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("persisting notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(spec.Category)).Inc()

	report := &Report{NotificationID: n.ID, Scheduled: scheduled}

	recipients, err := d.store.ResolveAudience(ctx, spec.Audience)
	if err != nil {
		d.fail(ctx, n.ID)
		return report, fmt.Errorf("resolving audience: %w", err)
	}
	report.Resolved = len(recipients)

	// Group sends pass through the filter engine so receipts, and with
	// them unread counts, only exist for users who should be notified.
	// A single-recipient send is already targeted and goes straight
	// through.
	if spec.Audience.Group() {
		recipients, err = d.filter.FilterUsers(ctx, recipients, spec.Category, spec.SubEvent, spec.Event)
		if err != nil {
			d.fail(ctx, n.ID)
			return report, fmt.Errorf("filtering recipients: %w", err)
		}
	}

	created, err := d.store.CreateReceipts(ctx, n.ID, recipients)
	if err != nil {
		d.fail(ctx, n.ID)
		return report, fmt.Errorf("creating receipts: %w", err)
	}
	report.Recipients = created

	if scheduled {
		// A separate drain dispatches due scheduled notifications.
		d.logger.Debug().
			Str("notification_id", n.ID).
			Time("scheduled_at", *spec.ScheduledAt).
			Msg("Notification scheduled for later dispatch")
		return report, nil
	}

	d.fanOut(ctx, n, recipients, report)

	if err := d.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationStatusSent); err != nil {
		d.logger.Error().Err(err).Str("notification_id", n.ID).Msg("Marking notification sent failed")
	}
	metrics.NotificationsDispatched.WithLabelValues(string(models.NotificationStatusSent)).Inc()

	d.announce(ctx, n, recipients)

	d.logger.Info().
		Str("notification_id", n.ID).
		Str("category", string(spec.Category)).
		Int("resolved", report.Resolved).
		Int("recipients", report.Recipients).
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Msg("Notification dispatched")
	return report, nil
}

// fanOut pushes to every recipient through a bounded worker pool and
// records each outcome on the recipient's receipt.
func (d *Dispatcher) fanOut(ctx context.Context, n *models.Notification, recipients []string, report *Report) {
	if d.push == nil || len(recipients) == 0 {
		return
	}

	type outcome struct {
		state models.PushState
	}
	results := make(chan outcome, len(recipients))
	jobs := make(chan string, len(recipients))

	workerCount := d.workers
	if workerCount > len(recipients) {
		workerCount = len(recipients)
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for userID := range jobs {
				state, pushErr := d.push.SendToUser(ctx, userID, n)
				if err := d.store.RecordPushOutcome(ctx, n.ID, userID, state, pushErr); err != nil {
					d.logger.Error().Err(err).
						Str("notification_id", n.ID).
						Str("user_id", userID).
						Msg("Recording push outcome failed")
				}
				results <- outcome{state: state}
			}
		}()
	}

	for _, userID := range recipients {
		jobs <- userID
	}
	close(jobs)
	wg.Wait()
	close(results)

	for r := range results {
		switch r.state {
		case models.PushStateDelivered:
			report.Delivered++
		case models.PushStateFailed:
			report.Failed++
		default:
			report.NoDevice++
		}
	}
}

// announce pushes the dispatched notification and each recipient's
// refreshed unread badge to connected browsers.
func (d *Dispatcher) announce(ctx context.Context, n *models.Notification, recipients []string) {
	if d.broadcast == nil {
		return
	}
	for _, userID := range recipients {
		d.broadcast.BroadcastNotification(ws.NotificationData{
			UserID:         userID,
			NotificationID: n.ID,
			Title:          n.Title,
			Body:           n.Body,
			LinkURL:        n.LinkURL,
			Priority:       string(n.Priority),
		})
		unread, err := d.store.CountUnread(ctx, userID)
		if err != nil {
			d.logger.Debug().Err(err).Str("user_id", userID).Msg("Unread count lookup failed")
			continue
		}
		d.broadcast.BroadcastUnreadCount(userID, unread)
	}
}

func (d *Dispatcher) fail(ctx context.Context, notificationID string) {
	if err := d.store.UpdateNotificationStatus(ctx, notificationID, models.NotificationStatusFailed); err != nil {
		d.logger.Error().Err(err).Str("notification_id", notificationID).Msg("Could not mark notification failed")
	}
	metrics.NotificationsDispatched.WithLabelValues(string(models.NotificationStatusFailed)).Inc()
}
