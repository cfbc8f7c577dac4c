// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meetfield/meetfield/internal/changefeed"
	"github.com/meetfield/meetfield/internal/config"
	"github.com/meetfield/meetfield/internal/models"
	"github.com/meetfield/meetfield/internal/reconcile"
	"github.com/meetfield/meetfield/internal/store"
	ws "github.com/meetfield/meetfield/internal/websocket"
)

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	store *store.Store
	feed  *changefeed.Feed
	hub   *ws.Hub
	views *reconcile.Factory
	cfg   *config.Config
}

// NewHandler builds the handler set. feed, hub, and views may be nil in
// tests that only exercise the data endpoints.
func NewHandler(st *store.Store, feed *changefeed.Feed, hub *ws.Hub, views *reconcile.Factory, cfg *config.Config) *Handler {
	return &Handler{store: st, feed: feed, hub: hub, views: views, cfg: cfg}
}

// Meetups lists posts, optionally filtered by status and topic. This
// is the fetch endpoint list reconcilers poll and refetch against.
func (h *Handler) Meetups(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	filter := store.MeetupFilter{
		TopicID: r.URL.Query().Get("topicId"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := models.MeetupStatus(strings.ToUpper(strings.TrimSpace(s)))
			if !status.Valid() {
				rw.BadRequest("Unknown status: " + s)
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	posts, err := h.store.ListMeetupPosts(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(posts)
}

// Meetup returns a single post by id.
func (h *Handler) Meetup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	post, err := h.store.GetMeetupPost(r.Context(), chi.URLParam(r, "postID"))
	if errors.Is(err, store.ErrNotFound) {
		rw.NotFound("Meetup post not found")
		return
	}
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(post)
}

// MeetupParticipants returns the participant list of a post.
func (h *Handler) MeetupParticipants(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	participants, err := h.store.ListParticipants(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(participants)
}

// MeetupWaitlist returns the waitlist of a post.
func (h *Handler) MeetupWaitlist(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	entries, err := h.store.ListWaitlist(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(entries)
}

// MeetupMessages returns the message board of a post, newest first.
func (h *Handler) MeetupMessages(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	messages, err := h.store.ListMessages(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(messages)
}

// Notifications lists a user's notifications with read state.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			rw.BadRequest("limit must be a positive integer")
			return
		}
		limit = n
	}

	items, err := h.store.ListNotificationsForUser(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(items)
}

// UnreadCount returns the user's unread notification count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	count, err := h.store.CountUnread(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(map[string]int{"unread": count})
}

// MarkRead marks one notification read for a user. Replays are fine;
// the first read timestamp wins.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req ReceiptRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.store.MarkReceiptRead(r.Context(), chi.URLParam(r, "notificationID"), req.UserID)
	if errors.Is(err, store.ErrNotFound) {
		rw.NotFound("No receipt for this notification and user")
		return
	}
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	h.refreshUnreadBadge(r, req.UserID)
	rw.NoContent()
}

// MarkClicked marks one notification clicked, which implies read.
func (h *Handler) MarkClicked(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req ReceiptRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.store.MarkReceiptClicked(r.Context(), chi.URLParam(r, "notificationID"), req.UserID)
	if errors.Is(err, store.ErrNotFound) {
		rw.NotFound("No receipt for this notification and user")
		return
	}
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	h.refreshUnreadBadge(r, req.UserID)
	rw.NoContent()
}

// refreshUnreadBadge pushes the user's new unread count to open tabs,
// so reading a notification in one tab clears the badge in the others.
func (h *Handler) refreshUnreadBadge(r *http.Request, userID string) {
	if h.hub == nil {
		return
	}
	unread, err := h.store.CountUnread(r.Context(), userID)
	if err != nil {
		return
	}
	h.hub.BroadcastUnreadCount(userID, unread)
}

// Settings returns a user's notification settings, or null when the
// user has never configured any. Absent settings mean everything is
// delivered.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	setting, err := h.store.GetNotificationSetting(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(setting)
}

// SaveSettings replaces a user's notification settings.
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req SettingsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	req.Settings.UserID = chi.URLParam(r, "userID")

	if err := h.store.SaveNotificationSetting(r.Context(), &req.Settings); err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(req.Settings)
}

// PushSubscribe registers or refreshes a device push endpoint. The
// same device re-subscribing rotates the endpoint in place instead of
// accumulating rows.
func (h *Handler) PushSubscribe(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req PushSubscribeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	deviceType := models.DeviceType(req.DeviceType)
	if deviceType == "" {
		deviceType = models.DeviceTypeUnknown
	}
	sub := &models.PushSubscription{
		ID:                uuid.NewString(),
		UserID:            req.UserID,
		Endpoint:          req.Endpoint,
		P256dhKey:         req.P256dhKey,
		AuthKey:           req.AuthKey,
		DeviceFingerprint: req.DeviceFingerprint,
		DeviceType:        deviceType,
		Enabled:           true,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	if err := h.store.UpsertPushSubscription(r.Context(), sub); err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Created(sub)
}

// PushUnsubscribe removes the subscriptions of one device.
func (h *Handler) PushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req PushUnsubscribeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.store.DeleteSubscriptionsForDevice(r.Context(), req.UserID, req.DeviceFingerprint); err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.NoContent()
}

// VAPIDPublicKey hands the frontend the key it needs to subscribe.
func (h *Handler) VAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(map[string]string{"publicKey": h.cfg.Push.VAPIDPublicKey})
}
