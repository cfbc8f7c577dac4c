// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the full route tree.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
		r.Get("/", h.Health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// The websocket route must not inherit the timeout; upgraded
		// connections live for hours.
		r.Get("/ws", h.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(30 * time.Second))

			r.Route("/meetups", func(r chi.Router) {
				r.Get("/", h.Meetups)
				r.Get("/{postID}", h.Meetup)
				r.Get("/{postID}/participants", h.MeetupParticipants)
				r.Get("/{postID}/waitlist", h.MeetupWaitlist)
				r.Get("/{postID}/messages", h.MeetupMessages)
			})

			r.Route("/users/{userID}", func(r chi.Router) {
				r.Get("/notifications", h.Notifications)
				r.Get("/notifications/unread", h.UnreadCount)
				r.Get("/settings", h.Settings)
				r.Put("/settings", h.SaveSettings)
			})

			r.Route("/notifications/{notificationID}", func(r chi.Router) {
				r.Post("/read", h.MarkRead)
				r.Post("/clicked", h.MarkClicked)
			})

			r.Route("/push", func(r chi.Router) {
				r.Get("/vapid-public-key", h.VAPIDPublicKey)
				r.Post("/subscriptions", h.PushSubscribe)
				r.Delete("/subscriptions", h.PushUnsubscribe)
			})
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
