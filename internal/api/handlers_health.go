// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package api

import (
	"net/http"
	"time"

	"github.com/meetfield/meetfield/internal/changefeed"
)

// healthStatus is the payload of the full health endpoint.
type healthStatus struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Feed      string    `json:"feed"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthLive reports process liveness. It never touches dependencies
// so a wedged database cannot make the orchestrator restart-loop us.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "ok"})
}

// HealthReady reports readiness: the database must answer a ping.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := h.store.Ping(r.Context()); err != nil {
		rw.ServiceUnavailable("Database not ready")
		return
	}
	rw.Success(map[string]string{"status": "ready"})
}

// Health reports overall health including feed channel state. A
// degraded feed is reported but not fatal, since views fall back to
// polling.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := healthStatus{
		Status:    "ok",
		Database:  "ok",
		Feed:      string(changefeed.ChannelOK),
		Timestamp: time.Now().UTC(),
	}
	if err := h.store.Ping(r.Context()); err != nil {
		status.Status = "degraded"
		status.Database = "error"
	}
	if h.feed != nil {
		status.Feed = string(h.feed.HealthStatus())
		if status.Feed != string(changefeed.ChannelOK) {
			status.Status = "degraded"
		}
	}

	if status.Status != "ok" {
		rw.write(http.StatusServiceUnavailable, APIResponse{Success: false, Data: status, Meta: rw.meta()})
		return
	}
	rw.Success(status)
}
