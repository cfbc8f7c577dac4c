// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/meetfield/meetfield/internal/logging"
	ws "github.com/meetfield/meetfield/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-origin browsers only; the server sits behind a reverse
	// proxy that terminates external traffic.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocket upgrades the connection and attaches the client to the
// hub, which then streams change and notification frames.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		NewResponseWriter(w, r).ServiceUnavailable("Live updates not available")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn, r.URL.Query().Get("userId"))
	if h.views != nil {
		client.AttachViews(h.views)
	}
	h.hub.Register <- client
	client.Start()
}
