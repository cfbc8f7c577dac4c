// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

// Package websocket pushes live change events and notification badges
// to connected browser clients.
package websocket

import (
	"context"
	"sort"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/meetfield/meetfield/internal/logging"
	"github.com/meetfield/meetfield/internal/metrics"
)

// Message types for client communication.
const (
	MessageTypeChange       = "change"
	MessageTypeNotification = "notification"
	MessageTypeUnreadCount  = "unread_count"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"

	// Client-initiated view subscriptions and their snapshot frames.
	MessageTypeSubscribeList   = "subscribe_list"
	MessageTypeSubscribeDetail = "subscribe_detail"
	MessageTypeListSnapshot    = "list_snapshot"
	MessageTypeDetailSnapshot  = "detail_snapshot"
)

// Message is one frame on the wire.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ChangeData carries a row change to the client, mirroring the feed
// event shape so the frontend reconciler can reuse one decoder.
type ChangeData struct {
	Table string          `json:"table"`
	Event string          `json:"event"`
	Row   json.RawMessage `json:"row"`
}

// NotificationData carries a freshly dispatched notification. UserID
// lets the client drop frames addressed to someone else.
type NotificationData struct {
	UserID         string `json:"userId"`
	NotificationID string `json:"notificationId"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	LinkURL        string `json:"linkUrl,omitempty"`
	Priority       string `json:"priority"`
}

// UnreadCountData refreshes one user's notification badge.
type UnreadCountData struct {
	UserID string `json:"userId"`
	Unread int    `json:"unread"`
}

// Hub maintains the set of active clients and fans messages out to
// them. Register/Unregister are serviced with priority over broadcasts
// so client state is consistent before any delivery.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub. Call RunWithContext to start it.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext services the hub until ctx is cancelled, then closes
// every client so a supervisor restart never leaves orphaned
// connections. Lifecycle events win over broadcasts when both are
// ready, since Go's select picks randomly among ready channels.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// String names the hub for supervisor logs.
func (h *Hub) String() string { return "websocket-hub" }

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("Websocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("Websocket client disconnected")
}

// broadcastToClients delivers to clients in id order. Sorting makes
// delivery order reproducible in tests; a client with a full send
// buffer is dropped rather than allowed to stall the hub.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}
	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}
	if len(toRemove) > 0 {
		metrics.WebSocketClients.Set(float64(len(h.clients)))
		logging.Warn().Int("dropped", len(toRemove)).Msg("Dropped slow websocket clients")
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.WebSocketClients.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		AnErr("reason", ctx.Err()).
		Int("clients_closed", len(clients)).
		Msg("Websocket hub stopped")
}

// BroadcastChange fans a row change out to every client.
func (h *Hub) BroadcastChange(table, event string, row json.RawMessage) {
	message := Message{
		Type: MessageTypeChange,
		Data: ChangeData{Table: table, Event: event, Row: row},
	}
	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("table", table).Msg("Broadcast channel full, dropping change message")
	}
}

// BroadcastNotification announces a dispatched notification.
func (h *Hub) BroadcastNotification(data NotificationData) {
	message := Message{
		Type: MessageTypeNotification,
		Data: data,
	}
	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("user_id", data.UserID).Msg("Broadcast channel full, dropping notification message")
	}
}

// BroadcastUnreadCount pushes a fresh unread badge for one user.
func (h *Hub) BroadcastUnreadCount(userID string, unread int) {
	message := Message{
		Type: MessageTypeUnreadCount,
		Data: UnreadCountData{UserID: userID, Unread: unread},
	}
	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("user_id", userID).Msg("Broadcast channel full, dropping unread count message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
