// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package websocket

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/meetfield/meetfield/internal/logging"
	"github.com/meetfield/meetfield/internal/models"
	"github.com/meetfield/meetfield/internal/reconcile"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// clientIDCounter hands out monotonically increasing ids so broadcast
// order is stable within a process run.
var clientIDCounter atomic.Uint64

// inboundMessage is one frame read off the connection. Data stays raw
// until the type selects a payload shape.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ListSubscription selects the posts a server-maintained list view
// tracks for this client.
type ListSubscription struct {
	TopicID  string   `json:"topicId"`
	Statuses []string `json:"statuses"`
}

// DetailSubscription pins a server-maintained detail view to one post.
type DetailSubscription struct {
	PostID string `json:"postId"`
}

// Client sits between one websocket connection and the hub.
type Client struct {
	id     uint64
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan Message

	// views enables per-client reconciled view subscriptions; nil
	// leaves the client on the raw change stream only.
	views *reconcile.Factory

	// viewFrames carries snapshots from the client's view goroutine to
	// the write pump. Owned by the client and never closed, unlike
	// send, which the hub closes on unregister.
	viewFrames chan Message

	viewMu   sync.Mutex
	stopView context.CancelFunc
}

// NewClient wraps a connection. userID may be empty for anonymous
// viewers; it is echoed back so the frontend can filter notification
// frames.
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		id:         clientIDCounter.Add(1),
		userID:     userID,
		hub:        hub,
		conn:       conn,
		send:       make(chan Message, 256),
		viewFrames: make(chan Message, 16),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 { return c.id }

// UserID returns the authenticated user, if any.
func (c *Client) UserID() string { return c.userID }

// AttachViews lets this client subscribe to server-maintained list and
// detail views. Must be called before Start.
func (c *Client) AttachViews(views *reconcile.Factory) {
	c.views = views
}

func (c *Client) readPump() {
	defer func() {
		c.cancelView()
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("Unexpected websocket close")
			}
			break
		}
		c.handleMessage(msg)
	}
}

// handleMessage dispatches one client frame. Unknown types are ignored
// so older frontends stay compatible.
func (c *Client) handleMessage(msg inboundMessage) {
	switch msg.Type {
	case MessageTypePing:
		select {
		case c.send <- Message{Type: MessageTypePong}:
		default:
		}

	case MessageTypeSubscribeList:
		if c.views == nil {
			return
		}
		var req ListSubscription
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			logging.Warn().Err(err).Msg("Undecodable list subscription")
			return
		}
		filter := reconcile.ListFilter{TopicID: req.TopicID}
		for _, raw := range req.Statuses {
			status := models.MeetupStatus(strings.ToUpper(strings.TrimSpace(raw)))
			if !status.Valid() {
				logging.Warn().Str("status", raw).Msg("Unknown status in list subscription")
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
		view := c.views.ListView(filter)
		view.OnUpdate = func(posts []*models.MeetupPost) {
			c.sendViewFrame(Message{Type: MessageTypeListSnapshot, Data: posts})
		}
		c.startView(view.Run)

	case MessageTypeSubscribeDetail:
		if c.views == nil {
			return
		}
		var req DetailSubscription
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.PostID == "" {
			logging.Warn().Err(err).Msg("Undecodable detail subscription")
			return
		}
		view := c.views.DetailView(req.PostID)
		view.OnUpdate = func(snapshot reconcile.DetailSnapshot) {
			c.sendViewFrame(Message{Type: MessageTypeDetailSnapshot, Data: snapshot})
		}
		c.startView(view.Run)
	}
}

// startView replaces the client's active view. One view per
// connection: a new subscription cancels the previous one.
func (c *Client) startView(run func(context.Context) error) {
	c.viewMu.Lock()
	if c.stopView != nil {
		c.stopView()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.stopView = cancel
	c.viewMu.Unlock()

	go func() {
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Uint64("client_id", c.id).Msg("Client view stopped")
		}
	}()
}

func (c *Client) cancelView() {
	c.viewMu.Lock()
	if c.stopView != nil {
		c.stopView()
		c.stopView = nil
	}
	c.viewMu.Unlock()
}

func (c *Client) sendViewFrame(msg Message) {
	select {
	case c.viewFrames <- msg:
	default:
		logging.Debug().Uint64("client_id", c.id).Msg("View frame dropped, client slow")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("Failed to set write deadline")
				return
			}
			if !ok {
				// Hub closed the channel.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Error().Err(err).Msg("Failed to write close message")
				}
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Msg("Failed to write message")
				return
			}

		case message := <-c.viewFrames:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("Failed to set write deadline")
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Msg("Failed to write view frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("Failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
