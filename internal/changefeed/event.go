// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

// Package changefeed carries row-change events from the store to
// interested consumers over NATS JetStream. It is a pure transport:
// events are published per table, subscribers attach per table with an
// event-type mask and an optional predicate, and a health signal tells
// consumers when to fall back to polling.
package changefeed

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// EventType is the kind of row mutation an event describes.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChannelStatus is the feed's health signal. Consumers switch to their
// polling fallback on ChannelError and back on ChannelOK.
type ChannelStatus string

const (
	ChannelOK    ChannelStatus = "CHANNEL_OK"
	ChannelError ChannelStatus = "CHANNEL_ERROR"
)

// ChangeEvent is one row mutation on one table. Row holds the entity as
// JSON; DELETE events may carry only identifying fields, and for child
// tables the parent reference can be absent entirely.
type ChangeEvent struct {
	Table      string          `json:"table"`
	Type       EventType       `json:"type"`
	Row        json.RawMessage `json:"row"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// DecodeRow unmarshals the event payload into v.
func (e *ChangeEvent) DecodeRow(v any) error {
	if err := json.Unmarshal(e.Row, v); err != nil {
		return fmt.Errorf("decoding %s row: %w", e.Table, err)
	}
	return nil
}

const topicPrefix = "changes."

// TopicForTable maps a table name to its JetStream subject.
func TopicForTable(table string) string {
	return topicPrefix + table
}

// TableFromTopic recovers the table name from a subject.
func TableFromTopic(topic string) string {
	return strings.TrimPrefix(topic, topicPrefix)
}
