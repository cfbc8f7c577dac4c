// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package models

import "time"

// DeviceType classifies the device that registered a push subscription.
type DeviceType string

const (
	DeviceTypeMobile  DeviceType = "mobile"
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeUnknown DeviceType = "unknown"
)

// PushSubscription is one Web Push endpoint for one device of one user.
// A user may hold several, one per device fingerprint; re-registering the
// same fingerprint updates rather than duplicates the row. The push
// adapter deletes the row when the endpoint returns a permanent failure.
type PushSubscription struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	Endpoint          string     `json:"endpoint"`
	P256dhKey         string     `json:"p256dhKey"`
	AuthKey           string     `json:"authKey"`
	DeviceFingerprint string     `json:"deviceFingerprint"`
	DeviceType        DeviceType `json:"deviceType"`
	Enabled           bool       `json:"enabled"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// PushPayloadData is the opaque data block of a push message, consumed by
// the service worker to route clicks.
type PushPayloadData struct {
	URL            string `json:"url"`
	NotificationID string `json:"notificationId"`
}

// PushPayload is the fixed message schema sent to every device endpoint.
type PushPayload struct {
	Title string          `json:"title"`
	Body  string          `json:"body"`
	Icon  string          `json:"icon,omitempty"`
	Tag   string          `json:"tag"`
	Data  PushPayloadData `json:"data"`
}
