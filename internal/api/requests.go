// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/meetfield/meetfield/internal/models"
)

// validate is the shared validator instance. validator.New is expensive
// and the instance caches struct metadata, so one per process.
var validate = validator.New()

// PushSubscribeRequest registers or refreshes a device endpoint.
type PushSubscribeRequest struct {
	UserID            string `json:"userId" validate:"required"`
	Endpoint          string `json:"endpoint" validate:"required,url"`
	P256dhKey         string `json:"p256dhKey" validate:"required"`
	AuthKey           string `json:"authKey" validate:"required"`
	DeviceFingerprint string `json:"deviceFingerprint" validate:"required"`
	DeviceType        string `json:"deviceType" validate:"omitempty,oneof=mobile desktop unknown"`
}

// PushUnsubscribeRequest removes the subscriptions of one device.
type PushUnsubscribeRequest struct {
	UserID            string `json:"userId" validate:"required"`
	DeviceFingerprint string `json:"deviceFingerprint" validate:"required"`
}

// ReceiptRequest marks a notification read or clicked for a user.
type ReceiptRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// SettingsRequest replaces a user's notification settings.
type SettingsRequest struct {
	Settings models.NotificationSetting `json:"settings" validate:"required"`
}

// fieldError is one entry in a validation error response.
type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// decodeAndValidate parses the request body into dst and validates it.
// On failure it writes the error response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	rw := NewResponseWriter(w, r)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		rw.BadRequest("Invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]fieldError, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, fieldError{Field: fe.Field(), Rule: fe.Tag()})
			}
			rw.ValidationError("Request validation failed", details)
			return false
		}
		rw.BadRequest("Request validation failed")
		return false
	}
	return true
}
