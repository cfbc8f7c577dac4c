// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

// Package models defines the core domain types shared across Meetfield:
// meetup posts and their lifecycle, participants, notification records,
// per-user notification settings, and push subscriptions.
package models

import "time"

// MeetupStatus is the lifecycle state of a meetup post.
//
// The state graph only moves forward:
//
//	OPEN -> FULL | EXPIRED
//	FULL -> IN_PROGRESS
//	IN_PROGRESS -> COMPLETED
//
// COMPLETED and EXPIRED are terminal and never revisited.
type MeetupStatus string

const (
	MeetupStatusOpen       MeetupStatus = "OPEN"
	MeetupStatusFull       MeetupStatus = "FULL"
	MeetupStatusInProgress MeetupStatus = "IN_PROGRESS"
	MeetupStatusCompleted  MeetupStatus = "COMPLETED"
	MeetupStatusExpired    MeetupStatus = "EXPIRED"
)

// meetupTransitions is the closed set of allowed forward transitions.
var meetupTransitions = map[MeetupStatus][]MeetupStatus{
	MeetupStatusOpen:       {MeetupStatusFull, MeetupStatusExpired},
	MeetupStatusFull:       {MeetupStatusInProgress},
	MeetupStatusInProgress: {MeetupStatusCompleted},
	MeetupStatusCompleted:  nil,
	MeetupStatusExpired:    nil,
}

// Valid reports whether s is a known lifecycle state.
func (s MeetupStatus) Valid() bool {
	_, ok := meetupTransitions[s]
	return ok
}

// Terminal reports whether s has no outgoing transitions.
func (s MeetupStatus) Terminal() bool {
	return s == MeetupStatusCompleted || s == MeetupStatusExpired
}

// CanTransitionTo reports whether the transition s -> next is in the
// allowed state graph. An attempted transition outside the graph is a
// scheduler bug, not a runtime condition to recover from silently.
func (s MeetupStatus) CanTransitionTo(next MeetupStatus) bool {
	for _, allowed := range meetupTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// MeetupPost is a time-bound matchmaking post. It is created by a user
// action and, once created, mutated only by the lifecycle scheduler.
type MeetupPost struct {
	ID                      string       `json:"id"`
	Status                  MeetupStatus `json:"status"`
	Title                   string       `json:"title"`
	StartTime               time.Time    `json:"startTime"`
	Capacity                int          `json:"capacity"`
	CurrentParticipantCount int          `json:"currentParticipantCount"`
	AuthorID                string       `json:"authorId"`
	TopicID                 string       `json:"topicId"`
	CreatedAt               time.Time    `json:"createdAt"`
	UpdatedAt               time.Time    `json:"updatedAt"`
}

// IsFull reports whether the post has reached its capacity.
func (p *MeetupPost) IsFull() bool {
	return p.Capacity > 0 && p.CurrentParticipantCount >= p.Capacity
}

// ParticipantStatus tracks whether a participant is still in the meetup.
type ParticipantStatus string

const (
	ParticipantStatusActive    ParticipantStatus = "ACTIVE"
	ParticipantStatusLeftEarly ParticipantStatus = "LEFT_EARLY"
)

// Participant belongs to exactly one MeetupPost and identifies either a
// registered user (UserID set) or a guest (GuestName set).
type Participant struct {
	ID        string            `json:"id"`
	PostID    string            `json:"postId"`
	UserID    string            `json:"userId,omitempty"`
	GuestName string            `json:"guestName,omitempty"`
	Status    ParticipantStatus `json:"status"`
	JoinedAt  time.Time         `json:"joinedAt"`
}

// WaitlistStatus tracks the state of a waitlist entry.
type WaitlistStatus string

const (
	WaitlistStatusWaiting WaitlistStatus = "WAITING"
	WaitlistStatusInvited WaitlistStatus = "INVITED"
)

// WaitlistEntry belongs to exactly one MeetupPost.
type WaitlistEntry struct {
	ID        string         `json:"id"`
	PostID    string         `json:"postId"`
	UserID    string         `json:"userId,omitempty"`
	GuestName string         `json:"guestName,omitempty"`
	Status    WaitlistStatus `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
}

// MeetupMessage is a comment on a meetup post. Messages participate in
// detail-view reconciliation as a low-volume auxiliary feed.
type MeetupMessage struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
