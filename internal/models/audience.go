// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package models

import "fmt"

// AudienceKind tags the closed set of audience variants. Each kind maps
// to exactly one store query resolving it to a user-id set.
type AudienceKind string

const (
	AudienceSingle          AudienceKind = "single"
	AudienceAllUsers        AudienceKind = "all_users"
	AudienceAllExceptAuthor AudienceKind = "all_except_author"
	AudienceRole            AudienceKind = "role"
	AudienceParticipants    AudienceKind = "participants"
	AudienceWaitlist        AudienceKind = "waitlist"
	AudienceExplicit        AudienceKind = "explicit"
)

// Audience describes who a notification targets. Exactly one variant is
// active, selected by Kind; the other fields are meaningful only for the
// kinds that use them.
type Audience struct {
	Kind AudienceKind `json:"kind"`

	// UserID is the recipient for AudienceSingle.
	UserID string `json:"userId,omitempty"`

	// AuthorID is the excluded user for AudienceAllExceptAuthor.
	AuthorID string `json:"authorId,omitempty"`

	// RoleID selects users for AudienceRole.
	RoleID string `json:"roleId,omitempty"`

	// PostID selects the meetup for AudienceParticipants and AudienceWaitlist.
	PostID string `json:"postId,omitempty"`

	// UserIDs is the recipient set for AudienceExplicit.
	UserIDs []string `json:"userIds,omitempty"`
}

// SingleRecipient targets one user.
func SingleRecipient(userID string) Audience {
	return Audience{Kind: AudienceSingle, UserID: userID}
}

// AllUsers targets every registered user.
func AllUsers() Audience {
	return Audience{Kind: AudienceAllUsers}
}

// AllExceptAuthor targets every registered user except the given author.
func AllExceptAuthor(authorID string) Audience {
	return Audience{Kind: AudienceAllExceptAuthor, AuthorID: authorID}
}

// RoleBased targets all users holding the given role.
func RoleBased(roleID string) Audience {
	return Audience{Kind: AudienceRole, RoleID: roleID}
}

// PostParticipants targets the active participants of a meetup post.
func PostParticipants(postID string) Audience {
	return Audience{Kind: AudienceParticipants, PostID: postID}
}

// PostWaitlist targets the waitlist of a meetup post.
func PostWaitlist(postID string) Audience {
	return Audience{Kind: AudienceWaitlist, PostID: postID}
}

// ExplicitUsers targets a fixed set of user ids.
func ExplicitUsers(userIDs ...string) Audience {
	return Audience{Kind: AudienceExplicit, UserIDs: userIDs}
}

// Group reports whether the audience may resolve to more than one user.
// Group sends pass through the filter engine before receipts are created.
func (a Audience) Group() bool {
	return a.Kind != AudienceSingle
}

// Validate checks that the fields required by the active variant are set.
func (a Audience) Validate() error {
	switch a.Kind {
	case AudienceSingle:
		if a.UserID == "" {
			return fmt.Errorf("audience %s: user id required", a.Kind)
		}
	case AudienceAllUsers:
		// no fields
	case AudienceAllExceptAuthor:
		if a.AuthorID == "" {
			return fmt.Errorf("audience %s: author id required", a.Kind)
		}
	case AudienceRole:
		if a.RoleID == "" {
			return fmt.Errorf("audience %s: role id required", a.Kind)
		}
	case AudienceParticipants, AudienceWaitlist:
		if a.PostID == "" {
			return fmt.Errorf("audience %s: post id required", a.Kind)
		}
	case AudienceExplicit:
		if len(a.UserIDs) == 0 {
			return fmt.Errorf("audience %s: user id set required", a.Kind)
		}
	default:
		return fmt.Errorf("unknown audience kind %q", a.Kind)
	}
	return nil
}
