// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package models

import (
	"time"
)

// Conversation is a direct message thread between exactly two users.
// ParticipantA is always the smaller id.
type Conversation struct {
	ID           int64     `json:"id"`
	ParticipantA int64     `json:"participant_a"`
	ParticipantB int64     `json:"participant_b"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OrderedPair normalizes an unordered pair of users
func OrderedPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

func (c Conversation) HasParticipant(userID int64) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Other returns the participant that is not userID
func (c Conversation) Other(userID int64) int64 {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// Profile is the public identity of a user, owned by the auth service
type Profile struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Verified    bool   `json:"verified"`
}

type ConversationSummary struct {
	ID          int64     `json:"id"`
	OtherUser   Profile   `json:"other_user"`
	LastMessage *Message  `json:"last_message,omitempty"`
	UnreadCount int       `json:"unread_count"`
	Muted       bool      `json:"muted"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type MuteTargetKind string

const (
	MuteConversation MuteTargetKind = "conversation"
	MuteGroup        MuteTargetKind = "group"
)

type MuteState struct {
	UserID     int64          `json:"user_id"`
	TargetKind MuteTargetKind `json:"target_kind"`
	TargetID   int64          `json:"target_id"`
	Muted      bool           `json:"muted"`
}

// MuteTargetFor maps a message scope to the mute target it belongs to
func MuteTargetFor(scope Scope) MuteTargetKind {
	if scope.Kind == ScopeGroup {
		return MuteGroup
	}
	return MuteConversation
}
