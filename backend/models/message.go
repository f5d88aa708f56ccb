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
	"fmt"
	"time"
)

// ScopeKind is the addressing context of a message
type ScopeKind string

const (
	ScopeDirect ScopeKind = "direct"
	ScopeGroup  ScopeKind = "group"
)

// Scope identifies a direct conversation or a group
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   int64     `json:"id"`
}

func DirectScope(conversationID int64) Scope {
	return Scope{Kind: ScopeDirect, ID: conversationID}
}

func GroupScope(groupID int64) Scope {
	return Scope{Kind: ScopeGroup, ID: groupID}
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%d", s.Kind, s.ID)
}

func (s Scope) Valid() bool {
	return (s.Kind == ScopeDirect || s.Kind == ScopeGroup) && s.ID > 0
}

type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Rank orders statuses so that transitions can only move forward
func (s Status) Rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	}
	return -1
}

// Message is the stored form. Per-viewer fields (IsDeleted, ReplyTo) are
// filled in when the message is rendered for someone.
type Message struct {
	ID                 int64         `json:"id"`
	Scope              Scope         `json:"scope"`
	SenderID           int64         `json:"sender_id"`
	Content            string        `json:"content"`
	CreatedAt          time.Time     `json:"created_at"`
	Status             Status        `json:"status"`
	IsEdited           bool          `json:"is_edited"`
	EditedAt           *time.Time    `json:"edited_at,omitempty"`
	IsDeleted          bool          `json:"is_deleted"`
	DeletedForEveryone bool          `json:"deleted_for_everyone"`
	ReplyToMessageID   *int64        `json:"reply_to_message_id,omitempty"`
	ReplyTo            *ReplyPreview `json:"reply_to,omitempty"`
}

// ReplyPreview is what a viewer sees of the message being replied to
type ReplyPreview struct {
	ID        int64     `json:"id"`
	SenderID  int64     `json:"sender_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Deleted   bool      `json:"deleted"`
}

// CounterpartKind tags a search result with the thing to navigate to
type CounterpartKind string

const (
	CounterpartDirect CounterpartKind = "direct"
	CounterpartGroup  CounterpartKind = "group"
)

// Counterpart is Direct{OtherUser} or Group{Group}; exactly one pointer is set.
type Counterpart struct {
	Kind      CounterpartKind `json:"kind"`
	OtherUser *Profile        `json:"other_user,omitempty"`
	Group     *GroupRef       `json:"group,omitempty"`
}

type MessageSearchResult struct {
	Message     Message     `json:"message"`
	Counterpart Counterpart `json:"counterpart"`
}

// MessageHide records a delete-for-me
type MessageHide struct {
	MessageID int64     `json:"message_id"`
	UserID    int64     `json:"user_id"`
	HiddenAt  time.Time `json:"hidden_at"`
}
