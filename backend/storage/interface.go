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

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/efchatnet/efchat-core/backend/models"
)

// Sentinel errors shared by every Store implementation. Anything else a store
// returns is an infrastructure failure.
var (
	ErrNotFound        = errors.New("not found")
	ErrNotMember       = errors.New("user is not part of this scope")
	ErrAlreadyMember   = errors.New("user is already a member")
	ErrLastAdmin       = errors.New("group would be left without an admin")
	ErrNotAdmin        = errors.New("actor is not a group admin")
	ErrConditionFailed = errors.New("conditional update did not apply")
)

type ConversationStore interface {
	// GetOrCreateConversation never creates two rows for the same unordered pair,
	// even when called concurrently.
	GetOrCreateConversation(ctx context.Context, userA, userB int64, now time.Time) (*models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int64) (*models.Conversation, error)
	// ListConversations returns the user's conversations, most recently active first
	ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error)
}

type GroupStore interface {
	// CreateGroup inserts the group, the owner as admin and memberIDs as members.
	// group.ID, CreatedAt and UpdatedAt are set on success.
	CreateGroup(ctx context.Context, group *models.Group, memberIDs []int64) error
	GetGroup(ctx context.Context, groupID int64) (*models.Group, error)
	GetMember(ctx context.Context, groupID, userID int64) (*models.GroupMember, error)
	ListMembers(ctx context.Context, groupID int64) ([]models.GroupMember, error)
	// ListGroupsForUser fills Group, Role and MemberCount, most recently active first
	ListGroupsForUser(ctx context.Context, userID int64) ([]models.GroupSummary, error)

	// Membership writes re-check that actorID is an admin in the same atomic
	// step as the write and return ErrNotAdmin otherwise. RemoveMember skips
	// that check when actorID == userID.
	AddMember(ctx context.Context, groupID, actorID, userID int64, role models.Role, now time.Time) error
	// RemoveMember and SetMemberRole return ErrLastAdmin instead of leaving a
	// non-empty group without an admin.
	RemoveMember(ctx context.Context, groupID, actorID, userID int64) error
	SetMemberRole(ctx context.Context, groupID, actorID, userID int64, role models.Role) error
}

type MessageStore interface {
	// CreateMessage verifies the sender still belongs to the scope, inserts the
	// message and bumps the scope's updated_at, all in one transaction.
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, messageID int64) (*models.Message, error)
	// ListMessages returns every stored message of the scope ordered by
	// (created_at, id). No per-viewer filtering is applied.
	ListMessages(ctx context.Context, scope models.Scope) ([]models.Message, error)

	// UpdateContent applies only while the message is not tombstoned and was
	// created after notBefore; otherwise ErrConditionFailed.
	UpdateContent(ctx context.Context, messageID int64, content string, editedAt, notBefore time.Time) error
	// Tombstone sets deleted_for_everyone and clears the content under the same
	// window condition as UpdateContent.
	Tombstone(ctx context.Context, messageID int64, notBefore time.Time) error

	HideMessage(ctx context.Context, messageID, userID int64, now time.Time) error
	HiddenMessageIDs(ctx context.Context, userID int64, scope models.Scope) (map[int64]bool, error)

	// AdvanceStatus moves messages forward to status for which viewerID is a
	// recipient. Messages already at or past status are left alone.
	AdvanceStatus(ctx context.Context, messageIDs []int64, viewerID int64, status models.Status) (int64, error)
	MarkScopeRead(ctx context.Context, scope models.Scope, viewerID int64) (int64, error)

	// LastVisibleMessage returns nil when the viewer has nothing to see
	LastVisibleMessage(ctx context.Context, scope models.Scope, viewerID int64) (*models.Message, error)
	CountUnread(ctx context.Context, scope models.Scope, viewerID int64) (int, error)

	// SearchMessages matches content case-insensitively across every scope the
	// viewer belongs to, skipping tombstones and the viewer's hidden messages.
	SearchMessages(ctx context.Context, viewerID int64, query string, limit int) ([]models.Message, error)
}

type MuteStore interface {
	SetMute(ctx context.Context, state models.MuteState) error
	IsMuted(ctx context.Context, userID int64, kind models.MuteTargetKind, targetID int64) (bool, error)
	MutedTargets(ctx context.Context, userID int64, kind models.MuteTargetKind) (map[int64]bool, error)
}

type Store interface {
	ConversationStore
	GroupStore
	MessageStore
	MuteStore
}

// ProfileResolver looks up public profiles owned by the auth service.
// Unknown ids are simply absent from the result.
type ProfileResolver interface {
	ResolveProfiles(ctx context.Context, userIDs []int64) (map[int64]models.Profile, error)
}

// FriendshipChecker reports accepted friendships from the auth service. The
// friend-request workflow itself is not part of this module.
type FriendshipChecker interface {
	AreFriends(ctx context.Context, userA, userB int64) (bool, error)
}

// TypingTracker keeps ephemeral typing flags that expire on their own
type TypingTracker interface {
	SetTyping(ctx context.Context, conversationID, userID int64, isTyping bool) error
	IsTyping(ctx context.Context, conversationID, userID int64) (bool, error)
}

//go:generate mockgen -destination=../mocks/mock_notifier.go -package=mocks github.com/efchatnet/efchat-core/backend/storage Notifier

// Notifier delivers events to a single recipient
type Notifier interface {
	Notify(ctx context.Context, event models.Event) error
}
