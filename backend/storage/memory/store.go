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

// Package memory is a process-local Store used for development and tests.
// A single mutex serializes every write, which trivially satisfies the
// per-scope serialization the Postgres store gets from row locks.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/efchatnet/efchat-core/backend/models"
)

type pairKey struct{ a, b int64 }

type memberKey struct{ groupID, userID int64 }

type muteKey struct {
	userID   int64
	kind     models.MuteTargetKind
	targetID int64
}

type Store struct {
	mu sync.RWMutex

	nextConversationID int64
	nextGroupID        int64
	nextMessageID      int64

	conversations map[int64]*models.Conversation
	pairs         map[pairKey]int64

	groups  map[int64]*models.Group
	members map[int64]map[int64]*models.GroupMember // group -> user -> member

	messages      map[int64]*models.Message
	scopeMessages map[models.Scope][]int64

	hides   map[int64]map[int64]time.Time // user -> message -> hidden at
	cursors map[memberKey]int64           // last read group message per member
	mutes   map[muteKey]bool
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[int64]*models.Conversation),
		pairs:         make(map[pairKey]int64),
		groups:        make(map[int64]*models.Group),
		members:       make(map[int64]map[int64]*models.GroupMember),
		messages:      make(map[int64]*models.Message),
		scopeMessages: make(map[models.Scope][]int64),
		hides:         make(map[int64]map[int64]time.Time),
		cursors:       make(map[memberKey]int64),
		mutes:         make(map[muteKey]bool),
	}
}

// belongs reports whether userID may act in scope. Caller holds the lock.
func (s *Store) belongs(scope models.Scope, userID int64) bool {
	switch scope.Kind {
	case models.ScopeDirect:
		conv, ok := s.conversations[scope.ID]
		return ok && conv.HasParticipant(userID)
	case models.ScopeGroup:
		_, ok := s.members[scope.ID][userID]
		return ok
	}
	return false
}

func (s *Store) scopeExists(scope models.Scope) bool {
	switch scope.Kind {
	case models.ScopeDirect:
		_, ok := s.conversations[scope.ID]
		return ok
	case models.ScopeGroup:
		_, ok := s.groups[scope.ID]
		return ok
	}
	return false
}

// touch bumps the parent row of scope
func (s *Store) touch(scope models.Scope, at time.Time) {
	switch scope.Kind {
	case models.ScopeDirect:
		if conv, ok := s.conversations[scope.ID]; ok && at.After(conv.UpdatedAt) {
			conv.UpdatedAt = at
		}
	case models.ScopeGroup:
		if group, ok := s.groups[scope.ID]; ok && at.After(group.UpdatedAt) {
			group.UpdatedAt = at
		}
	}
}

// sortedScope returns the messages of scope ordered by (created_at, id)
func (s *Store) sortedScope(scope models.Scope) []*models.Message {
	ids := s.scopeMessages[scope]
	out := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.messages[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) hidden(userID, messageID int64) bool {
	_, ok := s.hides[userID][messageID]
	return ok
}

func copyMessage(m *models.Message) models.Message {
	out := *m
	if m.EditedAt != nil {
		t := *m.EditedAt
		out.EditedAt = &t
	}
	if m.ReplyToMessageID != nil {
		id := *m.ReplyToMessageID
		out.ReplyToMessageID = &id
	}
	return out
}
