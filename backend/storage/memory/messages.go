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

package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/efchatnet/efchat-core/backend/models"
	"github.com/efchatnet/efchat-core/backend/storage"
)

func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scopeExists(msg.Scope) {
		return storage.ErrNotFound
	}
	if !s.belongs(msg.Scope, msg.SenderID) {
		return storage.ErrNotMember
	}

	s.nextMessageID++
	m := copyMessage(msg)
	m.ID = s.nextMessageID
	if m.Status == "" {
		m.Status = models.StatusSent
	}
	s.messages[m.ID] = &m
	s.scopeMessages[m.Scope] = append(s.scopeMessages[m.Scope], m.ID)
	s.touch(m.Scope, m.CreatedAt)

	*msg = copyMessage(&m)
	return nil
}

func (s *Store) GetMessage(ctx context.Context, messageID int64) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[messageID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := copyMessage(m)
	return &out, nil
}

func (s *Store) ListMessages(ctx context.Context, scope models.Scope) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedScope(scope)
	out := make([]models.Message, 0, len(sorted))
	for _, m := range sorted {
		out = append(out, copyMessage(m))
	}
	return out, nil
}

func (s *Store) UpdateContent(ctx context.Context, messageID int64, content string, editedAt, notBefore time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return storage.ErrNotFound
	}
	if m.DeletedForEveryone || !m.CreatedAt.After(notBefore) {
		return storage.ErrConditionFailed
	}
	m.Content = content
	m.IsEdited = true
	at := editedAt
	m.EditedAt = &at
	return nil
}

func (s *Store) Tombstone(ctx context.Context, messageID int64, notBefore time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return storage.ErrNotFound
	}
	if m.DeletedForEveryone || !m.CreatedAt.After(notBefore) {
		return storage.ErrConditionFailed
	}
	m.DeletedForEveryone = true
	m.Content = ""
	return nil
}

func (s *Store) HideMessage(ctx context.Context, messageID, userID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[messageID]; !ok {
		return storage.ErrNotFound
	}
	if s.hides[userID] == nil {
		s.hides[userID] = make(map[int64]time.Time)
	}
	if _, ok := s.hides[userID][messageID]; !ok {
		s.hides[userID][messageID] = now
	}
	return nil
}

func (s *Store) HiddenMessageIDs(ctx context.Context, userID int64, scope models.Scope) (map[int64]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]bool)
	for id := range s.hides[userID] {
		if s.messages[id].Scope == scope {
			out[id] = true
		}
	}
	return out, nil
}

func (s *Store) AdvanceStatus(ctx context.Context, messageIDs []int64, viewerID int64, status models.Status) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for _, id := range messageIDs {
		m, ok := s.messages[id]
		if !ok || m.SenderID == viewerID || !s.belongs(m.Scope, viewerID) {
			continue
		}
		if status == models.StatusRead && m.Scope.Kind == models.ScopeGroup {
			s.advanceCursor(m.Scope.ID, viewerID, m.ID)
		}
		if m.Status.Rank() >= status.Rank() {
			continue
		}
		m.Status = status
		affected++
	}
	return affected, nil
}

func (s *Store) advanceCursor(groupID, userID, messageID int64) {
	key := memberKey{groupID, userID}
	if s.cursors[key] < messageID {
		s.cursors[key] = messageID
	}
}

func (s *Store) MarkScopeRead(ctx context.Context, scope models.Scope, viewerID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.belongs(scope, viewerID) {
		return 0, storage.ErrNotMember
	}

	var affected int64
	for _, id := range s.scopeMessages[scope] {
		m := s.messages[id]
		if m.SenderID == viewerID {
			continue
		}
		if scope.Kind == models.ScopeGroup {
			s.advanceCursor(scope.ID, viewerID, m.ID)
		}
		if m.Status != models.StatusRead {
			m.Status = models.StatusRead
			affected++
		}
	}
	return affected, nil
}

func (s *Store) LastVisibleMessage(ctx context.Context, scope models.Scope, viewerID int64) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedScope(scope)
	for i := len(sorted) - 1; i >= 0; i-- {
		if s.hidden(viewerID, sorted[i].ID) {
			continue
		}
		out := copyMessage(sorted[i])
		return &out, nil
	}
	return nil, nil
}

func (s *Store) CountUnread(ctx context.Context, scope models.Scope, viewerID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cursor := s.cursors[memberKey{scope.ID, viewerID}]
	n := 0
	for _, id := range s.scopeMessages[scope] {
		m := s.messages[id]
		if m.SenderID == viewerID || s.hidden(viewerID, m.ID) {
			continue
		}
		switch scope.Kind {
		case models.ScopeDirect:
			if m.Status != models.StatusRead {
				n++
			}
		case models.ScopeGroup:
			if m.ID > cursor {
				n++
			}
		}
	}
	return n, nil
}

func (s *Store) SearchMessages(ctx context.Context, viewerID int64, query string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	var out []models.Message
	for _, m := range s.messages {
		if m.DeletedForEveryone || s.hidden(viewerID, m.ID) || !s.belongs(m.Scope, viewerID) {
			continue
		}
		if strings.Contains(strings.ToLower(m.Content), needle) {
			out = append(out, copyMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
