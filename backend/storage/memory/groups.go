// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/efchatnet/efchat-core/backend/models"
	"github.com/efchatnet/efchat-core/backend/storage"
)

func (s *Store) CreateGroup(ctx context.Context, group *models.Group, memberIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextGroupID++
	g := *group
	g.ID = s.nextGroupID
	g.UpdatedAt = g.CreatedAt
	s.groups[g.ID] = &g

	members := map[int64]*models.GroupMember{
		g.OwnerID: {GroupID: g.ID, UserID: g.OwnerID, Role: models.RoleAdmin, JoinedAt: g.CreatedAt},
	}
	for _, id := range memberIDs {
		if _, ok := members[id]; ok {
			continue
		}
		members[id] = &models.GroupMember{GroupID: g.ID, UserID: id, Role: models.RoleMember, JoinedAt: g.CreatedAt}
	}
	s.members[g.ID] = members

	*group = g
	return nil
}

func (s *Store) GetGroup(ctx context.Context, groupID int64) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *g
	return &out, nil
}

func (s *Store) GetMember(ctx context.Context, groupID, userID int64) (*models.GroupMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[groupID][userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *m
	return &out, nil
}

func (s *Store) ListMembers(ctx context.Context, groupID int64) ([]models.GroupMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.groups[groupID]; !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]models.GroupMember, 0, len(s.members[groupID]))
	for _, m := range s.members[groupID] {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (s *Store) ListGroupsForUser(ctx context.Context, userID int64) ([]models.GroupSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.GroupSummary
	for groupID, members := range s.members {
		m, ok := members[userID]
		if !ok {
			continue
		}
		out = append(out, models.GroupSummary{
			Group:       *s.groups[groupID],
			Role:        m.Role,
			MemberCount: len(members),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) AddMember(ctx context.Context, groupID, actorID, userID int64, role models.Role, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return storage.ErrNotFound
	}
	if !s.isAdmin(groupID, actorID) {
		return storage.ErrNotAdmin
	}
	if _, ok := s.members[groupID][userID]; ok {
		return storage.ErrAlreadyMember
	}
	s.members[groupID][userID] = &models.GroupMember{GroupID: groupID, UserID: userID, Role: role, JoinedAt: now}
	return nil
}

// isAdmin is called with the lock held
func (s *Store) isAdmin(groupID, userID int64) bool {
	m, ok := s.members[groupID][userID]
	return ok && m.Role == models.RoleAdmin
}

// adminCount is called with the lock held
func (s *Store) adminCount(groupID int64) int {
	n := 0
	for _, m := range s.members[groupID] {
		if m.Role == models.RoleAdmin {
			n++
		}
	}
	return n
}

func (s *Store) RemoveMember(ctx context.Context, groupID, actorID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return storage.ErrNotFound
	}
	if actorID != userID && !s.isAdmin(groupID, actorID) {
		return storage.ErrNotAdmin
	}
	m, ok := s.members[groupID][userID]
	if !ok {
		return storage.ErrNotFound
	}
	if m.Role == models.RoleAdmin && s.adminCount(groupID) == 1 && len(s.members[groupID]) > 1 {
		return storage.ErrLastAdmin
	}

	delete(s.members[groupID], userID)
	delete(s.cursors, memberKey{groupID, userID})
	return nil
}

func (s *Store) SetMemberRole(ctx context.Context, groupID, actorID, userID int64, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return storage.ErrNotFound
	}
	if !s.isAdmin(groupID, actorID) {
		return storage.ErrNotAdmin
	}
	m, ok := s.members[groupID][userID]
	if !ok {
		return storage.ErrNotFound
	}
	if m.Role == models.RoleAdmin && role != models.RoleAdmin && s.adminCount(groupID) == 1 {
		return storage.ErrLastAdmin
	}
	m.Role = role
	return nil
}
