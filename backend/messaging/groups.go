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

package messaging

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/efchatnet/efchat-core/backend/apperr"
	"github.com/efchatnet/efchat-core/backend/models"
	"github.com/efchatnet/efchat-core/backend/storage"
)

// CreateGroup makes ownerID the group's first admin and adds the listed
// members. At least one member besides the owner is required, and every
// member must be a friend of the owner.
func (s *Service) CreateGroup(ctx context.Context, ownerID int64, in models.CreateGroupInput) (*models.Group, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("group name is required")
	}

	seen := map[int64]bool{ownerID: true}
	members := make([]int64, 0, len(in.MemberIDs))
	for _, id := range in.MemberIDs {
		if id <= 0 {
			return nil, apperr.Validation("invalid member id")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) == 0 {
		return nil, apperr.Validation("at least 2 members required (including you)")
	}
	for _, id := range members {
		friends, err := s.areFriends(ctx, ownerID, id)
		if err != nil {
			return nil, err
		}
		if !friends {
			return nil, apperr.Validation("all members must be your friends")
		}
	}

	group := &models.Group{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Picture:     in.Picture,
		OwnerID:     ownerID,
		CreatedAt:   s.clock(),
	}
	if err := s.store.CreateGroup(ctx, group, members); err != nil {
		return nil, internal("messaging.CreateGroup", err)
	}

	s.logger.Info("group created", "group_id", group.ID, "owner_id", ownerID, "members", len(members)+1)
	return group, nil
}

// GetGroup returns the group with its members; viewerID must be one of them
func (s *Service) GetGroup(ctx context.Context, viewerID, groupID int64) (*models.GroupDetails, error) {
	if _, err := s.membership(ctx, groupID, viewerID); err != nil {
		return nil, err
	}

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, internal("messaging.GetGroup", err)
	}
	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, internal("messaging.GetGroup.ListMembers", err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	profiles := s.resolveProfiles(ctx, ids)
	for i := range members {
		p := profileOrID(profiles, members[i].UserID)
		members[i].Profile = &p
	}

	return &models.GroupDetails{Group: *group, Members: members}, nil
}

// ListGroupsForUser mirrors ListConversationsForUser for groups
func (s *Service) ListGroupsForUser(ctx context.Context, userID int64) ([]models.GroupSummary, error) {
	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, internal("messaging.ListGroupsForUser", err)
	}
	if len(groups) == 0 {
		return []models.GroupSummary{}, nil
	}

	muted, err := s.store.MutedTargets(ctx, userID, models.MuteGroup)
	if err != nil {
		return nil, internal("messaging.ListGroupsForUser.MutedTargets", err)
	}

	for i := range groups {
		last, unread, err := s.scopeActivity(ctx, models.GroupScope(groups[i].ID), userID)
		if err != nil {
			return nil, err
		}
		groups[i].LastMessage = last
		groups[i].UnreadCount = unread
		groups[i].Muted = muted[groups[i].ID]
	}
	return groups, nil
}

// AddMember lets a group admin add one of their friends as a regular member.
// The store re-checks the admin role atomically with the insert.
func (s *Service) AddMember(ctx context.Context, actorID, groupID, userID int64) error {
	if userID <= 0 {
		return apperr.Validation("invalid user id")
	}
	if err := s.requireAdmin(ctx, groupID, actorID, "only admins can add members"); err != nil {
		return err
	}
	friends, err := s.areFriends(ctx, actorID, userID)
	if err != nil {
		return err
	}
	if !friends {
		return apperr.Validation("can only add your friends to the group")
	}

	err = s.store.AddMember(ctx, groupID, actorID, userID, models.RoleMember, s.clock())
	switch {
	case errors.Is(err, storage.ErrNotAdmin):
		return apperr.Permission("only admins can add members")
	case errors.Is(err, storage.ErrAlreadyMember):
		return apperr.Conflict("user is already a member of this group")
	case errors.Is(err, storage.ErrNotFound):
		return apperr.NotFound("group not found")
	case err != nil:
		return internal("messaging.AddMember", err)
	}

	s.logger.Info("member added", "group_id", groupID, "user_id", userID, "by", actorID)
	return nil
}

// RemoveMember removes userID from the group. Members may always remove
// themselves; removing anyone else takes an admin.
func (s *Service) RemoveMember(ctx context.Context, actorID, groupID, userID int64) error {
	if actorID != userID {
		if err := s.requireAdmin(ctx, groupID, actorID, "only admins can remove other members"); err != nil {
			return err
		}
	} else if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("group not found")
		}
		return internal("messaging.RemoveMember.GetGroup", err)
	}

	err := s.store.RemoveMember(ctx, groupID, actorID, userID)
	switch {
	case errors.Is(err, storage.ErrNotAdmin):
		return apperr.Permission("only admins can remove other members")
	case errors.Is(err, storage.ErrLastAdmin):
		return apperr.Invariant("a group must keep at least one admin; promote another member first")
	case errors.Is(err, storage.ErrNotFound):
		return apperr.NotFound("user is not a member of this group")
	case err != nil:
		return internal("messaging.RemoveMember", err)
	}

	s.logger.Info("member removed", "group_id", groupID, "user_id", userID, "by", actorID)
	return nil
}

// SetMemberRole promotes or demotes a member. Admins only.
func (s *Service) SetMemberRole(ctx context.Context, actorID, groupID, userID int64, role models.Role) error {
	if !role.Valid() {
		return apperr.Validation("role must be 'member' or 'admin'")
	}
	if err := s.requireAdmin(ctx, groupID, actorID, "only admins can change roles"); err != nil {
		return err
	}

	err := s.store.SetMemberRole(ctx, groupID, actorID, userID, role)
	switch {
	case errors.Is(err, storage.ErrNotAdmin):
		return apperr.Permission("only admins can change roles")
	case errors.Is(err, storage.ErrLastAdmin):
		return apperr.Invariant("a group must keep at least one admin")
	case errors.Is(err, storage.ErrNotFound):
		return apperr.NotFound("user is not a member of this group")
	case err != nil:
		return internal("messaging.SetMemberRole", err)
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, groupID, actorID int64, denied string) error {
	member, err := s.membership(ctx, groupID, actorID)
	if err != nil {
		return err
	}
	if member.Role != models.RoleAdmin {
		return apperr.Permission(denied)
	}
	return nil
}
