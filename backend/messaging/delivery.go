// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package messaging

import (
	"context"

	"github.com/efchatnet/efchat-core/backend/apperr"
	"github.com/efchatnet/efchat-core/backend/models"
)

// SetTyping records whether userID is typing in a direct conversation. The
// flag lapses on its own after the tracker's TTL.
func (s *Service) SetTyping(ctx context.Context, userID, conversationID int64, isTyping bool) error {
	if _, err := s.conversationFor(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.typing.SetTyping(ctx, conversationID, userID, isTyping); err != nil {
		return internal("messaging.SetTyping", err)
	}
	return nil
}

// GetTyping reports whether the other participant is typing
func (s *Service) GetTyping(ctx context.Context, viewerID, conversationID int64) (bool, error) {
	conv, err := s.conversationFor(ctx, conversationID, viewerID)
	if err != nil {
		return false, err
	}
	typing, err := s.typing.IsTyping(ctx, conversationID, conv.Other(viewerID))
	if err != nil {
		return false, internal("messaging.GetTyping", err)
	}
	return typing, nil
}

// SetMute toggles notifications for a conversation or group. Listings and
// history are unaffected.
func (s *Service) SetMute(ctx context.Context, userID int64, kind models.MuteTargetKind, targetID int64, muted bool) error {
	var scope models.Scope
	switch kind {
	case models.MuteConversation:
		scope = models.DirectScope(targetID)
	case models.MuteGroup:
		scope = models.GroupScope(targetID)
	default:
		return apperr.Validation("mute target must be 'conversation' or 'group'")
	}
	if err := s.authorize(ctx, scope, userID); err != nil {
		return err
	}

	state := models.MuteState{UserID: userID, TargetKind: kind, TargetID: targetID, Muted: muted}
	if err := s.store.SetMute(ctx, state); err != nil {
		return internal("messaging.SetMute", err)
	}
	return nil
}

// UnreadTotal sums unread counts over every conversation and group of userID
func (s *Service) UnreadTotal(ctx context.Context, userID int64) (int, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return 0, internal("messaging.UnreadTotal.ListConversations", err)
	}
	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return 0, internal("messaging.UnreadTotal.ListGroupsForUser", err)
	}

	scopes := make([]models.Scope, 0, len(convs)+len(groups))
	for _, c := range convs {
		scopes = append(scopes, models.DirectScope(c.ID))
	}
	for _, g := range groups {
		scopes = append(scopes, models.GroupScope(g.ID))
	}

	total := 0
	for _, scope := range scopes {
		n, err := s.store.CountUnread(ctx, scope, userID)
		if err != nil {
			return 0, internal("messaging.UnreadTotal.CountUnread", err)
		}
		total += n
	}
	return total, nil
}
