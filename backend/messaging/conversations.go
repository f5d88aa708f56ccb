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

// GetOrCreateDirectConversation returns the single conversation between the
// two users regardless of argument order. The users must be friends.
func (s *Service) GetOrCreateDirectConversation(ctx context.Context, userA, userB int64) (*models.Conversation, error) {
	if userA <= 0 || userB <= 0 {
		return nil, apperr.Validation("invalid user id")
	}
	if userA == userB {
		return nil, apperr.Validation("cannot start a conversation with yourself")
	}
	friends, err := s.areFriends(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, apperr.Permission("can only send messages to friends")
	}

	conv, err := s.store.GetOrCreateConversation(ctx, userA, userB, s.clock())
	if err != nil {
		return nil, internal("messaging.GetOrCreateDirectConversation", err)
	}
	return conv, nil
}

func (s *Service) GetConversation(ctx context.Context, viewerID, conversationID int64) (*models.Conversation, error) {
	return s.conversationFor(ctx, conversationID, viewerID)
}

// ListConversationsForUser returns the user's direct conversations, most
// recently active first, each with the counterpart's profile, the last message
// the user can see and their unread count.
func (s *Service) ListConversationsForUser(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, internal("messaging.ListConversationsForUser", err)
	}
	if len(convs) == 0 {
		return []models.ConversationSummary{}, nil
	}

	others := make([]int64, 0, len(convs))
	for _, c := range convs {
		others = append(others, c.Other(userID))
	}
	profiles := s.resolveProfiles(ctx, others)

	muted, err := s.store.MutedTargets(ctx, userID, models.MuteConversation)
	if err != nil {
		return nil, internal("messaging.ListConversationsForUser.MutedTargets", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		scope := models.DirectScope(c.ID)

		last, unread, err := s.scopeActivity(ctx, scope, userID)
		if err != nil {
			return nil, err
		}

		summaries = append(summaries, models.ConversationSummary{
			ID:          c.ID,
			OtherUser:   profileOrID(profiles, c.Other(userID)),
			LastMessage: last,
			UnreadCount: unread,
			Muted:       muted[c.ID],
			UpdatedAt:   c.UpdatedAt,
		})
	}
	return summaries, nil
}

// scopeActivity returns the last visible message and the unread count for a
// summary row.
func (s *Service) scopeActivity(ctx context.Context, scope models.Scope, viewerID int64) (*models.Message, int, error) {
	last, err := s.store.LastVisibleMessage(ctx, scope, viewerID)
	if err != nil {
		return nil, 0, internal("messaging.LastVisibleMessage", err)
	}
	if last != nil {
		rendered := render(*last, nil, nil)
		last = &rendered
	}

	unread, err := s.store.CountUnread(ctx, scope, viewerID)
	if err != nil {
		return nil, 0, internal("messaging.CountUnread", err)
	}
	return last, unread, nil
}
