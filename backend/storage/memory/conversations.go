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

func (s *Store) GetOrCreateConversation(ctx context.Context, userA, userB int64, now time.Time) (*models.Conversation, error) {
	a, b := models.OrderedPair(userA, userB)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.pairs[pairKey{a, b}]; ok {
		conv := *s.conversations[id]
		return &conv, nil
	}

	s.nextConversationID++
	conv := &models.Conversation{
		ID:           s.nextConversationID,
		ParticipantA: a,
		ParticipantB: b,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.conversations[conv.ID] = conv
	s.pairs[pairKey{a, b}] = conv.ID

	out := *conv
	return &out, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *conv
	return &out, nil
}

func (s *Store) ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Conversation
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, *conv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}
