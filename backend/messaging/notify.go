// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package messaging

import (
	"context"

	"github.com/google/uuid"

	"github.com/efchatnet/efchat-core/backend/models"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, models.Event) error { return nil }

// notify fans an event out to every participant of the message's scope except
// the sender and those who muted it. The write it reports on has already
// committed, so failures are logged only.
func (s *Service) notify(ctx context.Context, typ models.EventType, msg *models.Message) {
	recipients, err := s.recipients(ctx, msg.Scope, msg.SenderID)
	if err != nil {
		s.logger.Warn("failed to resolve recipients", "err", err, "message_id", msg.ID)
		return
	}

	kind := models.MuteTargetFor(msg.Scope)
	at := s.clock()
	for _, recipientID := range recipients {
		muted, err := s.store.IsMuted(ctx, recipientID, kind, msg.Scope.ID)
		if err != nil {
			s.logger.Warn("failed to read mute state", "err", err, "user_id", recipientID)
			continue
		}
		if muted {
			continue
		}

		event := models.Event{
			ID:          uuid.NewString(),
			Type:        typ,
			RecipientID: recipientID,
			Scope:       msg.Scope,
			MessageID:   msg.ID,
			SenderID:    msg.SenderID,
			At:          at,
		}
		if err := s.notifier.Notify(ctx, event); err != nil {
			s.logger.Warn("failed to publish event", "err", err, "type", typ, "user_id", recipientID)
		}
	}
}

func (s *Service) recipients(ctx context.Context, scope models.Scope, senderID int64) ([]int64, error) {
	switch scope.Kind {
	case models.ScopeDirect:
		conv, err := s.store.GetConversation(ctx, scope.ID)
		if err != nil {
			return nil, err
		}
		return []int64{conv.Other(senderID)}, nil
	case models.ScopeGroup:
		members, err := s.store.ListMembers(ctx, scope.ID)
		if err != nil {
			return nil, err
		}
		out := make([]int64, 0, len(members))
		for _, m := range members {
			if m.UserID != senderID {
				out = append(out, m.UserID)
			}
		}
		return out, nil
	}
	return nil, nil
}
