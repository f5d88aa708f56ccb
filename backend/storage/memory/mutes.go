// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package memory

import (
	"context"

	"github.com/efchatnet/efchat-core/backend/models"
)

func (s *Store) SetMute(ctx context.Context, state models.MuteState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mutes[muteKey{state.UserID, state.TargetKind, state.TargetID}] = state.Muted
	return nil
}

func (s *Store) IsMuted(ctx context.Context, userID int64, kind models.MuteTargetKind, targetID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.mutes[muteKey{userID, kind, targetID}], nil
}

func (s *Store) MutedTargets(ctx context.Context, userID int64, kind models.MuteTargetKind) (map[int64]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]bool)
	for k, muted := range s.mutes {
		if muted && k.userID == userID && k.kind == kind {
			out[k.targetID] = true
		}
	}
	return out, nil
}
