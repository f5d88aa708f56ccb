// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/efchatnet/efchat-core/backend/models"
)

func (s *Store) SetMute(ctx context.Context, state models.MuteState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mutes (user_id, target_kind, target_id, muted)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, target_kind, target_id) DO UPDATE
		SET muted = $4`,
		state.UserID, string(state.TargetKind), state.TargetID, state.Muted)
	return errors.Wrap(err, "set mute")
}

func (s *Store) IsMuted(ctx context.Context, userID int64, kind models.MuteTargetKind, targetID int64) (bool, error) {
	var muted bool
	err := s.db.QueryRowContext(ctx, `
		SELECT muted FROM mutes
		WHERE user_id = $1 AND target_kind = $2 AND target_id = $3`,
		userID, string(kind), targetID).Scan(&muted)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "is muted")
	}
	return muted, nil
}

func (s *Store) MutedTargets(ctx context.Context, userID int64, kind models.MuteTargetKind) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_id FROM mutes
		WHERE user_id = $1 AND target_kind = $2 AND muted`,
		userID, string(kind))
	if err != nil {
		return nil, errors.Wrap(err, "muted targets")
	}
	defer rows.Close()

	muted := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan mute")
		}
		muted[id] = true
	}
	return muted, rows.Err()
}
