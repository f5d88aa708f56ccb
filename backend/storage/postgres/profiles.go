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

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/efchatnet/efchat-core/backend/models"
)

// Profiles reads display data from the users table shared with the auth service
type Profiles struct {
	db *sql.DB
}

func NewProfiles(db *sql.DB) *Profiles {
	return &Profiles{db: db}
}

func (p *Profiles) ResolveProfiles(ctx context.Context, userIDs []int64) (map[int64]models.Profile, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, username, COALESCE(display_name, ''), COALESCE(avatar, ''), verified
		FROM users WHERE id = ANY($1)`,
		pq.Array(userIDs))
	if err != nil {
		return nil, errors.Wrap(err, "resolve profiles")
	}
	defer rows.Close()

	profiles := make(map[int64]models.Profile, len(userIDs))
	for rows.Next() {
		var pr models.Profile
		if err := rows.Scan(&pr.ID, &pr.Username, &pr.DisplayName, &pr.Avatar, &pr.Verified); err != nil {
			return nil, errors.Wrap(err, "scan profile")
		}
		profiles[pr.ID] = pr
	}
	return profiles, rows.Err()
}
