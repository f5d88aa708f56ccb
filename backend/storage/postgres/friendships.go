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

package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// Friendships reads the auth service's friendships table. A friendship row
// may be stored in either direction.
type Friendships struct {
	db *sql.DB
}

func NewFriendships(db *sql.DB) *Friendships {
	return &Friendships{db: db}
}

func (f *Friendships) AreFriends(ctx context.Context, userA, userB int64) (bool, error) {
	var exists bool
	err := f.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM friendships
			WHERE ((user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1))
			AND status = 'accepted'
		)`,
		userA, userB).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "check friendship")
	}
	return exists, nil
}
