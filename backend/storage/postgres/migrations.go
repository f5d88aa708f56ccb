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

	"github.com/pkg/errors"
)

func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		// Users are owned by the auth service; created here only when missing
		// so profiles resolve in standalone deployments.
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(255) NOT NULL UNIQUE,
			display_name VARCHAR(255),
			avatar TEXT,
			verified BOOLEAN NOT NULL DEFAULT FALSE
		)`,

		// Friendships are also owned by the auth service; only accepted rows matter here
		`CREATE TABLE IF NOT EXISTS friendships (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			friend_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			status VARCHAR(16) NOT NULL CHECK (status IN ('pending', 'accepted', 'rejected', 'blocked')),
			requested_by BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, friend_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_friendships_friend_id ON friendships(friend_id)`,

		// One row per unordered pair
		`CREATE TABLE IF NOT EXISTS conversations (
			id BIGSERIAL PRIMARY KEY,
			participant_a BIGINT NOT NULL,
			participant_b BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT unique_conversation_pair UNIQUE (participant_a, participant_b),
			CONSTRAINT ordered_participants CHECK (participant_a < participant_b)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_conversations_participant_b
		ON conversations(participant_b)`,

		`CREATE TABLE IF NOT EXISTS groups (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			picture TEXT NOT NULL DEFAULT '',
			owner_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS group_members (
			group_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			role VARCHAR(10) NOT NULL DEFAULT 'member' CHECK (role IN ('member', 'admin')),
			joined_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (group_id, user_id),
			FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_group_members_user
		ON group_members(user_id)`,

		// Direct and group messages share a table; exactly one target is set
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			conversation_id BIGINT REFERENCES conversations(id),
			group_id BIGINT REFERENCES groups(id) ON DELETE CASCADE,
			sender_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			status VARCHAR(10) NOT NULL DEFAULT 'sent' CHECK (status IN ('sent', 'delivered', 'read')),
			is_edited BOOLEAN NOT NULL DEFAULT FALSE,
			edited_at TIMESTAMPTZ,
			deleted_for_everyone BOOLEAN NOT NULL DEFAULT FALSE,
			reply_to_message_id BIGINT REFERENCES messages(id) ON DELETE SET NULL,
			CONSTRAINT one_scope CHECK ((conversation_id IS NULL) <> (group_id IS NULL))
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages(conversation_id, created_at, id)
		WHERE conversation_id IS NOT NULL`,

		`CREATE INDEX IF NOT EXISTS idx_messages_group
		ON messages(group_id, created_at, id)
		WHERE group_id IS NOT NULL`,

		// Delete-for-me records
		`CREATE TABLE IF NOT EXISTS message_hides (
			message_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			hidden_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, message_id),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS mutes (
			user_id BIGINT NOT NULL,
			target_kind VARCHAR(20) NOT NULL CHECK (target_kind IN ('conversation', 'group')),
			target_id BIGINT NOT NULL,
			muted BOOLEAN NOT NULL DEFAULT TRUE,
			PRIMARY KEY (user_id, target_kind, target_id)
		)`,

		// Highest group message id each member has read
		`CREATE TABLE IF NOT EXISTS group_read_cursors (
			group_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			last_read_message_id BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (group_id, user_id),
			FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}

	return nil
}
