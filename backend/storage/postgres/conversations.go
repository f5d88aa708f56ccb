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
	"time"

	"github.com/pkg/errors"

	"github.com/efchatnet/efchat-core/backend/models"
	"github.com/efchatnet/efchat-core/backend/storage"
)

const conversationColumns = `id, participant_a, participant_b, created_at, updated_at`

func scanConversation(row scanner) (*models.Conversation, error) {
	var c models.Conversation
	if err := row.Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

// GetOrCreateConversation relies on the ordered pair's unique constraint: the
// insert either wins or yields to the row a concurrent caller created.
func (s *Store) GetOrCreateConversation(ctx context.Context, userA, userB int64, now time.Time) (*models.Conversation, error) {
	a, b := models.OrderedPair(userA, userB)

	conv, err := scanConversation(s.db.QueryRowContext(ctx, `
		INSERT INTO conversations (participant_a, participant_b, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (participant_a, participant_b) DO NOTHING
		RETURNING `+conversationColumns,
		a, b, now))
	if err == nil {
		return conv, nil
	}
	if err != sql.ErrNoRows {
		return nil, errors.Wrap(err, "insert conversation")
	}

	conv, err = scanConversation(s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE participant_a = $1 AND participant_b = $2`,
		a, b))
	if err != nil {
		return nil, errors.Wrap(err, "select conversation")
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE id = $1`, conversationID))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get conversation")
	}
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY updated_at DESC, id DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan conversation")
		}
		convs = append(convs, *conv)
	}

	return convs, rows.Err()
}
