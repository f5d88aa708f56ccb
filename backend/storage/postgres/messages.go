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
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/efchatnet/efchat-core/backend/models"
	"github.com/efchatnet/efchat-core/backend/storage"
)

const messageColumns = `m.id, m.conversation_id, m.group_id, m.sender_id, m.content, m.created_at,
	m.status, m.is_edited, m.edited_at, m.deleted_for_everyone, m.reply_to_message_id`

// statusRank orders statuses so updates can refuse to move backwards
const statusRank = `CASE m.status WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 ELSE 2 END`

const notHidden = `NOT EXISTS (
	SELECT 1 FROM message_hides h
	WHERE h.message_id = m.id AND h.user_id = $2)`

func scanMessage(row scanner) (*models.Message, error) {
	var m models.Message
	var conversationID, groupID, replyTo sql.NullInt64
	var editedAt sql.NullTime
	var status string

	err := row.Scan(
		&m.ID, &conversationID, &groupID, &m.SenderID, &m.Content, &m.CreatedAt,
		&status, &m.IsEdited, &editedAt, &m.DeletedForEveryone, &replyTo,
	)
	if err != nil {
		return nil, err
	}

	if conversationID.Valid {
		m.Scope = models.DirectScope(conversationID.Int64)
	} else {
		m.Scope = models.GroupScope(groupID.Int64)
	}
	m.Status = models.Status(status)
	m.CreatedAt = m.CreatedAt.UTC()
	if editedAt.Valid {
		t := editedAt.Time.UTC()
		m.EditedAt = &t
	}
	if replyTo.Valid {
		id := replyTo.Int64
		m.ReplyToMessageID = &id
	}
	return &m, nil
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	if err := lockScope(ctx, tx, msg.Scope); err != nil {
		return err
	}
	ok, err := belongs(ctx, tx, msg.Scope, msg.SenderID)
	if err != nil {
		return errors.Wrap(err, "check membership")
	}
	if !ok {
		return storage.ErrNotMember
	}

	if msg.Status == "" {
		msg.Status = models.StatusSent
	}
	var conversationID, groupID sql.NullInt64
	if msg.Scope.Kind == models.ScopeGroup {
		groupID = sql.NullInt64{Int64: msg.Scope.ID, Valid: true}
	} else {
		conversationID = sql.NullInt64{Int64: msg.Scope.ID, Valid: true}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, group_id, sender_id, content, created_at, status, reply_to_message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		conversationID, groupID, msg.SenderID, msg.Content, msg.CreatedAt,
		string(msg.Status), nullInt64(msg.ReplyToMessageID)).Scan(&msg.ID)
	if err != nil {
		return errors.Wrap(err, "insert message")
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET updated_at = GREATEST(updated_at, $2) WHERE id = $1`, scopeTable(msg.Scope)),
		msg.Scope.ID, msg.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "touch scope")
	}

	return tx.Commit()
}

func (s *Store) GetMessage(ctx context.Context, messageID int64) (*models.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, messageID))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get message")
	}
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, scope models.Scope) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages m
		WHERE m.`+scopeColumn(scope)+` = $1
		ORDER BY m.created_at, m.id`,
		scope.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	return scanMessages(rows)
}

// conditionFailed tells a missing message apart from a guard that did not hold
func (s *Store) conditionFailed(ctx context.Context, messageID int64) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, messageID).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "check message")
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrConditionFailed
}

func (s *Store) UpdateContent(ctx context.Context, messageID int64, content string, editedAt, notBefore time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET content = $2, is_edited = TRUE, edited_at = $3
		WHERE id = $1 AND NOT deleted_for_everyone AND created_at > $4`,
		messageID, content, editedAt, notBefore)
	if err != nil {
		return errors.Wrap(err, "update content")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.conditionFailed(ctx, messageID)
	}
	return nil
}

func (s *Store) Tombstone(ctx context.Context, messageID int64, notBefore time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET deleted_for_everyone = TRUE, content = ''
		WHERE id = $1 AND NOT deleted_for_everyone AND created_at > $2`,
		messageID, notBefore)
	if err != nil {
		return errors.Wrap(err, "tombstone message")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.conditionFailed(ctx, messageID)
	}
	return nil
}

func (s *Store) HideMessage(ctx context.Context, messageID, userID int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_hides (message_id, user_id, hidden_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, message_id) DO NOTHING`,
		messageID, userID, now)
	if pqCode(err) == pqForeignKeyViolation {
		return storage.ErrNotFound
	}
	return errors.Wrap(err, "hide message")
}

func (s *Store) HiddenMessageIDs(ctx context.Context, userID int64, scope models.Scope) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.message_id FROM message_hides h
		JOIN messages m ON m.id = h.message_id
		WHERE h.user_id = $1 AND m.`+scopeColumn(scope)+` = $2`,
		userID, scope.ID)
	if err != nil {
		return nil, errors.Wrap(err, "hidden messages")
	}
	defer rows.Close()

	hidden := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan hidden message")
		}
		hidden[id] = true
	}
	return hidden, rows.Err()
}

// advanceCursor moves viewerID's read cursor in groupID up to messageID
func advanceCursor(ctx context.Context, q querier, groupID, viewerID, messageID int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO group_read_cursors (group_id, user_id, last_read_message_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id, user_id) DO UPDATE
		SET last_read_message_id = GREATEST(group_read_cursors.last_read_message_id, EXCLUDED.last_read_message_id)`,
		groupID, viewerID, messageID)
	return err
}

func (s *Store) AdvanceStatus(ctx context.Context, messageIDs []int64, viewerID int64, status models.Status) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	if status == models.StatusRead {
		rows, err := tx.QueryContext(ctx, `
			SELECT m.group_id, MAX(m.id) FROM messages m
			JOIN group_members gm ON gm.group_id = m.group_id AND gm.user_id = $2
			WHERE m.id = ANY($1) AND m.sender_id <> $2
			GROUP BY m.group_id`,
			pq.Array(messageIDs), viewerID)
		if err != nil {
			return 0, errors.Wrap(err, "read cursors")
		}
		cursors := make(map[int64]int64)
		for rows.Next() {
			var groupID, maxID int64
			if err := rows.Scan(&groupID, &maxID); err != nil {
				rows.Close()
				return 0, errors.Wrap(err, "scan cursor")
			}
			cursors[groupID] = maxID
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return 0, errors.Wrap(err, "read cursors")
		}
		for groupID, maxID := range cursors {
			if err := advanceCursor(ctx, tx, groupID, viewerID, maxID); err != nil {
				return 0, errors.Wrap(err, "advance cursor")
			}
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE messages m SET status = $3
		WHERE m.id = ANY($1)
		  AND m.sender_id <> $2
		  AND `+statusRank+` < $4
		  AND (
		    EXISTS (SELECT 1 FROM conversations c
		            WHERE c.id = m.conversation_id AND (c.participant_a = $2 OR c.participant_b = $2))
		    OR EXISTS (SELECT 1 FROM group_members gm
		               WHERE gm.group_id = m.group_id AND gm.user_id = $2)
		  )`,
		pq.Array(messageIDs), viewerID, string(status), status.Rank())
	if err != nil {
		return 0, errors.Wrap(err, "advance status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "advance status")
	}

	return n, tx.Commit()
}

func (s *Store) MarkScopeRead(ctx context.Context, scope models.Scope, viewerID int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	ok, err := belongs(ctx, tx, scope, viewerID)
	if err != nil {
		return 0, errors.Wrap(err, "check membership")
	}
	if !ok {
		return 0, storage.ErrNotMember
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE messages SET status = 'read'
		WHERE `+scopeColumn(scope)+` = $1 AND sender_id <> $2 AND status <> 'read'`,
		scope.ID, viewerID)
	if err != nil {
		return 0, errors.Wrap(err, "mark read")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "mark read")
	}

	if scope.Kind == models.ScopeGroup {
		var maxID sql.NullInt64
		err = tx.QueryRowContext(ctx, `
			SELECT MAX(id) FROM messages
			WHERE group_id = $1 AND sender_id <> $2`,
			scope.ID, viewerID).Scan(&maxID)
		if err != nil {
			return 0, errors.Wrap(err, "latest message")
		}
		if maxID.Valid {
			if err := advanceCursor(ctx, tx, scope.ID, viewerID, maxID.Int64); err != nil {
				return 0, errors.Wrap(err, "advance cursor")
			}
		}
	}

	return n, tx.Commit()
}

func (s *Store) LastVisibleMessage(ctx context.Context, scope models.Scope, viewerID int64) (*models.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages m
		WHERE m.`+scopeColumn(scope)+` = $1 AND `+notHidden+`
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1`,
		scope.ID, viewerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "last message")
	}
	return m, nil
}

func (s *Store) CountUnread(ctx context.Context, scope models.Scope, viewerID int64) (int, error) {
	var unreadCond string
	switch scope.Kind {
	case models.ScopeGroup:
		unreadCond = `m.id > COALESCE((
			SELECT last_read_message_id FROM group_read_cursors
			WHERE group_id = $1 AND user_id = $2), 0)`
	default:
		unreadCond = `m.status <> 'read'`
	}

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m
		WHERE m.`+scopeColumn(scope)+` = $1
		  AND m.sender_id <> $2
		  AND `+unreadCond+`
		  AND `+notHidden,
		scope.ID, viewerID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count unread")
	}
	return n, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) SearchMessages(ctx context.Context, viewerID int64, query string, limit int) ([]models.Message, error) {
	pattern := "%" + likeEscaper.Replace(query) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages m
		WHERE m.content ILIKE $1 ESCAPE '\'
		  AND NOT m.deleted_for_everyone
		  AND `+notHidden+`
		  AND (
		    m.conversation_id IN (SELECT id FROM conversations WHERE participant_a = $2 OR participant_b = $2)
		    OR m.group_id IN (SELECT group_id FROM group_members WHERE user_id = $2)
		  )
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $3`,
		pattern, viewerID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "search messages")
	}
	return scanMessages(rows)
}
