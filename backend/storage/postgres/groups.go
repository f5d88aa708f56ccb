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

const groupColumns = `id, name, description, picture, owner_id, created_at, updated_at`

func scanGroup(row scanner, extra ...any) (*models.Group, error) {
	var g models.Group
	dest := append([]any{&g.ID, &g.Name, &g.Description, &g.Picture, &g.OwnerID, &g.CreatedAt, &g.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	g.CreatedAt = g.CreatedAt.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return &g, nil
}

func (s *Store) CreateGroup(ctx context.Context, group *models.Group, memberIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	// Create group
	err = tx.QueryRowContext(ctx, `
		INSERT INTO groups (name, description, picture, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id`,
		group.Name, group.Description, group.Picture, group.OwnerID, group.CreatedAt).Scan(&group.ID)
	if err != nil {
		return errors.Wrap(err, "insert group")
	}

	// Owner is the first admin
	_, err = tx.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id, role, joined_at)
		VALUES ($1, $2, 'admin', $3)`,
		group.ID, group.OwnerID, group.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert owner")
	}

	for _, userID := range memberIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO group_members (group_id, user_id, role, joined_at)
			VALUES ($1, $2, 'member', $3)
			ON CONFLICT (group_id, user_id) DO NOTHING`,
			group.ID, userID, group.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "insert member")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	group.UpdatedAt = group.CreatedAt
	return nil
}

func (s *Store) GetGroup(ctx context.Context, groupID int64) (*models.Group, error) {
	g, err := scanGroup(s.db.QueryRowContext(ctx, `
		SELECT `+groupColumns+` FROM groups WHERE id = $1`, groupID))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get group")
	}
	return g, nil
}

func (s *Store) GetMember(ctx context.Context, groupID, userID int64) (*models.GroupMember, error) {
	var m models.GroupMember
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT group_id, user_id, role, joined_at FROM group_members
		WHERE group_id = $1 AND user_id = $2`,
		groupID, userID).Scan(&m.GroupID, &m.UserID, &role, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get member")
	}
	m.Role = models.Role(role)
	m.JoinedAt = m.JoinedAt.UTC()
	return &m, nil
}

func (s *Store) ListMembers(ctx context.Context, groupID int64) ([]models.GroupMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, user_id, role, joined_at FROM group_members
		WHERE group_id = $1
		ORDER BY joined_at, user_id`,
		groupID)
	if err != nil {
		return nil, errors.Wrap(err, "list members")
	}
	defer rows.Close()

	var members []models.GroupMember
	for rows.Next() {
		var m models.GroupMember
		var role string
		if err := rows.Scan(&m.GroupID, &m.UserID, &role, &m.JoinedAt); err != nil {
			return nil, errors.Wrap(err, "scan member")
		}
		m.Role = models.Role(role)
		m.JoinedAt = m.JoinedAt.UTC()
		members = append(members, m)
	}

	return members, rows.Err()
}

func (s *Store) ListGroupsForUser(ctx context.Context, userID int64) ([]models.GroupSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.description, g.picture, g.owner_id, g.created_at, g.updated_at,
		       m.role,
		       (SELECT COUNT(*) FROM group_members c WHERE c.group_id = g.id)
		FROM groups g
		JOIN group_members m ON m.group_id = g.id AND m.user_id = $1
		ORDER BY g.updated_at DESC, g.id DESC`,
		userID)
	if err != nil {
		return nil, errors.Wrap(err, "list groups")
	}
	defer rows.Close()

	var groups []models.GroupSummary
	for rows.Next() {
		var role string
		var count int
		g, err := scanGroup(rows, &role, &count)
		if err != nil {
			return nil, errors.Wrap(err, "scan group")
		}
		groups = append(groups, models.GroupSummary{Group: *g, Role: models.Role(role), MemberCount: count})
	}

	return groups, rows.Err()
}

func (s *Store) AddMember(ctx context.Context, groupID, actorID, userID int64, role models.Role, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	if err := lockAsAdmin(ctx, tx, groupID, actorID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID, string(role), now)
	if err != nil {
		return errors.Wrap(err, "add member")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "add member")
	}
	if n == 0 {
		return storage.ErrAlreadyMember
	}

	return tx.Commit()
}

// memberRole reads a member's role inside tx
func memberRole(ctx context.Context, tx *sql.Tx, groupID, userID int64) (models.Role, error) {
	var role string
	err := tx.QueryRowContext(ctx, `
		SELECT role FROM group_members
		WHERE group_id = $1 AND user_id = $2`,
		groupID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "member role")
	}
	return models.Role(role), nil
}

// lockAsAdmin locks the group row and then requires actorID to be one of its
// admins. Every membership write takes the same row lock, so the answer holds
// until tx ends.
func lockAsAdmin(ctx context.Context, tx *sql.Tx, groupID, actorID int64) error {
	if err := lockScope(ctx, tx, models.GroupScope(groupID)); err != nil {
		return err
	}
	role, err := memberRole(ctx, tx, groupID, actorID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && role != models.RoleAdmin) {
		return storage.ErrNotAdmin
	}
	return err
}

func countMembers(ctx context.Context, tx *sql.Tx, groupID int64) (admins, total int, err error) {
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE role = 'admin'), COUNT(*)
		FROM group_members WHERE group_id = $1`,
		groupID).Scan(&admins, &total)
	return admins, total, err
}

func (s *Store) RemoveMember(ctx context.Context, groupID, actorID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	if actorID == userID {
		err = lockScope(ctx, tx, models.GroupScope(groupID))
	} else {
		err = lockAsAdmin(ctx, tx, groupID, actorID)
	}
	if err != nil {
		return err
	}

	role, err := memberRole(ctx, tx, groupID, userID)
	if err != nil {
		return err
	}

	if role == models.RoleAdmin {
		admins, total, err := countMembers(ctx, tx, groupID)
		if err != nil {
			return errors.Wrap(err, "count members")
		}
		if admins == 1 && total > 1 {
			return storage.ErrLastAdmin
		}
	}

	// Remove member
	_, err = tx.ExecContext(ctx, `
		DELETE FROM group_members
		WHERE group_id = $1 AND user_id = $2`,
		groupID, userID)
	if err != nil {
		return errors.Wrap(err, "delete member")
	}

	// Drop their read cursor
	_, err = tx.ExecContext(ctx, `
		DELETE FROM group_read_cursors
		WHERE group_id = $1 AND user_id = $2`,
		groupID, userID)
	if err != nil {
		return errors.Wrap(err, "delete cursor")
	}

	return tx.Commit()
}

func (s *Store) SetMemberRole(ctx context.Context, groupID, actorID, userID int64, role models.Role) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	if err := lockAsAdmin(ctx, tx, groupID, actorID); err != nil {
		return err
	}

	current, err := memberRole(ctx, tx, groupID, userID)
	if err != nil {
		return err
	}
	if current == role {
		return nil
	}

	if current == models.RoleAdmin {
		admins, _, err := countMembers(ctx, tx, groupID)
		if err != nil {
			return errors.Wrap(err, "count members")
		}
		if admins == 1 {
			return storage.ErrLastAdmin
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE group_members SET role = $3
		WHERE group_id = $1 AND user_id = $2`,
		groupID, userID, string(role))
	if err != nil {
		return errors.Wrap(err, "update role")
	}

	return tx.Commit()
}
