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
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/efchatnet/efchat-core/backend/models"
	"github.com/efchatnet/efchat-core/backend/storage"
)

// Store implements storage.Store on PostgreSQL. Writes that depend on the
// state of a conversation or group take a row lock on it first, so they
// serialize per scope.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to url with lib/pq and pings the server
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return db, nil
}

type scanner interface {
	Scan(dest ...any) error
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

// scopeColumn names the messages column that addresses scope
func scopeColumn(scope models.Scope) string {
	if scope.Kind == models.ScopeGroup {
		return "group_id"
	}
	return "conversation_id"
}

func scopeTable(scope models.Scope) string {
	if scope.Kind == models.ScopeGroup {
		return "groups"
	}
	return "conversations"
}

// lockScope row-locks the conversation or group for the rest of tx
func lockScope(ctx context.Context, tx *sql.Tx, scope models.Scope) error {
	var id int64
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 FOR UPDATE`, scopeTable(scope)),
		scope.ID).Scan(&id)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	return err
}

func belongs(ctx context.Context, q querier, scope models.Scope, userID int64) (bool, error) {
	var query string
	switch scope.Kind {
	case models.ScopeDirect:
		query = `SELECT EXISTS (
			SELECT 1 FROM conversations
			WHERE id = $1 AND (participant_a = $2 OR participant_b = $2))`
	case models.ScopeGroup:
		query = `SELECT EXISTS (
			SELECT 1 FROM group_members
			WHERE group_id = $1 AND user_id = $2)`
	default:
		return false, nil
	}

	var ok bool
	err := q.QueryRowContext(ctx, query, scope.ID, userID).Scan(&ok)
	return ok, err
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
