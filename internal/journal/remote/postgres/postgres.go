// Package postgres implements the remote store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/practicejournal/pj/internal/journal/remote"
	"github.com/practicejournal/pj/internal/journal/schema"
)

// Store provides Postgres-backed persistence for journal records.
type Store struct {
	pool *pgxpool.Pool
}

// Open creates a pool for connString and verifies it.
func Open(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classify("ping", err)
	}
	return New(pool), nil
}

// New constructs a Store around an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// InitSchema creates the records table if it doesn't exist.
func (s *Store) InitSchema(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS journal_records (
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		payload TEXT NOT NULL,
		PRIMARY KEY (user_id, kind, id)
	)`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return classify("init schema", err)
	}
	return nil
}

// Push implements remote.Store. Older rows never replace newer ones.
func (s *Store) Push(ctx context.Context, scope remote.Scope, row *schema.Row) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	const query = `INSERT INTO journal_records
		(user_id, kind, id, parent_id, sort_order, created_at, updated_at, is_deleted, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, kind, id) DO UPDATE SET
			parent_id = EXCLUDED.parent_id,
			sort_order = EXCLUDED.sort_order,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			is_deleted = EXCLUDED.is_deleted,
			payload = EXCLUDED.payload
		WHERE EXCLUDED.updated_at >= journal_records.updated_at`

	_, err := s.pool.Exec(ctx, query,
		scope.UserID,
		string(row.Kind),
		row.ID,
		row.ParentID,
		row.SortOrder,
		row.CreatedAt,
		row.UpdatedAt,
		row.IsDeleted,
		string(row.Payload),
	)
	if err != nil {
		return classify(fmt.Sprintf("push %s %s", row.Kind, row.ID), err)
	}
	return nil
}

// PullAll implements remote.Store.
func (s *Store) PullAll(ctx context.Context, scope remote.Scope, kind schema.Kind) ([]*schema.Row, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	const query = `SELECT id, parent_id, sort_order, created_at, updated_at, is_deleted, payload
		FROM journal_records WHERE user_id=$1 AND kind=$2 ORDER BY id`

	rows, err := s.pool.Query(ctx, query, scope.UserID, string(kind))
	if err != nil {
		return nil, classify(fmt.Sprintf("pull %s", kind), err)
	}
	defer rows.Close()

	var out []*schema.Row
	for rows.Next() {
		r := &schema.Row{Kind: kind}
		var payload string
		if err := rows.Scan(&r.ID, &r.ParentID, &r.SortOrder, &r.CreatedAt, &r.UpdatedAt, &r.IsDeleted, &payload); err != nil {
			return nil, classify(fmt.Sprintf("scan %s", kind), err)
		}
		r.CreatedAt = schema.Stamp(r.CreatedAt)
		r.UpdatedAt = schema.Stamp(r.UpdatedAt)
		r.Payload = []byte(payload)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Sprintf("pull %s", kind), err)
	}
	return out, nil
}

// SQLSTATE codes that mean the caller is not allowed in.
var deniedCodes = map[string]bool{
	"42501": true, // insufficient_privilege
	"28000": true, // invalid_authorization_specification
	"28P01": true, // invalid_password
}

func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && deniedCodes[pgErr.Code] {
		return remote.Denied(op, err)
	}
	return remote.Unavailable(op, err)
}
