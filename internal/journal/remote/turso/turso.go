// Package turso implements the remote store on a Turso (libSQL) database.
//
// Records of every user live in one journal_records table keyed by
// (user_id, kind, id). The upsert only replaces a stored copy when the
// incoming updated_at is not older, which makes Push idempotent and keeps a
// stale device from overwriting newer data.
//
// The store works on any *sql.DB speaking SQLite's dialect. Production
// opens libsql:// URLs through the go-libsql driver; tests hand in an
// embedded SQLite connection.
package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/practicejournal/pj/internal/journal/remote"
	"github.com/practicejournal/pj/internal/journal/schema"
)

// Store is a remote.Store backed by a libSQL database.
type Store struct {
	db *sql.DB
}

// Open connects to a Turso database. authToken may be empty for local
// sqld instances.
//
// Example:
//
//	store, err := turso.Open("libsql://journal-me.turso.io", token)
func Open(dbURL, authToken string) (*Store, error) {
	dsn, err := buildDSN(dbURL, authToken)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open turso database: %w", err)
	}
	return New(conn), nil
}

// New wraps an existing connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func buildDSN(dbURL, authToken string) (string, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", fmt.Errorf("invalid turso url: %w", err)
	}
	switch u.Scheme {
	case "libsql", "http", "https", "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported turso url scheme %q", u.Scheme)
	}
	if authToken != "" {
		q := u.Query()
		q.Set("authToken", authToken)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// InitSchema creates the records table if it doesn't exist.
func (s *Store) InitSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS journal_records (
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL,
		PRIMARY KEY (user_id, kind, id)
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return classify("init schema", err)
	}
	return nil
}

// Push implements remote.Store.
func (s *Store) Push(ctx context.Context, scope remote.Scope, row *schema.Row) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	query := `
	INSERT INTO journal_records (
		user_id, kind, id, parent_id, sort_order,
		created_at, updated_at, is_deleted, payload
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id, kind, id) DO UPDATE SET
		parent_id = excluded.parent_id,
		sort_order = excluded.sort_order,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		is_deleted = excluded.is_deleted,
		payload = excluded.payload
	WHERE excluded.updated_at >= journal_records.updated_at
	`
	deleted := 0
	if row.IsDeleted {
		deleted = 1
	}
	_, err := s.db.ExecContext(ctx, query,
		scope.UserID,
		string(row.Kind),
		row.ID,
		row.ParentID,
		row.SortOrder,
		schema.FormatTime(row.CreatedAt),
		schema.FormatTime(row.UpdatedAt),
		deleted,
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

	query := `
	SELECT id, parent_id, sort_order, created_at, updated_at, is_deleted, payload
	FROM journal_records
	WHERE user_id = ? AND kind = ?
	ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, scope.UserID, string(kind))
	if err != nil {
		return nil, classify(fmt.Sprintf("pull %s", kind), err)
	}
	defer rows.Close()

	var out []*schema.Row
	for rows.Next() {
		var (
			r                    = &schema.Row{Kind: kind}
			createdAt, updatedAt string
			deleted              int
			payload              string
		)
		if err := rows.Scan(&r.ID, &r.ParentID, &r.SortOrder, &createdAt, &updatedAt, &deleted, &payload); err != nil {
			return nil, classify(fmt.Sprintf("scan %s", kind), err)
		}
		if r.CreatedAt, err = schema.ParseTime(createdAt); err != nil {
			return nil, err
		}
		if r.UpdatedAt, err = schema.ParseTime(updatedAt); err != nil {
			return nil, err
		}
		r.IsDeleted = deleted != 0
		r.Payload = []byte(payload)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Sprintf("pull %s", kind), err)
	}
	return out, nil
}

var deniedMarkers = []string{
	"401",
	"403",
	"unauthorized",
	"forbidden",
	"permission denied",
	"not authorized",
	"auth token",
	"readonly",
}

// classify maps driver errors onto the remote error taxonomy. libSQL
// reports HTTP auth failures only through the message text.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return remote.Unavailable(op, err)
	}
	msg := strings.ToLower(err.Error())
	for _, m := range deniedMarkers {
		if strings.Contains(msg, m) {
			return remote.Denied(op, err)
		}
	}
	return remote.Unavailable(op, err)
}
