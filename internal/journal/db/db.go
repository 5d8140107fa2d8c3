// Package db provides the on-device journal store on embedded SQLite.
//
// The local store is the single source of truth for everything the user
// sees. It keeps every record (tombstones included) in one records table
// keyed by (kind, id), plus a pending_sync table listing records whose
// latest state has not yet been confirmed by the remote store.
//
// Architecture:
//   - Database file: ~/.pj/journal.db
//   - WAL mode: readers proceed during writes
//   - Tables: records, pending_sync
//   - Indexes: sibling lookups (kind, parent_id) and display order
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/practicejournal/pj/internal/journal/schema"
)

// DB wraps the SQLite connection holding the journal.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// Pragmas are applied through the DSN so that every pooled connection
// gets them. The caller MUST call Close() when done.
//
// Example:
//
//	database, err := db.Open(filepath.Join(dataDir, "journal.db"))
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_txlock=immediate"+
		"&_pragma=busy_timeout(5000)"+
		"&_pragma=journal_mode(wal)"+
		"&_pragma=foreign_keys(on)", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn, path: path}, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the tables if they don't exist. Safe to call repeatedly.
func (db *DB) InitSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS records (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL,
		PRIMARY KEY (kind, id)
	);

	-- Records whose latest local state the remote has not confirmed
	CREATE TABLE IF NOT EXISTS pending_sync (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		queued_at TEXT NOT NULL,
		PRIMARY KEY (kind, id),
		FOREIGN KEY (kind, id) REFERENCES records(kind, id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_records_parent
	    ON records(kind, parent_id, is_deleted);
	CREATE INDEX IF NOT EXISTS idx_records_display
	    ON records(kind, sort_order, created_at);
	`

	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

const recordColumns = `kind, id, parent_id, sort_order, created_at, updated_at, is_deleted, payload`

// Get returns the record, tombstoned or not. Returns nil if it doesn't exist.
func (db *DB) Get(ctx context.Context, kind schema.Kind, id string) (*schema.Row, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE kind = ? AND id = ?`
	row, err := scanRow(db.conn.QueryRowContext(ctx, query, string(kind), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, id, err)
	}
	return row, nil
}

// ListOptions configures List.
type ListOptions struct {
	// IncludeDeleted returns tombstoned records too
	IncludeDeleted bool
	// ParentID restricts results to children of one record (empty = all)
	ParentID string
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// List returns records of one kind in display order: sort_order then
// created_at. Unordered kinds all have sort_order 0.
func (db *DB) List(ctx context.Context, kind schema.Kind, opts ListOptions) ([]*schema.Row, error) {
	conditions := []string{"kind = ?"}
	args := []interface{}{string(kind)}

	if !opts.IncludeDeleted {
		conditions = append(conditions, "is_deleted = 0")
	}
	if opts.ParentID != "" {
		conditions = append(conditions, "parent_id = ?")
		args = append(args, opts.ParentID)
	}

	query := `SELECT ` + recordColumns + ` FROM records
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY sort_order ASC, created_at ASC, id ASC`

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	return db.query(ctx, query, args...)
}

// Siblings returns the live records of kind sharing parentID, in display
// order. For root kinds parentID is "" and all live records are siblings.
func (db *DB) Siblings(ctx context.Context, kind schema.Kind, parentID string) ([]*schema.Row, error) {
	query := `SELECT ` + recordColumns + ` FROM records
		WHERE kind = ? AND parent_id = ? AND is_deleted = 0
		ORDER BY sort_order ASC, created_at ASC, id ASC`
	return db.query(ctx, query, string(kind), parentID)
}

// Children returns the live records of kind whose parent is parentID.
func (db *DB) Children(ctx context.Context, kind schema.Kind, parentID string) ([]*schema.Row, error) {
	if parentID == "" {
		return nil, nil
	}
	return db.Siblings(ctx, kind, parentID)
}

func (db *DB) query(ctx context.Context, query string, args ...interface{}) ([]*schema.Row, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []*schema.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return out, nil
}

// Put writes rows as-is, without queueing them for sync. Used for rows that
// came from the remote store.
func (db *DB) Put(ctx context.Context, rows ...*schema.Row) error {
	return db.write(ctx, rows, false)
}

// PutPending writes rows and queues each for sync in the same transaction.
func (db *DB) PutPending(ctx context.Context, rows ...*schema.Row) error {
	return db.write(ctx, rows, true)
}

func (db *DB) write(ctx context.Context, rows []*schema.Row, pending bool) error {
	if len(rows) == 0 {
		return nil
	}
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("invalid %s row: %w", r.Kind, err)
		}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
	INSERT INTO records (` + recordColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(kind, id) DO UPDATE SET
		parent_id = excluded.parent_id,
		sort_order = excluded.sort_order,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		is_deleted = excluded.is_deleted,
		payload = excluded.payload
	`
	queue := `
	INSERT INTO pending_sync (kind, id, attempts, last_error, queued_at)
	VALUES (?, ?, 0, '', ?)
	ON CONFLICT(kind, id) DO UPDATE SET queued_at = excluded.queued_at
	`

	now := schema.FormatTime(time.Now())
	for _, r := range rows {
		_, err := tx.ExecContext(ctx, upsert,
			string(r.Kind),
			r.ID,
			r.ParentID,
			r.SortOrder,
			schema.FormatTime(r.CreatedAt),
			schema.FormatTime(r.UpdatedAt),
			boolToInt(r.IsDeleted),
			string(r.Payload),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert %s %s: %w", r.Kind, r.ID, err)
		}
		if pending {
			if _, err := tx.ExecContext(ctx, queue, string(r.Kind), r.ID, now); err != nil {
				return fmt.Errorf("failed to queue %s %s: %w", r.Kind, r.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Count returns the number of records of kind.
func (db *DB) Count(ctx context.Context, kind schema.Kind, includeDeleted bool) (int, error) {
	query := `SELECT COUNT(*) FROM records WHERE kind = ?`
	if !includeDeleted {
		query += ` AND is_deleted = 0`
	}
	var count int
	if err := db.conn.QueryRowContext(ctx, query, string(kind)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s records: %w", kind, err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRow(s scanner) (*schema.Row, error) {
	var (
		row                  schema.Row
		kind                 string
		createdAt, updatedAt string
		deleted              int
		payload              string
	)
	if err := s.Scan(&kind, &row.ID, &row.ParentID, &row.SortOrder, &createdAt, &updatedAt, &deleted, &payload); err != nil {
		return nil, err
	}

	var err error
	row.Kind = schema.Kind(kind)
	if row.CreatedAt, err = schema.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if row.UpdatedAt, err = schema.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	row.IsDeleted = deleted != 0
	row.Payload = []byte(payload)
	return &row, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
