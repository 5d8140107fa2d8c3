package db

import (
	"context"
	"fmt"
	"time"

	"github.com/practicejournal/pj/internal/journal/schema"
)

// PendingEntry is a record waiting to be pushed to the remote store.
type PendingEntry struct {
	Kind      schema.Kind
	ID        string
	Attempts  int
	LastError string
	QueuedAt  time.Time
}

// RecordPushFailure bumps the attempt counter of a queued record.
// Records that are not queued are queued first.
func (db *DB) RecordPushFailure(ctx context.Context, kind schema.Kind, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	query := `
	INSERT INTO pending_sync (kind, id, attempts, last_error, queued_at)
	VALUES (?, ?, 1, ?, ?)
	ON CONFLICT(kind, id) DO UPDATE SET
		attempts = pending_sync.attempts + 1,
		last_error = excluded.last_error
	`
	_, err := db.conn.ExecContext(ctx, query, string(kind), id, msg, schema.FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to record push failure for %s %s: %w", kind, id, err)
	}
	return nil
}

// ClearPending removes a record from the sync queue.
// Returns nil if the record isn't queued (idempotent).
func (db *DB) ClearPending(ctx context.Context, kind schema.Kind, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM pending_sync WHERE kind = ? AND id = ?`, string(kind), id)
	if err != nil {
		return fmt.Errorf("failed to clear pending %s %s: %w", kind, id, err)
	}
	return nil
}

// PendingCount returns the number of records waiting for sync.
func (db *DB) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_sync`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending records: %w", err)
	}
	return count, nil
}

// ListPending returns queued records of kind, oldest first.
// An empty kind lists every queued record.
func (db *DB) ListPending(ctx context.Context, kind schema.Kind) ([]PendingEntry, error) {
	query := `SELECT kind, id, attempts, last_error, queued_at FROM pending_sync`
	var args []interface{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY queued_at ASC, kind ASC, id ASC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending records: %w", err)
	}
	defer rows.Close()

	var out []PendingEntry
	for rows.Next() {
		var (
			e        PendingEntry
			k        string
			queuedAt string
		)
		if err := rows.Scan(&k, &e.ID, &e.Attempts, &e.LastError, &queuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending record: %w", err)
		}
		e.Kind = schema.Kind(k)
		if e.QueuedAt, err = schema.ParseTime(queuedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending records: %w", err)
	}
	return out, nil
}
