package db

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicejournal/pj/internal/journal/schema"
)

// setupTestDB opens a fresh database with schema in a temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err, "Open() failed")
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.InitSchema(context.Background()), "InitSchema() failed")
	return database
}

func testRow(kind schema.Kind, id, parent string, order int, at time.Time) *schema.Row {
	return &schema.Row{
		Kind:      kind,
		ID:        id,
		ParentID:  parent,
		SortOrder: order,
		CreatedAt: schema.Stamp(at),
		UpdatedAt: schema.Stamp(at),
		Payload:   json.RawMessage(`{"title":"` + id + `"}`),
	}
}

// TestOpen_CreatesDirectory tests that Open creates missing parent directories
func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "journal.db")
	database, err := Open(path)
	require.NoError(t, err)
	defer database.Close()

	assert.Equal(t, path, database.Path())
	assert.NotNil(t, database.RawDB())
}

// TestInitSchema_Idempotent tests that schema initialization can run twice
func TestInitSchema_Idempotent(t *testing.T) {
	database := setupTestDB(t)
	assert.NoError(t, database.InitSchema(context.Background()))

	for _, table := range []string{"records", "pending_sync"} {
		var count int
		err := database.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s missing", table)
	}
}

// TestPutGet_RoundTrip tests that a row comes back unchanged
func TestPutGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	in := testRow(schema.KindTask, "t1", "g1", 2, time.Now())
	require.NoError(t, database.Put(ctx, in))

	got, err := database.Get(ctx, schema.KindTask, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, in.SameContent(got))

	missing, err := database.Get(ctx, schema.KindTask, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// TestPut_Upsert tests that Put replaces an existing row by (kind, id)
func TestPut_Upsert(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	now := time.Now()
	row := testRow(schema.KindGroup, "g1", "", 0, now)
	require.NoError(t, database.Put(ctx, row))

	row = row.Clone()
	row.Tombstone(schema.After(now, row.UpdatedAt))
	require.NoError(t, database.Put(ctx, row))

	got, err := database.Get(ctx, schema.KindGroup, "g1")
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)

	live, err := database.Count(ctx, schema.KindGroup, false)
	require.NoError(t, err)
	assert.Zero(t, live)

	all, err := database.Count(ctx, schema.KindGroup, true)
	require.NoError(t, err)
	assert.Equal(t, 1, all)
}

// TestPut_RejectsInvalidRows tests envelope validation before writing
func TestPut_RejectsInvalidRows(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	orphan := testRow(schema.KindMeasure, "m1", "", 0, time.Now())
	assert.Error(t, database.Put(ctx, orphan))

	noID := testRow(schema.KindGroup, "", "", 0, time.Now())
	assert.Error(t, database.Put(ctx, noID))
}

// TestList_OrderAndFilters tests display ordering, tombstone and parent filters
func TestList_OrderAndFilters(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	base := time.Now()
	rows := []*schema.Row{
		testRow(schema.KindTask, "t-c", "g1", 2, base),
		testRow(schema.KindTask, "t-a", "g1", 0, base.Add(time.Second)),
		testRow(schema.KindTask, "t-b", "g1", 1, base.Add(-time.Second)),
		testRow(schema.KindTask, "t-other", "g2", 0, base),
	}
	deleted := testRow(schema.KindTask, "t-gone", "g1", 3, base)
	deleted.IsDeleted = true
	rows = append(rows, deleted)
	require.NoError(t, database.Put(ctx, rows...))

	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{"live only", ListOptions{}, []string{"t-other", "t-a", "t-b", "t-c"}},
		{"by parent", ListOptions{ParentID: "g1"}, []string{"t-a", "t-b", "t-c"}},
		{"with tombstones", ListOptions{ParentID: "g1", IncludeDeleted: true}, []string{"t-a", "t-b", "t-c", "t-gone"}},
		{"limited", ListOptions{ParentID: "g1", Limit: 2}, []string{"t-a", "t-b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := database.List(ctx, schema.KindTask, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}

	siblings, err := database.Siblings(ctx, schema.KindTask, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t-a", "t-b", "t-c"}, ids(siblings))

	none, err := database.Children(ctx, schema.KindTask, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// TestPendingQueue tests queueing, failure bookkeeping and clearing
func TestPendingQueue(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	now := time.Now()
	require.NoError(t, database.PutPending(ctx,
		testRow(schema.KindGroup, "g1", "", 0, now),
		testRow(schema.KindGroup, "g2", "", 1, now),
	))
	require.NoError(t, database.Put(ctx, testRow(schema.KindGroup, "g3", "", 2, now)))

	count, err := database.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, database.RecordPushFailure(ctx, schema.KindGroup, "g1", errors.New("timeout")))
	require.NoError(t, database.RecordPushFailure(ctx, schema.KindGroup, "g1", errors.New("refused")))

	entries, err := database.ListPending(ctx, schema.KindGroup)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	byID := map[string]PendingEntry{}
	for _, e := range entries {
		byID[e.ID] = e
	}
	assert.Equal(t, 2, byID["g1"].Attempts)
	assert.Equal(t, "refused", byID["g1"].LastError)
	assert.Zero(t, byID["g2"].Attempts)

	require.NoError(t, database.ClearPending(ctx, schema.KindGroup, "g1"))
	require.NoError(t, database.ClearPending(ctx, schema.KindGroup, "g1"))

	count, err = database.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	others, err := database.ListPending(ctx, schema.KindTask)
	require.NoError(t, err)
	assert.Empty(t, others)
}

func ids(rows []*schema.Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}
