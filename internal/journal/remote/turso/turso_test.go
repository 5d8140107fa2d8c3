package turso

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicejournal/pj/internal/journal/remote"
	"github.com/practicejournal/pj/internal/journal/schema"
)

// setupStore runs the store against an embedded SQLite file, which speaks
// the same dialect as libSQL.
func setupStore(t *testing.T) *Store {
	t.Helper()
	conn, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "remote.db"))
	require.NoError(t, err)
	store := New(conn)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema(context.Background()))
	require.NoError(t, store.InitSchema(context.Background()))
	return store
}

func taskRow(id, title string, at time.Time) *schema.Row {
	return &schema.Row{
		Kind:      schema.KindTask,
		ID:        id,
		ParentID:  "g1",
		SortOrder: 1,
		CreatedAt: schema.Stamp(at),
		UpdatedAt: schema.Stamp(at),
		Payload:   json.RawMessage(`{"title":"` + title + `","group_id":"g1"}`),
	}
}

func TestStore_PushPull(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	alice := remote.Scope{UserID: "alice"}
	bob := remote.Scope{UserID: "bob"}
	now := time.Now()

	row := taskRow("t1", "Toss", now)
	require.NoError(t, store.Push(ctx, alice, row))
	require.NoError(t, store.Push(ctx, alice, row))

	rows, err := store.PullAll(ctx, alice, schema.KindTask)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, row.SameContent(rows[0]))

	others, err := store.PullAll(ctx, bob, schema.KindTask)
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestStore_PushNeverRegresses(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	alice := remote.Scope{UserID: "alice"}
	now := time.Now()

	newer := taskRow("t1", "Newer", now.Add(time.Minute))
	newer.Tombstone(newer.UpdatedAt)
	require.NoError(t, store.Push(ctx, alice, newer))
	require.NoError(t, store.Push(ctx, alice, taskRow("t1", "Older", now)))

	rows, err := store.PullAll(ctx, alice, schema.KindTask)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsDeleted, "tombstones are returned by PullAll")
	assert.True(t, newer.SameContent(rows[0]))
}

func TestStore_RequiresScope(t *testing.T) {
	store := setupStore(t)
	err := store.Push(context.Background(), remote.Scope{}, taskRow("t1", "Toss", time.Now()))
	assert.ErrorIs(t, err, remote.ErrNoScope)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"http 401", errors.New("failed to execute: 401 Unauthorized"), remote.ErrPermissionDenied},
		{"expired token", errors.New("auth token expired"), remote.ErrPermissionDenied},
		{"network", errors.New("dial tcp: connection refused"), remote.ErrUnavailable},
		{"timeout", context.DeadlineExceeded, remote.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("push", tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestBuildDSN(t *testing.T) {
	dsn, err := buildDSN("libsql://journal.turso.io", "tok")
	require.NoError(t, err)
	assert.Equal(t, "libsql://journal.turso.io?authToken=tok", dsn)

	_, err = buildDSN("postgres://x", "")
	assert.Error(t, err)
}
