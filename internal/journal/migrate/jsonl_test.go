package migrate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicejournal/pj/internal/journal/db"
	"github.com/practicejournal/pj/internal/journal/schema"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.InitSchema(context.Background()))
	return database
}

func row(kind schema.Kind, id, parent string, deleted bool) *schema.Row {
	at := schema.Stamp(time.Date(2025, 1, 2, 3, 4, 5, 6000, time.UTC))
	return &schema.Row{
		Kind:      kind,
		ID:        id,
		ParentID:  parent,
		CreatedAt: at,
		UpdatedAt: at,
		IsDeleted: deleted,
		Payload:   json.RawMessage(`{"title":"` + id + `"}`),
	}
}

type recordingImporter struct {
	seen []string
	fail map[string]bool
	skip map[string]bool
}

func (r *recordingImporter) ImportRow(_ context.Context, row *schema.Row) (bool, error) {
	r.seen = append(r.seen, row.ID)
	if r.fail[row.ID] {
		return false, errors.New("boom")
	}
	return !r.skip[row.ID], nil
}

func TestExport(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx,
		row(schema.KindTask, "t1", "g1", false),
		row(schema.KindGroup, "g1", "", false),
		row(schema.KindGroup, "g2", "", true),
	))

	var buf bytes.Buffer
	n, err := Export(ctx, store, &buf, ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":"g1"`, "parents first")
	assert.Contains(t, lines[1], `"id":"t1"`)

	buf.Reset()
	n, err = Export(ctx, store, &buf, ExportOptions{Kinds: []schema.Kind{schema.KindGroup}, IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestExportFile_RoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	want := row(schema.KindGroup, "g1", "", false)
	require.NoError(t, store.Put(ctx, want))

	path := filepath.Join(t.TempDir(), "out", "journal.jsonl")
	result, err := ExportFile(ctx, store, path, ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Exported)
	assert.Empty(t, result.BackupCreated)

	result, err = ExportFile(ctx, store, path, ExportOptions{Backup: true})
	require.NoError(t, err)
	assert.NotEmpty(t, result.BackupCreated)
	_, err = os.Stat(result.BackupCreated)
	assert.NoError(t, err)

	rows, err := FromJSONL(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, want.SameContent(rows[0]))
}

func TestReadRows(t *testing.T) {
	t.Run("sorts parents first", func(t *testing.T) {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, r := range []*schema.Row{
			row(schema.KindMemo, "m1", "x1", false),
			row(schema.KindNote, "n1", "", false),
			row(schema.KindGroup, "g1", "", false),
		} {
			require.NoError(t, enc.Encode(r))
		}
		rows, err := ReadRows(&buf)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, []string{"g1", "m1", "n1"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
	})

	t.Run("rejects bad JSON", func(t *testing.T) {
		_, err := ReadRows(strings.NewReader("{not json}\n"))
		assert.ErrorContains(t, err, "line 1")
	})

	t.Run("rejects invalid rows", func(t *testing.T) {
		_, err := ReadRows(strings.NewReader(`{"kind":"task","id":"t1"}` + "\n"))
		assert.ErrorContains(t, err, "invalid record at line 1")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := FromJSONL("/nonexistent/path.jsonl")
		assert.Error(t, err)
	})
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	rows := []*schema.Row{
		row(schema.KindGroup, "g1", "", false),
		row(schema.KindGroup, "g2", "", false),
		row(schema.KindGroup, "g3", "", false),
	}

	imp := &recordingImporter{fail: map[string]bool{"g2": true}, skip: map[string]bool{"g3": true}}
	result, err := Import(ctx, imp, rows, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "g2")

	dry := &recordingImporter{}
	result, err = Import(ctx, dry, rows, ImportOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	assert.Empty(t, dry.seen)
}
