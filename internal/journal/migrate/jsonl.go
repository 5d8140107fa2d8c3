// Package migrate moves journal records in and out of JSONL files.
//
// Each line is one schema.Row, tombstones included when requested. Files
// written by Export can be read back by Import on another device; the
// imported records go through the CRUD engine like any other edit.
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/practicejournal/pj/internal/journal/db"
	"github.com/practicejournal/pj/internal/journal/schema"
)

// ExportOptions configures Export.
type ExportOptions struct {
	Kinds          []schema.Kind // Kinds to write (empty = all)
	IncludeDeleted bool          // Write tombstones too
	Backup         bool          // Keep a copy of an existing output file
}

// ImportOptions configures Import.
type ImportOptions struct {
	DryRun bool // Count what would change without writing
}

// Result contains statistics about an export or import.
type Result struct {
	Exported      int
	Imported      int
	Skipped       int
	BackupCreated string
	Errors        []string
}

// Importer applies one row. It reports false when the row was older than
// the local copy and nothing changed.
type Importer interface {
	ImportRow(ctx context.Context, row *schema.Row) (bool, error)
}

// Export writes rows of the requested kinds to w, parents before children.
func Export(ctx context.Context, store *db.DB, w io.Writer, opts ExportOptions) (int, error) {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = schema.Kinds
	}

	enc := json.NewEncoder(w)
	n := 0
	for _, k := range kinds {
		rows, err := store.List(ctx, k, db.ListOptions{IncludeDeleted: opts.IncludeDeleted})
		if err != nil {
			return n, fmt.Errorf("failed to read %s records: %w", k, err)
		}
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return n, fmt.Errorf("failed to write %s %s: %w", row.Kind, row.ID, err)
			}
			n++
		}
	}
	return n, nil
}

// ExportFile writes an export to path atomically.
func ExportFile(ctx context.Context, store *db.DB, path string, opts ExportOptions) (*Result, error) {
	result := &Result{}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	if opts.Backup {
		if _, err := os.Stat(path); err == nil {
			backupPath := path + ".backup." + time.Now().Format("20060102-150405")
			if err := copyFile(path, backupPath); err != nil {
				return nil, fmt.Errorf("failed to create backup: %w", err)
			}
			result.BackupCreated = backupPath
		}
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	w := bufio.NewWriter(f)
	n, err := Export(ctx, store, w, opts)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}

	result.Exported = n
	return result, nil
}

// ReadRows parses JSONL from r. Rows are validated and returned parents
// first, then in file order.
func ReadRows(r io.Reader) ([]*schema.Row, error) {
	var rows []*schema.Row
	dec := json.NewDecoder(r)
	lineNum := 0

	for {
		var row schema.Row
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++

		row.CreatedAt = schema.Stamp(row.CreatedAt)
		row.UpdatedAt = schema.Stamp(row.UpdatedAt)
		if err := row.Validate(); err != nil {
			return nil, fmt.Errorf("invalid record at line %d: %w", lineNum, err)
		}
		rows = append(rows, &row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Kind.Rank() < rows[j].Kind.Rank()
	})
	return rows, nil
}

// FromJSONL reads a JSONL export file.
func FromJSONL(path string) ([]*schema.Row, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()
	return ReadRows(file)
}

// Import applies rows through imp. Individual failures are collected in
// the result and do not stop the import.
func Import(ctx context.Context, imp Importer, rows []*schema.Row, opts ImportOptions) (*Result, error) {
	result := &Result{}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if opts.DryRun {
			result.Imported++
			continue
		}
		changed, err := imp.ImportRow(ctx, row)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to import %s %s: %v", row.Kind, row.ID, err))
			continue
		}
		if changed {
			result.Imported++
		} else {
			result.Skipped++
		}
	}
	return result, nil
}

func copyFile(src, dst string) error {
	// #nosec G304 - controlled path from CLI
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
