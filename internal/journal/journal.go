// Package journal wires the local store, the sync gate, the CRUD engines
// and the resolver into one handle used by the CLI, the daemon and the
// dashboard.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/practicejournal/pj/internal/journal/db"
	"github.com/practicejournal/pj/internal/journal/engine"
	"github.com/practicejournal/pj/internal/journal/gate"
	"github.com/practicejournal/pj/internal/journal/remote"
	"github.com/practicejournal/pj/internal/journal/schema"
	"github.com/practicejournal/pj/internal/journal/sync"
)

// Options configure New.
type Options struct {
	Store   *db.DB
	Remote  remote.Store // nil keeps the journal local-only
	Gate    *gate.Gate
	Timeout time.Duration
	Clock   func() time.Time
	Logger  *log.Logger
}

// Journal is the entry point to every record kind.
type Journal struct {
	Groups   *engine.Engine[*schema.Group]
	Tasks    *engine.Engine[*schema.Task]
	Measures *engine.Engine[*schema.Measure]
	Memos    *engine.Engine[*schema.Memo]
	Notes    *engine.Engine[*schema.Note]
	Targets  *engine.Engine[*schema.Target]

	deps     *engine.Deps
	resolver sync.Resolver
	logger   *log.Logger
}

// New builds a journal over an initialized store.
func New(opts Options) *Journal {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[journal] ", log.LstdFlags)
	}
	deps := engine.NewDeps(opts.Store, opts.Remote, opts.Gate, logger)
	if opts.Timeout > 0 {
		deps.Timeout = opts.Timeout
	}
	if opts.Clock != nil {
		deps.Clock = opts.Clock
	}

	return &Journal{
		Groups:   engine.New(deps, func() *schema.Group { return &schema.Group{} }),
		Tasks:    engine.New(deps, func() *schema.Task { return &schema.Task{} }),
		Measures: engine.New(deps, func() *schema.Measure { return &schema.Measure{} }),
		Memos:    engine.New(deps, func() *schema.Memo { return &schema.Memo{} }),
		Notes:    engine.New(deps, func() *schema.Note { return &schema.Note{} }),
		Targets:  engine.New(deps, func() *schema.Target { return &schema.Target{} }),
		deps:     deps,
		resolver: sync.New(deps, logger),
		logger:   logger,
	}
}

// Bootstrap creates the uncategorized group and the free note when they
// are missing. Calling it again is a no-op.
func (j *Journal) Bootstrap(ctx context.Context) error {
	group := &schema.Group{Title: schema.UncategorizedTitle, Color: schema.ColorGray, Order: schema.AppendOrder}
	group.ID = schema.UncategorizedGroupID
	if err := ensure(ctx, j.deps.Store, j.Groups, group); err != nil {
		return err
	}

	note := &schema.Note{NoteKind: schema.NoteKindFree}
	note.ID = schema.FreeNoteID
	if err := ensure(ctx, j.deps.Store, j.Notes, note); err != nil {
		return err
	}
	return j.deps.Tracker.Refresh(ctx)
}

func ensure[E schema.Entity](ctx context.Context, store *db.DB, en *engine.Engine[E], e E) error {
	m := e.Metadata()
	existing, err := store.Get(ctx, e.Kind(), m.ID)
	if err != nil {
		return fmt.Errorf("%w: bootstrap: %w", engine.ErrLocalStore, err)
	}
	if existing != nil {
		return nil
	}
	err = en.Save(ctx, e, false)
	if errors.Is(err, engine.ErrAlreadyExists) || !engine.IsFatal(err) {
		return nil
	}
	return fmt.Errorf("failed to create %s %s: %w", e.Kind(), m.ID, err)
}

// Refresh runs a resolver pass. It returns engine.ErrSyncDeferred when
// the gate is closed.
func (j *Journal) Refresh(ctx context.Context) (*sync.Report, error) {
	return j.resolver.Resolve(ctx)
}

// Resolver returns the journal's resolver.
func (j *Journal) Resolver() sync.Resolver {
	return j.resolver
}

// Tracker returns the status tracker.
func (j *Journal) Tracker() *engine.Tracker {
	return j.deps.Tracker
}

// Status returns the current sync status.
func (j *Journal) Status() engine.Status {
	return j.deps.Tracker.Status()
}

// Store returns the local store.
func (j *Journal) Store() *db.DB {
	return j.deps.Store
}

// MayDirectlySync reports whether the sync gate is open.
func (j *Journal) MayDirectlySync() bool {
	return j.deps.CanPush()
}

// ImportRow applies an exported row through the engines. Rows that are not
// newer than the local copy are skipped.
func (j *Journal) ImportRow(ctx context.Context, row *schema.Row) (bool, error) {
	switch row.Kind {
	case schema.KindGroup:
		return importInto(ctx, j.deps.Store, j.Groups, row)
	case schema.KindTask:
		return importInto(ctx, j.deps.Store, j.Tasks, row)
	case schema.KindMeasure:
		return importInto(ctx, j.deps.Store, j.Measures, row)
	case schema.KindMemo:
		return importInto(ctx, j.deps.Store, j.Memos, row)
	case schema.KindNote:
		return importInto(ctx, j.deps.Store, j.Notes, row)
	case schema.KindTarget:
		return importInto(ctx, j.deps.Store, j.Targets, row)
	}
	return false, fmt.Errorf("%w: unknown kind %q", engine.ErrInvalid, row.Kind)
}

func importInto[E schema.Entity](ctx context.Context, store *db.DB, en *engine.Engine[E], row *schema.Row) (bool, error) {
	local, err := store.Get(ctx, row.Kind, row.ID)
	if err != nil {
		return false, fmt.Errorf("%w: import: %w", engine.ErrLocalStore, err)
	}
	if local != nil && !row.UpdatedAt.After(local.UpdatedAt) {
		return false, nil
	}

	if row.IsDeleted {
		if local == nil || local.IsDeleted || schema.IsReserved(row.Kind, row.ID) {
			return false, nil
		}
		return true, deferredOK(en.Delete(ctx, row.ID))
	}

	if local != nil && local.IsDeleted {
		// Tombstones are final locally.
		return false, nil
	}

	fresh, err := schema.New(row.Kind)
	if err != nil {
		return false, err
	}
	e, ok := fresh.(E)
	if !ok {
		return false, fmt.Errorf("%w: %s row for %s engine", engine.ErrInvalid, row.Kind, en.Kind())
	}
	if err := schema.Decode(row, e); err != nil {
		return false, fmt.Errorf("%w: %w", engine.ErrInvalid, err)
	}
	return true, deferredOK(en.Save(ctx, e, local != nil))
}

func deferredOK(err error) error {
	if engine.IsFatal(err) {
		return err
	}
	return nil
}
