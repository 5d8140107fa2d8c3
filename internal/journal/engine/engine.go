// Package engine implements local-first create, update, delete and read
// for every journal kind.
//
// One generic Engine serves all six kinds. Writes always land in the
// local store first, together with a retry-queue entry; the remote push
// that follows is attempted only while the sync gate is open and never
// undoes the local write:
//
//	groups := engine.New(deps, func() *schema.Group { return &schema.Group{} })
//	g := &schema.Group{Title: "Serve", Order: schema.AppendOrder}
//	if err := groups.Save(ctx, g, false); engine.IsFatal(err) {
//	    return err
//	}
//
// Reads never touch the network.
package engine

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/practicejournal/pj/internal/journal/db"
	"github.com/practicejournal/pj/internal/journal/schema"
)

// Filter narrows FetchAll.
type Filter struct {
	IncludeDeleted bool
	ParentID       string
	Limit          int
}

// Engine is the CRUD entry point for one kind.
type Engine[E schema.Entity] struct {
	deps *Deps
	kind schema.Kind
	newE func() E
}

// New returns the engine for the kind produced by newE.
func New[E schema.Entity](deps *Deps, newE func() E) *Engine[E] {
	return &Engine[E]{deps: deps, kind: newE().Kind(), newE: newE}
}

// Kind returns the kind served by en.
func (en *Engine[E]) Kind() schema.Kind {
	return en.kind
}

// Save inserts e (isUpdate false) or replaces the stored record with the
// same id (isUpdate true). Inserting with an empty id assigns one.
// On return e carries the stored id, timestamps and sort order.
//
// A non-nil error matching ErrSyncDeferred means e was saved locally but
// not pushed.
func (en *Engine[E]) Save(ctx context.Context, e E, isUpdate bool) error {
	if d, ok := any(e).(schema.Defaulter); ok {
		d.SetDefaults()
	}
	m := e.Metadata()
	if m.ID == "" {
		if isUpdate {
			return fmt.Errorf("%w: %s: id is required", ErrNotFound, en.kind)
		}
		m.ID = schema.NewID()
	}
	if err := e.Validate(); err != nil {
		return invalidErr(en.kind, err)
	}

	unlock := en.deps.Locks.Lock(en.kind.Parent(), en.kind)
	defer unlock()

	store := en.deps.Store
	prev, err := store.Get(ctx, en.kind, m.ID)
	if err != nil {
		return localErr("save", err)
	}

	now := en.deps.Clock()
	if isUpdate {
		if prev == nil || prev.IsDeleted {
			return fmt.Errorf("%w: %s %s", ErrNotFound, en.kind, m.ID)
		}
		m.CreatedAt = prev.CreatedAt
		m.UpdatedAt = schema.After(now, prev.UpdatedAt)
	} else {
		if prev != nil {
			return fmt.Errorf("%w: %s %s", ErrAlreadyExists, en.kind, m.ID)
		}
		// A caller-supplied created_at in the past is kept (imports).
		created := schema.Stamp(now)
		if !m.CreatedAt.IsZero() && m.CreatedAt.Before(created) {
			created = schema.Stamp(m.CreatedAt)
		}
		m.CreatedAt = created
		m.UpdatedAt = schema.Stamp(now)
	}
	m.IsDeleted = false

	if err := en.checkParent(ctx, e.ParentID()); err != nil {
		return err
	}

	row, err := schema.Encode(e)
	if err != nil {
		return invalidErr(en.kind, err)
	}
	rows := []*schema.Row{row}
	if en.kind.Ordered() {
		rows, err = en.place(ctx, row, prev, now)
		if err != nil {
			return err
		}
		any(e).(schema.Ordered).SetSortOrder(row.SortOrder)
	}

	if err := store.PutPending(ctx, rows...); err != nil {
		return localErr("save", err)
	}
	return en.deps.pushAll(ctx, en.kind, rows)
}

// Delete tombstones the record and its descendants, then renumbers the
// remaining siblings of ordered kinds.
func (en *Engine[E]) Delete(ctx context.Context, id string) error {
	if schema.IsReserved(en.kind, id) {
		return fmt.Errorf("%w: %s %s", ErrReserved, en.kind, id)
	}

	unlock := en.deps.Locks.Lock(en.kind.Lineage()...)
	defer unlock()

	store := en.deps.Store
	prev, err := store.Get(ctx, en.kind, id)
	if err != nil {
		return localErr("delete", err)
	}
	if prev == nil || prev.IsDeleted {
		return fmt.Errorf("%w: %s %s", ErrNotFound, en.kind, id)
	}

	now := en.deps.Clock()
	row := prev.Clone()
	row.Tombstone(schema.After(now, prev.UpdatedAt))
	rows := []*schema.Row{row}

	children, err := en.deps.Cascade(ctx, row, now)
	if err != nil {
		return err
	}
	rows = append(rows, children...)

	if en.kind.Ordered() {
		siblings, err := store.Siblings(ctx, en.kind, prev.ParentID)
		if err != nil {
			return localErr("delete", err)
		}
		rows = append(rows, renumber(without(siblings, id), now)...)
	}

	if err := store.PutPending(ctx, rows...); err != nil {
		return localErr("delete", err)
	}
	return en.deps.pushAll(ctx, en.kind, rows)
}

// FetchByID returns the live record with id. Tombstoned and absent records
// report false.
func (en *Engine[E]) FetchByID(ctx context.Context, id string) (E, bool, error) {
	var zero E
	row, err := en.deps.Store.Get(ctx, en.kind, id)
	if err != nil {
		return zero, false, localErr("fetch", err)
	}
	if row == nil || row.IsDeleted {
		return zero, false, nil
	}
	e := en.newE()
	if err := schema.Decode(row, e); err != nil {
		return zero, false, localErr("fetch", err)
	}
	return e, true, nil
}

// FetchAll yields records in display order. The query runs when the
// sequence is iterated, so ranging over it again sees current state.
func (en *Engine[E]) FetchAll(ctx context.Context, f Filter) iter.Seq2[E, error] {
	return func(yield func(E, error) bool) {
		rows, err := en.deps.Store.List(ctx, en.kind, db.ListOptions{
			IncludeDeleted: f.IncludeDeleted,
			ParentID:       f.ParentID,
			Limit:          f.Limit,
		})
		if err != nil {
			var zero E
			yield(zero, localErr("fetch", err))
			return
		}
		for _, row := range rows {
			e := en.newE()
			if err := schema.Decode(row, e); err != nil {
				if !yield(e, localErr("fetch", err)) {
					return
				}
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Collect drains FetchAll into a slice.
func (en *Engine[E]) Collect(ctx context.Context, f Filter) ([]E, error) {
	var out []E
	for e, err := range en.FetchAll(ctx, f) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (en *Engine[E]) checkParent(ctx context.Context, parentID string) error {
	pk := en.kind.Parent()
	if pk == "" {
		return nil
	}
	parent, err := en.deps.Store.Get(ctx, pk, parentID)
	if err != nil {
		return localErr("save", err)
	}
	if parent == nil || parent.IsDeleted {
		return fmt.Errorf("%w: %s: parent %s %q is missing or deleted", ErrInvalid, en.kind, pk, parentID)
	}
	return nil
}

// place inserts row into its sibling set at the requested position and
// returns every row that must be written: row itself, siblings whose
// order shifted, and the old sibling set when row changed parent.
func (en *Engine[E]) place(ctx context.Context, row, prev *schema.Row, now time.Time) ([]*schema.Row, error) {
	store := en.deps.Store
	siblings, err := store.Siblings(ctx, en.kind, row.ParentID)
	if err != nil {
		return nil, localErr("save", err)
	}

	others := without(siblings, row.ID)
	pos := row.SortOrder
	if pos < 0 || pos > len(others) {
		pos = len(others)
	}
	list := make([]*schema.Row, 0, len(others)+1)
	list = append(list, others[:pos]...)
	list = append(list, row)
	list = append(list, others[pos:]...)

	row.SortOrder = pos
	out := []*schema.Row{row}
	out = append(out, renumber(list, now)...)

	if prev != nil && !prev.IsDeleted && prev.ParentID != row.ParentID {
		old, err := store.Siblings(ctx, en.kind, prev.ParentID)
		if err != nil {
			return nil, localErr("save", err)
		}
		out = append(out, renumber(without(old, row.ID), now)...)
	}
	return out, nil
}

// renumber assigns 0..n-1 to rows in their current order and returns the
// rows whose order changed, restamped.
func renumber(rows []*schema.Row, now time.Time) []*schema.Row {
	var changed []*schema.Row
	for i, r := range rows {
		if r.SortOrder == i {
			continue
		}
		r.SortOrder = i
		r.UpdatedAt = schema.After(now, r.UpdatedAt)
		changed = append(changed, r)
	}
	return changed
}

func without(rows []*schema.Row, id string) []*schema.Row {
	out := make([]*schema.Row, 0, len(rows))
	for _, r := range rows {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}
