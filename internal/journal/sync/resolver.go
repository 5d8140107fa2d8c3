package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"os"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/practicejournal/pj/internal/journal/db"
	"github.com/practicejournal/pj/internal/journal/engine"
	"github.com/practicejournal/pj/internal/journal/observability"
	"github.com/practicejournal/pj/internal/journal/remote"
	"github.com/practicejournal/pj/internal/journal/schema"
)

// chain lists the kinds that must be resolved one after another.
var chain = []schema.Kind{schema.KindGroup, schema.KindTask, schema.KindMeasure, schema.KindMemo}

// resolver implements the Resolver interface.
type resolver struct {
	deps   *engine.Deps
	logger *log.Logger
	flight singleflight.Group
}

// New creates a Resolver sharing the engines' store, gate and locks.
//
// If logger is nil, a default logger writing to stderr is used.
func New(deps *engine.Deps, logger *log.Logger) Resolver {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &resolver{deps: deps, logger: logger}
}

// Resolve implements Resolver.Resolve.
func (r *resolver) Resolve(ctx context.Context) (*Report, error) {
	v, err, shared := r.flight.Do("resolve", func() (interface{}, error) {
		return r.resolveAll(ctx)
	})
	if shared {
		r.logger.Printf("Joined resolver pass already in flight")
	}
	rep, _ := v.(*Report)
	return rep, err
}

func (r *resolver) resolveAll(ctx context.Context) (*Report, error) {
	if !r.deps.CanPush() {
		return nil, engine.ErrSyncDeferred
	}

	start := time.Now()
	rep := &Report{Started: start, Kinds: make([]*KindReport, len(schema.Kinds))}
	errs := make([]error, len(schema.Kinds))

	var g errgroup.Group
	g.Go(func() error {
		for _, k := range chain {
			kr, err := r.ResolveKind(ctx, k)
			rep.Kinds[k.Rank()], errs[k.Rank()] = kr, err
			if err != nil {
				// Children of an unresolved kind could reference parents
				// that were never pulled.
				r.logger.Printf("Stopping %s chain after %s: %v", chain[0], k, err)
				return nil
			}
		}
		return nil
	})
	for _, k := range schema.Roots() {
		if k == chain[0] {
			continue
		}
		g.Go(func() error {
			kr, err := r.ResolveKind(ctx, k)
			rep.Kinds[k.Rank()], errs[k.Rank()] = kr, err
			return nil
		})
	}
	_ = g.Wait()

	rep.Duration = time.Since(start)
	err := errors.Join(errs...)

	observability.RecordResolve(rep.Duration)
	for _, kr := range rep.Kinds {
		if kr == nil {
			continue
		}
		observability.RecordResolved(string(kr.Kind), "inserted", kr.Inserted)
		observability.RecordResolved(string(kr.Kind), "overwritten", kr.Overwritten)
		observability.RecordResolved(string(kr.Kind), "tombstoned", kr.Tombstoned)
		observability.RecordResolved(string(kr.Kind), "pushed", kr.Pushed)
	}

	tracker := r.deps.Tracker
	if terr := tracker.Refresh(context.WithoutCancel(ctx)); terr != nil {
		r.logger.Printf("Warning: failed to read pending count: %v", terr)
	}
	tracker.RecordSync(r.deps.Clock(), err == nil)

	if err != nil {
		r.logger.Printf("Resolver pass finished with errors in %s: %v", rep.Duration, err)
		return rep, err
	}
	r.logger.Printf("Resolver pass finished in %s: %s", rep.Duration, rep)
	return rep, nil
}

// ResolveKind implements Resolver.ResolveKind.
func (r *resolver) ResolveKind(ctx context.Context, kind schema.Kind) (*KindReport, error) {
	kr := &KindReport{Kind: kind}
	if !r.deps.CanPush() {
		return kr, engine.ErrSyncDeferred
	}

	rctx, cancel := r.deps.RemoteContext(ctx)
	remoteRows, err := r.deps.Remote.PullAll(rctx, r.deps.Scope(), kind)
	cancel()
	if err != nil {
		r.deps.Tracker.RecordError(err)
		return kr, &engine.SyncError{Kind: kind, Err: err}
	}
	kr.Pulled = len(remoteRows)

	unlock := r.deps.Locks.Lock(kind.Lineage()...)
	defer unlock()

	toPush, err := r.apply(ctx, kind, remoteRows, kr)
	if err != nil {
		return kr, err
	}
	return kr, r.push(ctx, kind, toPush, kr)
}

// apply merges remoteRows into the local store and returns the rows the
// remote must receive.
func (r *resolver) apply(ctx context.Context, kind schema.Kind, remoteRows []*schema.Row, kr *KindReport) ([]*schema.Row, error) {
	store := r.deps.Store
	locals, err := store.List(ctx, kind, db.ListOptions{IncludeDeleted: true})
	if err != nil {
		return nil, localErr(err)
	}
	byID := make(map[string]*schema.Row, len(locals))
	for _, lr := range locals {
		byID[lr.ID] = lr
	}

	now := r.deps.Clock()
	seen := make(map[string]bool, len(remoteRows))
	touched := make(map[string]bool)
	var toPush []*schema.Row

	for _, rr := range remoteRows {
		if rr.Kind != kind {
			continue
		}
		if err := rr.Validate(); err != nil {
			r.logger.Printf("Warning: skipping remote %s %s: %v", kind, rr.ID, err)
			kr.Failed++
			continue
		}
		seen[rr.ID] = true
		lr := byID[rr.ID]

		switch {
		case lr != nil && rr.IsDeleted && !lr.IsDeleted && schema.IsReserved(kind, lr.ID):
			// Reserved records are never deleted; reassert the live copy.
			keep := lr.Clone()
			keep.UpdatedAt = schema.After(now, maxTime(lr.UpdatedAt, rr.UpdatedAt))
			if err := store.PutPending(ctx, keep); err != nil {
				return nil, localErr(err)
			}
			toPush = append(toPush, keep)

		case lr != nil && rr.IsDeleted && !lr.IsDeleted:
			rows, err := r.adoptTombstone(ctx, lr, rr, now)
			if err != nil {
				return nil, err
			}
			toPush = append(toPush, rows...)
			touched[lr.ParentID] = true
			kr.Tombstoned++

		case lr != nil && lr.IsDeleted && !rr.IsDeleted && !rr.UpdatedAt.After(lr.UpdatedAt):
			keep := lr
			if !lr.UpdatedAt.After(rr.UpdatedAt) {
				keep = lr.Clone()
				keep.UpdatedAt = schema.After(now, rr.UpdatedAt)
				if err := store.PutPending(ctx, keep); err != nil {
					return nil, localErr(err)
				}
			}
			toPush = append(toPush, keep)

		case lr == nil || rr.UpdatedAt.After(lr.UpdatedAt):
			orphan, err := r.orphaned(ctx, rr)
			if err != nil {
				return nil, err
			}
			if orphan {
				ts := rr.Clone()
				ts.Tombstone(schema.After(now, rr.UpdatedAt))
				if err := store.PutPending(ctx, ts); err != nil {
					return nil, localErr(err)
				}
				toPush = append(toPush, ts)
				kr.Tombstoned++
				continue
			}
			if err := store.Put(ctx, rr); err != nil {
				return nil, localErr(err)
			}
			if err := store.ClearPending(ctx, kind, rr.ID); err != nil {
				return nil, localErr(err)
			}
			touched[rr.ParentID] = true
			if lr != nil {
				touched[lr.ParentID] = true
			}
			if lr == nil {
				kr.Inserted++
			} else {
				kr.Overwritten++
			}

		case lr.SameContent(rr):
			if err := store.ClearPending(ctx, kind, rr.ID); err != nil {
				return nil, localErr(err)
			}
			kr.Unchanged++

		case lr.UpdatedAt.Equal(rr.UpdatedAt):
			// Same stamp, different content: restamp so the other side
			// adopts this copy instead of pushing its own back.
			keep := lr.Clone()
			keep.UpdatedAt = schema.After(now, lr.UpdatedAt)
			if err := store.PutPending(ctx, keep); err != nil {
				return nil, localErr(err)
			}
			toPush = append(toPush, keep)

		default:
			toPush = append(toPush, lr)
		}
	}

	for _, lr := range locals {
		if !seen[lr.ID] {
			toPush = append(toPush, lr)
		}
	}

	if !kind.Ordered() || len(touched) == 0 {
		return toPush, nil
	}
	for _, parentID := range slices.Sorted(maps.Keys(touched)) {
		rows, err := r.deps.Renumber(ctx, kind, parentID, now)
		if err != nil {
			return nil, err
		}
		if err := store.PutPending(ctx, rows...); err != nil {
			return nil, localErr(err)
		}
		toPush = replaceRows(toPush, rows)
	}
	return toPush, nil
}

// replaceRows swaps rows already queued in list for their updated copies
// and appends the rest.
func replaceRows(list, updated []*schema.Row) []*schema.Row {
	index := make(map[string]int, len(list))
	for i, row := range list {
		index[row.ID] = i
	}
	for _, row := range updated {
		if i, ok := index[row.ID]; ok {
			list[i] = row
			continue
		}
		index[row.ID] = len(list)
		list = append(list, row)
	}
	return list
}

// adoptTombstone applies a remote deletion to a live local record and its
// descendants. The stored stamp never moves backwards, so when the local
// copy was newer the tombstone carries the local stamp and goes back to
// the remote.
func (r *resolver) adoptTombstone(ctx context.Context, lr, rr *schema.Row, now time.Time) ([]*schema.Row, error) {
	store := r.deps.Store
	adopted := rr.Clone()
	pushBack := lr.UpdatedAt.After(rr.UpdatedAt)
	if pushBack {
		adopted.UpdatedAt = lr.UpdatedAt
	}

	children, err := r.deps.Cascade(ctx, adopted, now)
	if err != nil {
		return nil, err
	}

	var toPush []*schema.Row
	if pushBack {
		if err := store.PutPending(ctx, adopted); err != nil {
			return nil, localErr(err)
		}
		toPush = append(toPush, adopted)
	} else {
		if err := store.Put(ctx, adopted); err != nil {
			return nil, localErr(err)
		}
		if err := store.ClearPending(ctx, adopted.Kind, adopted.ID); err != nil {
			return nil, localErr(err)
		}
	}
	if err := store.PutPending(ctx, children...); err != nil {
		return nil, localErr(err)
	}
	return append(toPush, children...), nil
}

// orphaned reports whether row is live but its parent is tombstoned locally.
func (r *resolver) orphaned(ctx context.Context, row *schema.Row) (bool, error) {
	pk := row.Kind.Parent()
	if pk == "" || row.IsDeleted {
		return false, nil
	}
	parent, err := r.deps.Store.Get(ctx, pk, row.ParentID)
	if err != nil {
		return false, localErr(err)
	}
	return parent != nil && parent.IsDeleted, nil
}

func (r *resolver) push(ctx context.Context, kind schema.Kind, rows []*schema.Row, kr *KindReport) error {
	var (
		failed []string
		errs   []error
	)
	for i, row := range rows {
		sent, err := r.deps.Push(ctx, row)
		if sent {
			kr.Pushed++
		}
		if err == nil {
			continue
		}
		kr.Failed++
		failed = append(failed, row.ID)
		errs = append(errs, err)
		if remote.IsPermanent(err) {
			for _, rest := range rows[i+1:] {
				failed = append(failed, rest.ID)
			}
			kr.Failed += len(rows) - i - 1
			break
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &engine.SyncError{Kind: kind, IDs: failed, Err: errors.Join(errs...)}
}

func localErr(err error) error {
	return fmt.Errorf("%w: resolve: %w", engine.ErrLocalStore, err)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
