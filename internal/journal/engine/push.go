package engine

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/practicejournal/pj/internal/journal/db"
	"github.com/practicejournal/pj/internal/journal/gate"
	"github.com/practicejournal/pj/internal/journal/observability"
	"github.com/practicejournal/pj/internal/journal/remote"
	"github.com/practicejournal/pj/internal/journal/schema"
)

// DefaultTimeout bounds a single remote call.
const DefaultTimeout = 10 * time.Second

// Deps are the collaborators shared by every engine and the resolver.
type Deps struct {
	Store   *db.DB
	Remote  remote.Store // nil when no remote is configured
	Gate    *gate.Gate
	Locks   *Locks
	Tracker *Tracker
	Clock   func() time.Time
	Timeout time.Duration
	Logger  *log.Logger
}

// NewDeps fills the optional fields of a Deps around store.
func NewDeps(store *db.DB, rs remote.Store, g *gate.Gate, logger *log.Logger) *Deps {
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	return &Deps{
		Store:   store,
		Remote:  rs,
		Gate:    g,
		Locks:   NewLocks(),
		Tracker: NewTracker(store),
		Clock:   time.Now,
		Timeout: DefaultTimeout,
		Logger:  logger,
	}
}

// CanPush reports whether a remote call may be attempted now.
func (d *Deps) CanPush() bool {
	return d.Remote != nil && d.Gate.MayDirectlySync()
}

// Scope returns the remote scope of the signed-in user.
func (d *Deps) Scope() remote.Scope {
	return remote.Scope{UserID: d.Gate.UserID()}
}

// RemoteContext bounds ctx with the remote timeout.
func (d *Deps) RemoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Push sends row to the remote store when the gate is open. It reports
// whether the row was sent. A failure leaves the row queued with its
// attempt count bumped; a success removes it from the queue.
//
// The caller must hold the lock of row's kind.
func (d *Deps) Push(ctx context.Context, row *schema.Row) (bool, error) {
	if !d.CanPush() {
		return false, nil
	}

	rctx, cancel := d.RemoteContext(ctx)
	start := time.Now()
	err := d.Remote.Push(rctx, d.Scope(), row)
	cancel()

	// Queue bookkeeping is local and runs even when ctx was cancelled.
	lctx := context.WithoutCancel(ctx)
	if err != nil {
		observability.RecordPush(string(row.Kind), "failed", time.Since(start))
		if qerr := d.Store.RecordPushFailure(lctx, row.Kind, row.ID, err); qerr != nil {
			d.Logger.Printf("Warning: %v", qerr)
		}
		d.Tracker.RecordError(err)
		return false, err
	}

	observability.RecordPush(string(row.Kind), "ok", time.Since(start))
	if qerr := d.Store.ClearPending(lctx, row.Kind, row.ID); qerr != nil {
		d.Logger.Printf("Warning: %v", qerr)
	}
	d.Tracker.RecordPush()
	return true, nil
}

// pushAll pushes rows in order and folds failures into a SyncError.
// It stops at the first permanent failure; the rest stay queued.
func (d *Deps) pushAll(ctx context.Context, kind schema.Kind, rows []*schema.Row) error {
	var (
		failed []string
		errs   []error
	)
	for i, row := range rows {
		_, err := d.Push(ctx, row)
		if err == nil {
			continue
		}
		failed = append(failed, row.ID)
		errs = append(errs, err)
		if remote.IsPermanent(err) {
			for _, r := range rows[i+1:] {
				failed = append(failed, r.ID)
			}
			break
		}
	}
	d.refresh(ctx)
	if len(errs) == 0 {
		return nil
	}
	return &SyncError{Kind: kind, IDs: failed, Err: errors.Join(errs...)}
}

func (d *Deps) refresh(ctx context.Context) {
	if err := d.Tracker.Refresh(context.WithoutCancel(ctx)); err != nil {
		d.Logger.Printf("Warning: failed to read pending count: %v", err)
	}
}

// Cascade tombstones the live descendants of row at now, parents before
// children. The caller must hold the locks of row.Kind.Lineage().
func (d *Deps) Cascade(ctx context.Context, row *schema.Row, now time.Time) ([]*schema.Row, error) {
	var out []*schema.Row
	for _, ck := range row.Kind.Children() {
		children, err := d.Store.Children(ctx, ck, row.ID)
		if err != nil {
			return nil, localErr("cascade", err)
		}
		for _, c := range children {
			c.Tombstone(schema.After(now, c.UpdatedAt))
			out = append(out, c)
			below, err := d.Cascade(ctx, c, now)
			if err != nil {
				return nil, err
			}
			out = append(out, below...)
		}
	}
	return out, nil
}

// Renumber assigns 0..n-1 to the live records of kind under parentID, in
// display order. It returns the rows whose order changed, restamped at now
// but not yet written. The caller must hold the lock of kind.
func (d *Deps) Renumber(ctx context.Context, kind schema.Kind, parentID string, now time.Time) ([]*schema.Row, error) {
	siblings, err := d.Store.Siblings(ctx, kind, parentID)
	if err != nil {
		return nil, localErr("renumber", err)
	}
	return renumber(siblings, now), nil
}
