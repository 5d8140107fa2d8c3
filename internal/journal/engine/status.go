package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/practicejournal/pj/internal/journal/observability"
	"github.com/practicejournal/pj/internal/journal/remote"
)

// Status is what status indicators show: how much is waiting to sync and
// what went wrong last.
type Status struct {
	Pending     int       `json:"pending"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
	LastSyncAt  time.Time `json:"last_sync_at,omitempty"`
	NeedsReauth bool      `json:"needs_reauth"`
}

// PendingCounter reports the size of the retry queue.
type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

// Tracker holds the current Status and notifies subscribers on change.
type Tracker struct {
	counter PendingCounter
	now     func() time.Time

	mu   sync.Mutex
	st   Status
	subs []func(Status)
}

// NewTracker returns a tracker reading the queue size from counter.
func NewTracker(counter PendingCounter) *Tracker {
	return &Tracker{counter: counter, now: time.Now}
}

// Status returns a snapshot.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.st
}

// Subscribe registers fn for every change. fn runs synchronously on the
// goroutine that caused the change and must not block.
func (t *Tracker) Subscribe(fn func(Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, fn)
}

// Refresh re-reads the pending count.
func (t *Tracker) Refresh(ctx context.Context) error {
	if t.counter == nil {
		return nil
	}
	n, err := t.counter.PendingCount(ctx)
	if err != nil {
		return err
	}
	t.update(func(st *Status) { st.Pending = n })
	return nil
}

// RecordError stores a remote failure. Permission failures raise
// NeedsReauth until the next successful remote call.
func (t *Tracker) RecordError(err error) {
	if err == nil {
		return
	}
	now := t.now()
	t.update(func(st *Status) {
		st.LastError = err.Error()
		st.LastErrorAt = now
		if errors.Is(err, remote.ErrPermissionDenied) {
			st.NeedsReauth = true
		}
	})
}

// RecordPush notes a successful push.
func (t *Tracker) RecordPush() {
	t.update(func(st *Status) { st.NeedsReauth = false })
}

// RecordSync notes a completed resolver pass.
func (t *Tracker) RecordSync(at time.Time, clean bool) {
	t.update(func(st *Status) {
		st.LastSyncAt = at
		if clean {
			st.LastError = ""
			st.LastErrorAt = time.Time{}
			st.NeedsReauth = false
		}
	})
}

func (t *Tracker) update(fn func(*Status)) {
	t.mu.Lock()
	before := t.st
	fn(&t.st)
	after := t.st
	subs := append([]func(Status){}, t.subs...)
	t.mu.Unlock()

	if before == after {
		return
	}
	observability.SetPending(after.Pending)
	observability.SetNeedsReauth(after.NeedsReauth)
	observability.SetLastSync(after.LastSyncAt)
	for _, fn := range subs {
		fn(after)
	}
}
