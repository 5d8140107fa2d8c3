package remote

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/practicejournal/pj/internal/journal/schema"
)

type memKey struct {
	user string
	kind schema.Kind
	id   string
}

// Memory is a Store kept in process memory. It backs `--remote memory`
// and stands in for a backend in tests, where failures and latency can be
// injected.
type Memory struct {
	mu        sync.Mutex
	rows      map[memKey]*schema.Row
	err       error
	latency   time.Duration
	pushes    int
	pulls     int
	mutations int
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[memKey]*schema.Row)}
}

// FailWith makes every following call fail with err. Pass nil to recover.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetLatency delays every following call by d, or until ctx is done.
func (m *Memory) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// Push implements Store.
func (m *Memory) Push(ctx context.Context, scope Scope, row *schema.Row) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if err := m.wait(ctx, "push"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes++

	key := memKey{scope.UserID, row.Kind, row.ID}
	if cur, ok := m.rows[key]; ok {
		if cur.UpdatedAt.After(row.UpdatedAt) || cur.SameContent(row) {
			return nil
		}
	}
	m.rows[key] = row.Clone()
	m.mutations++
	return nil
}

// PullAll implements Store.
func (m *Memory) PullAll(ctx context.Context, scope Scope, kind schema.Kind) ([]*schema.Row, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := m.wait(ctx, "pull"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulls++

	var out []*schema.Row
	for k, r := range m.rows {
		if k.user == scope.UserID && k.kind == kind {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Seed writes row directly, as another device would have.
func (m *Memory) Seed(scope Scope, row *schema.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[memKey{scope.UserID, row.Kind, row.ID}] = row.Clone()
}

// Get returns the stored copy of a record, or nil.
func (m *Memory) Get(scope Scope, kind schema.Kind, id string) *schema.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[memKey{scope.UserID, kind, id}]; ok {
		return r.Clone()
	}
	return nil
}

// Stats reports call counts and how many pushes changed stored data.
func (m *Memory) Stats() (pushes, pulls, mutations int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pushes, m.pulls, m.mutations
}

func (m *Memory) wait(ctx context.Context, op string) error {
	m.mu.Lock()
	err, latency := m.err, m.latency
	m.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Unavailable(op, ctx.Err())
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return Unavailable(op, err)
	}
	return err
}
