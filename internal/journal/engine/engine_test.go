package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicejournal/pj/internal/journal/db"
	"github.com/practicejournal/pj/internal/journal/gate"
	"github.com/practicejournal/pj/internal/journal/remote"
	"github.com/practicejournal/pj/internal/journal/schema"
)

type fixture struct {
	deps     *Deps
	store    *db.DB
	mem      *remote.Memory
	online   *gate.Switch
	groups   *Engine[*schema.Group]
	tasks    *Engine[*schema.Task]
	measures *Engine[*schema.Measure]
	memos    *Engine[*schema.Memo]
	notes    *Engine[*schema.Note]
}

// tickingClock advances one millisecond per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func setup(t *testing.T, online bool) *fixture {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema(context.Background()))

	mem := remote.NewMemory()
	sw := gate.NewSwitch(online)
	deps := NewDeps(store, mem, gate.New(sw, gate.NewFixedSession("alice")), log.New(io.Discard, "", 0))
	deps.Clock = tickingClock()

	return &fixture{
		deps:     deps,
		store:    store,
		mem:      mem,
		online:   sw,
		groups:   New(deps, func() *schema.Group { return &schema.Group{} }),
		tasks:    New(deps, func() *schema.Task { return &schema.Task{} }),
		measures: New(deps, func() *schema.Measure { return &schema.Measure{} }),
		memos:    New(deps, func() *schema.Memo { return &schema.Memo{} }),
		notes:    New(deps, func() *schema.Note { return &schema.Note{} }),
	}
}

func (f *fixture) group(t *testing.T, title string) *schema.Group {
	t.Helper()
	g := &schema.Group{Title: title, Color: schema.ColorBlue, Order: schema.AppendOrder}
	require.NoError(t, f.groups.Save(context.Background(), g, false))
	return g
}

func (f *fixture) task(t *testing.T, groupID, title string) *schema.Task {
	t.Helper()
	task := &schema.Task{Title: title, GroupID: groupID, Order: schema.AppendOrder}
	require.NoError(t, f.tasks.Save(context.Background(), task, false))
	return task
}

func groupTitles(t *testing.T, f *fixture, filter Filter) []string {
	t.Helper()
	all, err := f.groups.Collect(context.Background(), filter)
	require.NoError(t, err)
	var out []string
	for _, g := range all {
		out = append(out, g.Title)
	}
	return out
}

func taskTitles(t *testing.T, f *fixture, filter Filter) []string {
	t.Helper()
	all, err := f.tasks.Collect(context.Background(), filter)
	require.NoError(t, err)
	var out []string
	for _, task := range all {
		out = append(out, task.Title)
	}
	return out
}

func TestSave_VisibleRegardlessOfGate(t *testing.T) {
	for _, online := range []bool{false, true} {
		f := setup(t, online)
		ctx := context.Background()

		g := &schema.Group{Title: "Team A", Color: schema.ColorRed, Order: schema.AppendOrder}
		require.NoError(t, f.groups.Save(ctx, g, false))
		require.NotEmpty(t, g.ID)

		got, ok, err := f.groups.FetchByID(ctx, g.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, g.Title, got.Title)
		assert.Equal(t, g.Color, got.Color)
		assert.Equal(t, 0, got.Order)
		assert.True(t, g.CreatedAt.Equal(got.CreatedAt))
		assert.True(t, g.UpdatedAt.Equal(got.UpdatedAt))
		assert.False(t, got.IsDeleted)
	}
}

func TestSave_GateClosedQueuesWithoutRemoteCall(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()

	err := f.groups.Save(ctx, &schema.Group{Title: "Team A", Order: schema.AppendOrder}, false)
	require.NoError(t, err)

	pushes, pulls, _ := f.mem.Stats()
	assert.Zero(t, pushes)
	assert.Zero(t, pulls)

	n, err := f.store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.deps.Tracker.Status().Pending)
}

func TestSave_GateOpenPushesAndClearsQueue(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()

	g := f.group(t, "Team A")
	stored := f.mem.Get(remote.Scope{UserID: "alice"}, schema.KindGroup, g.ID)
	require.NotNil(t, stored)
	assert.True(t, g.UpdatedAt.Equal(stored.UpdatedAt))

	n, err := f.store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSave_InsertAndUpdateContracts(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	g := f.group(t, "Team A")

	dup := &schema.Group{Title: "again"}
	dup.ID = g.ID
	assert.ErrorIs(t, f.groups.Save(ctx, dup, false), ErrAlreadyExists)

	missing := &schema.Group{Title: "ghost"}
	missing.ID = schema.NewID()
	assert.ErrorIs(t, f.groups.Save(ctx, missing, true), ErrNotFound)

	created, updated := g.CreatedAt, g.UpdatedAt
	g.Title = "Team B"
	g.CreatedAt = time.Time{}
	require.NoError(t, f.groups.Save(ctx, g, true))
	assert.True(t, created.Equal(g.CreatedAt), "created_at is preserved")
	assert.True(t, g.UpdatedAt.After(updated))

	got, ok, err := f.groups.FetchByID(ctx, g.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Team B", got.Title)
}

func TestSave_UpdatedAtStrictlyIncreasesWithFrozenClock(t *testing.T) {
	f := setup(t, false)
	frozen := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	f.deps.Clock = func() time.Time { return frozen }
	ctx := context.Background()

	g := f.group(t, "Team A")
	prev := g.UpdatedAt
	for i := 0; i < 3; i++ {
		require.NoError(t, f.groups.Save(ctx, g, true))
		assert.True(t, g.UpdatedAt.After(prev))
		prev = g.UpdatedAt
	}
}

func TestSave_Validation(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	g := f.group(t, "Team A")
	require.NoError(t, f.groups.Delete(ctx, g.ID))

	tests := []struct {
		name string
		task *schema.Task
	}{
		{"empty title", &schema.Task{GroupID: g.ID}},
		{"unknown group", &schema.Task{Title: "Serve", GroupID: schema.NewID()}},
		{"deleted group", &schema.Task{Title: "Serve", GroupID: g.ID}},
		{"bad priority", &schema.Task{Title: "Serve", GroupID: g.ID, Priority: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.tasks.Save(ctx, tt.task, false)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.True(t, IsFatal(err))
		})
	}
}

func TestDelete_Twice(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	g := f.group(t, "Team A")

	require.NoError(t, f.groups.Delete(ctx, g.ID))
	assert.ErrorIs(t, f.groups.Delete(ctx, g.ID), ErrNotFound)

	_, ok, err := f.groups.FetchByID(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, f.groups.Delete(ctx, schema.NewID()), ErrNotFound)
}

func TestDelete_Reserved(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	assert.ErrorIs(t, f.groups.Delete(ctx, schema.UncategorizedGroupID), ErrReserved)
	assert.ErrorIs(t, f.notes.Delete(ctx, schema.FreeNoteID), ErrReserved)
}

func TestDelete_Cascades(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()

	g := f.group(t, "Team A")
	keep := f.group(t, "Team B")
	task := f.task(t, g.ID, "Serve")
	other := f.task(t, keep.ID, "Return")

	m := &schema.Measure{Title: "Toss lower", TaskID: task.ID, Order: schema.AppendOrder}
	require.NoError(t, f.measures.Save(ctx, m, false))
	memo := &schema.Memo{Detail: "Better today", MeasureID: m.ID}
	require.NoError(t, f.memos.Save(ctx, memo, false))

	require.NoError(t, f.groups.Delete(ctx, g.ID))

	assert.Equal(t, []string{"Team B"}, groupTitles(t, f, Filter{}))
	assert.Equal(t, []string{"Return"}, taskTitles(t, f, Filter{}))

	measures, err := f.measures.Collect(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, measures)
	memos, err := f.memos.Collect(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, memos)

	all, err := f.memos.Collect(ctx, Filter{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].IsDeleted)
	assert.True(t, all[0].UpdatedAt.After(memo.UpdatedAt))

	_, ok, err := f.tasks.FetchByID(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOrdering(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()

	a := f.group(t, "A")
	f.group(t, "B")
	c := f.group(t, "C")
	assert.Equal(t, []string{"A", "B", "C"}, groupTitles(t, f, Filter{}))
	assert.Equal(t, 2, c.Order)

	first := &schema.Group{Title: "Z", Order: 0}
	require.NoError(t, f.groups.Save(ctx, first, false))
	assert.Equal(t, []string{"Z", "A", "B", "C"}, groupTitles(t, f, Filter{}))

	far := &schema.Group{Title: "End", Order: 99}
	require.NoError(t, f.groups.Save(ctx, far, false))
	assert.Equal(t, 4, far.Order)

	require.NoError(t, f.groups.Delete(ctx, a.ID))
	all, err := f.groups.Collect(ctx, Filter{})
	require.NoError(t, err)
	for i, g := range all {
		assert.Equal(t, i, g.Order, "order of %s", g.Title)
	}

	c.Order = 0
	require.NoError(t, f.groups.Save(ctx, c, true))
	assert.Equal(t, []string{"C", "Z", "B", "End"}, groupTitles(t, f, Filter{}))
}

func TestOrdering_MoveTaskBetweenGroups(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()

	g1 := f.group(t, "One")
	g2 := f.group(t, "Two")
	t1 := f.task(t, g1.ID, "t1")
	f.task(t, g1.ID, "t2")
	f.task(t, g2.ID, "u1")

	t1.GroupID = g2.ID
	t1.Order = schema.AppendOrder
	require.NoError(t, f.tasks.Save(ctx, t1, true))

	assert.Equal(t, []string{"t2"}, taskTitles(t, f, Filter{ParentID: g1.ID}))
	assert.Equal(t, []string{"u1", "t1"}, taskTitles(t, f, Filter{ParentID: g2.ID}))

	left, err := f.tasks.Collect(ctx, Filter{ParentID: g1.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, left[0].Order)
}

func TestOrdering_ConcurrentInserts(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.groups.Save(ctx, &schema.Group{Title: "g", Order: schema.AppendOrder}, false))
		}()
	}
	wg.Wait()

	all, err := f.groups.Collect(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 8)
	for i, g := range all {
		assert.Equal(t, i, g.Order)
	}
}

func TestFetchAll_RestartableAndFiltered(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	f.group(t, "A")

	seq := f.groups.FetchAll(ctx, Filter{})
	count := func() int {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 1, count())
	f.group(t, "B")
	f.group(t, "C")
	assert.Equal(t, 3, count(), "re-iterating re-queries")

	assert.Equal(t, []string{"A", "B"}, groupTitles(t, f, Filter{Limit: 2}))

	for range f.groups.FetchAll(ctx, Filter{}) {
		break
	}
}

func TestSave_PushFailureIsDeferred(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	f.mem.FailWith(remote.Unavailable("push", errors.New("connection reset")))

	g := &schema.Group{Title: "Team A", Order: schema.AppendOrder}
	err := f.groups.Save(ctx, g, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSyncDeferred)
	assert.ErrorIs(t, err, remote.ErrUnavailable)
	assert.False(t, IsFatal(err))

	var se *SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{g.ID}, se.IDs)

	_, ok, err := f.groups.FetchByID(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, ok, "local write stands")

	pending, err := f.store.ListPending(ctx, schema.KindGroup)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	st := f.deps.Tracker.Status()
	assert.Equal(t, 1, st.Pending)
	assert.Contains(t, st.LastError, "connection reset")
	assert.False(t, st.NeedsReauth)
}

func TestSave_PushTimeout(t *testing.T) {
	f := setup(t, true)
	f.deps.Timeout = 20 * time.Millisecond
	f.mem.SetLatency(time.Second)

	start := time.Now()
	err := f.groups.Save(context.Background(), &schema.Group{Title: "Team A", Order: schema.AppendOrder}, false)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.ErrorIs(t, err, ErrSyncDeferred)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSave_PermissionDeniedNeedsReauth(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	f.mem.FailWith(remote.Denied("push", errors.New("jwt expired")))

	var seen []Status
	f.deps.Tracker.Subscribe(func(s Status) { seen = append(seen, s) })

	err := f.groups.Save(ctx, &schema.Group{Title: "Team A", Order: schema.AppendOrder}, false)
	assert.ErrorIs(t, err, ErrRemotePermissionDenied)
	assert.ErrorIs(t, err, ErrSyncDeferred)
	assert.True(t, f.deps.Tracker.Status().NeedsReauth)
	require.NotEmpty(t, seen)
	assert.True(t, seen[len(seen)-1].NeedsReauth)

	f.mem.FailWith(nil)
	require.NoError(t, f.groups.Save(ctx, &schema.Group{Title: "Team B", Order: schema.AppendOrder}, false))
	assert.False(t, f.deps.Tracker.Status().NeedsReauth)
}

func TestDelete_ChildPushFailureKeepsTombstones(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	g := f.group(t, "Team A")
	task := f.task(t, g.ID, "Serve")

	f.mem.FailWith(remote.Unavailable("push", errors.New("offline")))
	err := f.groups.Delete(ctx, g.ID)
	assert.ErrorIs(t, err, ErrSyncDeferred)

	_, ok, err := f.tasks.FetchByID(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := f.store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLocks_OrderIndependent(t *testing.T) {
	l := NewLocks()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			unlock := l.Lock(schema.KindMemo, schema.KindGroup)
			unlock()
		}
		close(done)
	}()
	for i := 0; i < 100; i++ {
		unlock := l.Lock(schema.KindGroup, schema.KindTask, schema.KindMemo, schema.KindGroup, "")
		unlock()
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock acquisition deadlocked")
	}
}
