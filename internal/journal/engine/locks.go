package engine

import (
	"sort"
	"sync"

	"github.com/practicejournal/pj/internal/journal/schema"
)

// Locks serializes mutations per kind. Multi-kind acquisitions always
// follow schema.Kinds order, so a cascade and a resolver pass never
// deadlock.
type Locks struct {
	mu map[schema.Kind]*sync.Mutex
}

// NewLocks returns one mutex per kind.
func NewLocks() *Locks {
	l := &Locks{mu: make(map[schema.Kind]*sync.Mutex, len(schema.Kinds))}
	for _, k := range schema.Kinds {
		l.mu[k] = &sync.Mutex{}
	}
	return l
}

// Lock acquires the given kinds and returns the matching unlock.
// Empty and duplicate kinds are ignored.
func (l *Locks) Lock(kinds ...schema.Kind) (unlock func()) {
	seen := make(map[schema.Kind]bool, len(kinds))
	var ordered []schema.Kind
	for _, k := range kinds {
		if k == "" || seen[k] || l.mu[k] == nil {
			continue
		}
		seen[k] = true
		ordered = append(ordered, k)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Rank() < ordered[j].Rank() })

	for _, k := range ordered {
		l.mu[k].Lock()
	}
	return func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			l.mu[ordered[i]].Unlock()
		}
	}
}
