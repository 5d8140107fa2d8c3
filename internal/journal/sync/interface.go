package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/practicejournal/pj/internal/journal/schema"
)

// Resolver reconciles local and remote records.
type Resolver interface {
	// Resolve runs a pass over every kind. Concurrent calls share one pass.
	//
	// Returns engine.ErrSyncDeferred without doing any work when the sync
	// gate is closed. Remote failures are reported as *engine.SyncError;
	// local store failures match engine.ErrLocalStore.
	Resolve(ctx context.Context) (*Report, error)

	// ResolveKind runs a pass over one kind only. The caller is
	// responsible for resolving parent kinds first.
	ResolveKind(ctx context.Context, kind schema.Kind) (*KindReport, error)
}

// KindReport counts what a pass did to one kind.
type KindReport struct {
	Kind        schema.Kind `json:"kind"`
	Pulled      int         `json:"pulled"`
	Inserted    int         `json:"inserted"`
	Overwritten int         `json:"overwritten"`
	Tombstoned  int         `json:"tombstoned"`
	Pushed      int         `json:"pushed"`
	Unchanged   int         `json:"unchanged"`
	Failed      int         `json:"failed"`
}

// Changed returns the number of local or remote writes.
func (k *KindReport) Changed() int {
	return k.Inserted + k.Overwritten + k.Tombstoned + k.Pushed
}

// Report summarizes a full pass.
type Report struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Kinds    []*KindReport `json:"kinds"`
}

// Kind returns the report for k, or nil when k was not resolved.
func (r *Report) Kind(k schema.Kind) *KindReport {
	for _, kr := range r.Kinds {
		if kr != nil && kr.Kind == k {
			return kr
		}
	}
	return nil
}

// Changed returns the number of writes across all kinds.
func (r *Report) Changed() int {
	n := 0
	for _, kr := range r.Kinds {
		if kr != nil {
			n += kr.Changed()
		}
	}
	return n
}

func (r *Report) String() string {
	var parts []string
	for _, kr := range r.Kinds {
		if kr == nil || (kr.Changed() == 0 && kr.Failed == 0) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: +%d ~%d x%d ^%d !%d",
			kr.Kind, kr.Inserted, kr.Overwritten, kr.Tombstoned, kr.Pushed, kr.Failed))
	}
	if len(parts) == 0 {
		return "up to date"
	}
	return strings.Join(parts, ", ")
}
