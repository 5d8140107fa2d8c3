package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/practicejournal/pj/internal/journal/remote"
	"github.com/practicejournal/pj/internal/journal/schema"
)

var (
	// ErrNotFound means the id is absent or already tombstoned.
	ErrNotFound = errors.New("record not found")

	// ErrLocalStore wraps failures of the on-device store. These are fatal
	// to the call and are never retried.
	ErrLocalStore = errors.New("local store failure")

	// ErrSyncDeferred means the local write committed but the remote copy
	// was not updated. The record stays queued for the next resolver pass.
	ErrSyncDeferred = errors.New("sync deferred")

	// ErrRemotePermissionDenied means the remote rejected the session.
	// The user must sign in again; no data is lost.
	ErrRemotePermissionDenied = remote.ErrPermissionDenied

	// ErrInvalid means the entity failed validation or references a parent
	// that is missing or tombstoned.
	ErrInvalid = errors.New("invalid record")

	// ErrAlreadyExists is returned when inserting an id that is already stored.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrReserved is returned when deleting a record created at first launch.
	ErrReserved = errors.New("reserved record cannot be deleted")
)

// SyncError reports records whose local write stands but whose push failed.
// It matches both ErrSyncDeferred and the underlying remote error.
type SyncError struct {
	Kind schema.Kind
	IDs  []string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync deferred for %s %s: %v", e.Kind, strings.Join(e.IDs, ","), e.Err)
}

func (e *SyncError) Unwrap() []error {
	return []error{ErrSyncDeferred, e.Err}
}

// IsFatal reports whether err means the local write did not happen.
// Deferred syncs are not fatal.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrSyncDeferred)
}

func localErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLocalStore, op, err)
}

func invalidErr(kind schema.Kind, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInvalid, kind, err)
}
