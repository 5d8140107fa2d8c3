// Package remote defines the contract between the journal and a remote
// backend that mirrors it, plus an in-process implementation.
//
// A Store keeps one copy of every record per user. Push is an upsert keyed
// by (user, kind, id) that never replaces a copy with an older updated_at,
// so pushing the same row twice changes nothing the second time. PullAll
// returns tombstones like any other record.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/practicejournal/pj/internal/journal/schema"
)

var (
	// ErrPermissionDenied means the backend rejected an authenticated call,
	// typically because the session expired. Callers must re-authenticate.
	ErrPermissionDenied = errors.New("remote permission denied")

	// ErrUnavailable wraps transient failures: network errors, timeouts,
	// backend hiccups. Retrying later may succeed.
	ErrUnavailable = errors.New("remote unavailable")

	// ErrNoScope is returned when a call is made without a user.
	ErrNoScope = errors.New("remote call without user scope")
)

// Scope identifies whose records a call touches.
type Scope struct {
	UserID string
}

// Validate checks that the scope names a user.
func (s Scope) Validate() error {
	if s.UserID == "" {
		return ErrNoScope
	}
	return nil
}

// Store is implemented by remote backends.
type Store interface {
	// Push upserts row for the scope's user.
	Push(ctx context.Context, scope Scope, row *schema.Row) error

	// PullAll returns every record of kind for the scope's user,
	// tombstones included.
	PullAll(ctx context.Context, scope Scope, kind schema.Kind) ([]*schema.Row, error)
}

// IsPermanent reports whether err will not go away by retrying.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrNoScope)
}

// Unavailable wraps err as a transient failure, keeping context errors
// matchable with errors.Is.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// Denied wraps err as a permission failure.
func Denied(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPermissionDenied, op, err)
}
