// Package sync reconciles the local journal with its remote copy.
//
// # Overview
//
// A resolver pass pulls every remote record of a kind and compares it with
// the local record carrying the same id. Conflicts are settled per record
// by last write wins on updated_at, with two exceptions for deletions:
//
//	remote tombstone, local live   → the tombstone is adopted and cascaded
//	local tombstone, remote live   → the local tombstone is kept and pushed
//
// Local records the remote has never seen are pushed, and so is every
// record still waiting in the retry queue.
//
// # Ordering
//
// Parents are resolved before children, so a task pulled from the remote
// always finds its group already stored:
//
//	group → task → measure → memo      (sequential)
//	note                               (concurrent with the chain)
//	target                             (concurrent with the chain)
//
// Each kind is applied while holding the engine locks of the kind and its
// descendants, so a resolver pass never interleaves with a Save or Delete
// of the same records.
//
// # Usage
//
//	resolver := sync.New(deps, nil)
//	report, err := resolver.Resolve(ctx)
//	if errors.Is(err, engine.ErrSyncDeferred) {
//	    // offline, signed out, or the remote failed; retried next pass
//	}
//
// Running a pass twice without intervening changes leaves both stores
// untouched the second time.
package sync
