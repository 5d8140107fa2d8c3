// Package schema defines the journal's record kinds and their storage envelope.
//
// # Kinds
//
// Six kinds of records make up a journal:
//
//	group            top-level, ordered
//	  └── task       ordered per group
//	        └── measure   ordered per task
//	              └── memo
//	note             standalone (practice, tournament, or the single free note)
//	target           standalone (yearly or monthly)
//
// Deleting a record tombstones it and every descendant listed above.
//
// # Rows
//
// Every typed entity converts to a Row for persistence. The Row carries the
// shared metadata (id, timestamps, tombstone flag, parent reference and sort
// order) in dedicated columns, and the kind-specific fields as a JSON payload:
//
//	row, err := schema.Encode(&schema.Task{Title: "Serve toss", GroupID: gid})
//	...
//	var task schema.Task
//	err = schema.Decode(row, &task)
//
// Timestamps are UTC with microsecond precision so a Row survives a round trip
// through SQLite text columns and Postgres timestamptz unchanged.
package schema
