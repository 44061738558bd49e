// Package state holds the task and session records of one agent root and
// the queries built on them: unique-task lookup, session resolution for
// finish, per-task stage history and reconciliation of orphaned Running
// tasks.
//
// Records are JSON files written through package record, so every mutation
// is atomic and serialized across processes by the record's lock file.
package state
