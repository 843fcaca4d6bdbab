// Package queue persists pipeline jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages the database connection, schema initialization, per-state
// counts, heartbeat tracking, stuck-job recovery, and the optimistic
// Transition that every stage uses to move a job forward. A job's state is the
// only coordination point between stages: a caller presents the state it
// observed and the store refuses the write if another writer got there first.
//
// Jobs are never deleted. Artifacts are write-once per name, and a cast's
// source_ref may only be held by one job that has not failed.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package queue
