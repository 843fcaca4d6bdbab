// Package workflow drives jobs through the transcribe, generate, and publish
// stages.
//
// The Manager runs one dispatch loop per stage plus an ingest loop and a
// heartbeat reclaimer. Each stage loop lists jobs sitting in the stage's
// precondition state whose backoff has elapsed, oldest first, and hands them to
// an Executor under a weighted semaphore sized by the stage's
// max_concurrency. A job that is waiting out a backoff occupies no slot; it is
// simply not listed until its next_attempt_at passes.
//
// The Executor owns the per-dispatch state machine: claim the job into the
// running state, make exactly one adapter call, then record success, a
// backoff retry, or failure. Every store write presents the state the executor
// observed, so a job moved by another writer is left alone.
package workflow
