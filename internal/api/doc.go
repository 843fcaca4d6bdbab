// Package api defines the wire-format types the daemon HTTP API serves and a
// client the CLI uses to call it.
//
// # Key Types
//
// Job: transport representation of a queue.Job with timestamps rendered as
// RFC3339 strings and stage names as plain strings.
//
// WorkflowStatus / DaemonStatus: running state, per-stage concurrency and
// health, job counts, and the most recent job and error.
//
// Metrics: counts per state plus lifecycle totals.
//
// # Converters
//
// FromJob: queue.Job -> Job.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// FromStats: per-state counts -> Metrics, with every state present.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Payloads are passed through as
// json.RawMessage to avoid double-encoding.
package api
