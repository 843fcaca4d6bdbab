// Package daemon is the pipeline controller: it owns the long-running
// castreel process lifecycle.
//
// It wires configuration, queue storage, and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances.
// Start runs preflight checks, returns jobs stranded in an in-progress state
// by a previous crash to their precondition state, starts the workflow
// manager, and serves the HTTP API. Stop tears those down in reverse.
//
// Keep orchestration logic here: individual workflow steps live in their
// respective packages while the daemon focuses on startup, shutdown, and the
// query surface (job status, metrics, operator retry).
package daemon
