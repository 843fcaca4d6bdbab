// Package main hosts the castreel CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground and translates
// terminal invocations into HTTP API calls against a running daemon. Job
// queries fall back to opening the queue database directly when no daemon
// answers, so operators can inspect and retry jobs while it is stopped.
package main
