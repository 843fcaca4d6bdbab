// Package logs reads the daemon log file for `castreel logs`.
//
// Tail returns the last N lines (negative offset) or everything written after
// a byte offset, optionally waiting for new output in follow mode. A Match
// filter narrows output to one job without loading the whole file.
package logs
