// Package services defines shared utilities consumed by the stage handlers and
// the external service adapters under this directory.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Failure markers (ErrTransient, ErrPermanent) plus the Wrap helper and
//     ServiceError type so every adapter classifies its outcome the same way.
//   - HTTP helpers that map transport errors and status codes onto those
//     markers and decode JSON responses.
//
// Adapters never retry. Retry policy lives in the workflow package so backoff
// is uniform across stages.
package services
