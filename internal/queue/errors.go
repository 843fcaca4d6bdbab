package queue

import "errors"

var (
	// ErrNotFound is returned when no job has the requested id.
	ErrNotFound = errors.New("job not found")
	// ErrDuplicateSourceRef is returned when a non-failed job already holds the source_ref.
	ErrDuplicateSourceRef = errors.New("duplicate source_ref")
	// ErrStaleState is returned when the job is no longer in the expected state.
	// The stored job is left unchanged.
	ErrStaleState = errors.New("stale job state")
	// ErrIllegalTransition is returned for moves outside the fixed stage order.
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrArtifactExists is returned when an artifact name is written twice.
	ErrArtifactExists = errors.New("artifact already recorded")
)
