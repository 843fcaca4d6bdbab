package stage

import (
	"context"

	"castreel/internal/queue"
)

// Result is what a stage hands back on success.
type Result struct {
	// ArtifactURI is recorded on the job under the stage's artifact name.
	ArtifactURI string
	// Detail is an optional human-readable note for logs.
	Detail string
}

// Handler describes the contract the workflow manager needs from each
// job-driven stage. Execute performs exactly one adapter call and never
// retries; the returned error must be classifiable by services.Classify.
type Handler interface {
	Execute(context.Context, *queue.Job) (Result, error)
	HealthCheck(context.Context) Health
}
