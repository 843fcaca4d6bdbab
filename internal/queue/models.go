package queue

import (
	"encoding/json"
	"time"
)

// State represents the lifecycle of a job.
type State string

const (
	StateIngested     State = "ingested"
	StateTranscribing State = "transcribing"
	StateTranscribed  State = "transcribed"
	StateGenerating   State = "generating"
	StateGenerated    State = "generated"
	StatePublishing   State = "publishing"
	StatePublished    State = "published"
	StateFailed       State = "failed"
)

// AllStates lists states in pipeline order.
var AllStates = []State{
	StateIngested,
	StateTranscribing,
	StateTranscribed,
	StateGenerating,
	StateGenerated,
	StatePublishing,
	StatePublished,
	StateFailed,
}

// ParseState validates a state name.
func ParseState(value string) (State, bool) {
	for _, s := range AllStates {
		if string(s) == value {
			return s, true
		}
	}
	return "", false
}

// Stage names one job-driven pipeline phase.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageGenerate   Stage = "generate"
	StagePublish    Stage = "publish"
)

// Artifact names recorded by each stage.
const (
	ArtifactTranscript = "transcript"
	ArtifactVideo      = "video"
	ArtifactPublished  = "published"
)

// StageSpec ties a stage to its precondition, in-progress, and postcondition states.
type StageSpec struct {
	Stage    Stage
	Ready    State
	Running  State
	Done     State
	Artifact string
}

// Stages lists the job-driven stages in order. Ingest creates jobs and has no
// job state of its own.
var Stages = []StageSpec{
	{Stage: StageTranscribe, Ready: StateIngested, Running: StateTranscribing, Done: StateTranscribed, Artifact: ArtifactTranscript},
	{Stage: StageGenerate, Ready: StateTranscribed, Running: StateGenerating, Done: StateGenerated, Artifact: ArtifactVideo},
	{Stage: StagePublish, Ready: StateGenerated, Running: StatePublishing, Done: StatePublished, Artifact: ArtifactPublished},
}

// LookupStage returns the spec for a stage name.
func LookupStage(stage Stage) (StageSpec, bool) {
	for _, spec := range Stages {
		if spec.Stage == stage {
			return spec, true
		}
	}
	return StageSpec{}, false
}

// StageFor returns the stage whose ready, running, or done state is s.
// Ready and done overlap between neighbours; ready wins.
func StageFor(s State) (StageSpec, bool) {
	for _, spec := range Stages {
		if spec.Ready == s || spec.Running == s {
			return spec, true
		}
	}
	for _, spec := range Stages {
		if spec.Done == s {
			return spec, true
		}
	}
	return StageSpec{}, false
}

// IsRunning reports whether s is an in-progress state.
func (s State) IsRunning() bool {
	for _, spec := range Stages {
		if spec.Running == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends the pipeline.
func (s State) IsTerminal() bool {
	return s == StatePublished || s == StateFailed
}

// ErrorRecord captures why a stage last failed.
type ErrorRecord struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Stage   Stage     `json:"stage,omitempty"`
	At      time.Time `json:"at"`
}

// Job is one cast's progress through the pipeline.
type Job struct {
	ID            string            `json:"id"`
	SourceRef     string            `json:"source_ref"`
	State         State             `json:"state"`
	Payload       json.RawMessage   `json:"payload,omitempty"`
	Attempts      map[Stage]int     `json:"attempts"`
	FailedStage   Stage             `json:"failed_stage,omitempty"`
	LastError     *ErrorRecord      `json:"last_error,omitempty"`
	Artifacts     map[string]string `json:"artifacts"`
	NextAttemptAt *time.Time        `json:"next_attempt_at,omitempty"`
	LastHeartbeat *time.Time        `json:"last_heartbeat,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Attempt returns the attempt count recorded for stage.
func (j *Job) Attempt(stage Stage) int {
	if j == nil || j.Attempts == nil {
		return 0
	}
	return j.Attempts[stage]
}

// Artifact returns the URI recorded under name.
func (j *Job) Artifact(name string) (string, bool) {
	if j == nil || j.Artifacts == nil {
		return "", false
	}
	uri, ok := j.Artifacts[name]
	return uri, ok
}

// HealthSummary aggregates job counts across lifecycle groups.
type HealthSummary struct {
	Total     int
	Waiting   int
	Running   int
	Published int
	Failed    int
}
