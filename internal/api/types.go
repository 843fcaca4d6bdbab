package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ErrorInfo mirrors queue.ErrorRecord.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
	At      string `json:"at,omitempty"`
}

// Job describes a pipeline job in a transport-friendly format.
type Job struct {
	ID            string            `json:"id"`
	SourceRef     string            `json:"sourceRef"`
	State         string            `json:"state"`
	Attempts      map[string]int    `json:"attempts,omitempty"`
	FailedStage   string            `json:"failedStage,omitempty"`
	LastError     *ErrorInfo        `json:"lastError,omitempty"`
	Artifacts     map[string]string `json:"artifacts,omitempty"`
	NextAttemptAt string            `json:"nextAttemptAt,omitempty"`
	LastHeartbeat string            `json:"lastHeartbeat,omitempty"`
	CreatedAt     string            `json:"createdAt,omitempty"`
	UpdatedAt     string            `json:"updatedAt,omitempty"`
	Payload       json.RawMessage   `json:"payload,omitempty"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// StageStatus reports one stage's dispatch state.
type StageStatus struct {
	Name     string      `json:"name"`
	Label    string      `json:"label"`
	Limit    int         `json:"limit"`
	InFlight int         `json:"inFlight"`
	Health   StageHealth `json:"health"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running   bool           `json:"running"`
	JobStats  map[string]int `json:"jobStats"`
	LastError string         `json:"lastError,omitempty"`
	LastJob   *Job           `json:"lastJob,omitempty"`
	Stages    []StageStatus  `json:"stages"`
}

// DatabaseStatus reports queue database diagnostics.
type DatabaseStatus struct {
	Path           string `json:"path"`
	IntegrityCheck bool   `json:"integrityCheck"`
	TotalJobs      int    `json:"totalJobs"`
	Error          string `json:"error,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	StartedAt    string         `json:"startedAt,omitempty"`
	QueueDBPath  string         `json:"queueDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	Database     DatabaseStatus `json:"database"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// Metrics reports job counts per state and lifecycle totals.
type Metrics struct {
	Counts    map[string]int `json:"counts"`
	Total     int            `json:"total"`
	Waiting   int            `json:"waiting"`
	Running   int            `json:"running"`
	Published int            `json:"published"`
	Failed    int            `json:"failed"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NotificationResponse reports the outcome of a test notification.
type NotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
