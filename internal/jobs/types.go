package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a job id is unknown to a Store.
var ErrNotFound = errors.New("job not found")

// JobStatus represents the lifecycle status of a run job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the run is in progress.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the run finished. RunStatus tells how.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the run could not finish.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the run failed and is queued again.
	JobStatusRetrying JobStatus = "retrying"
)

// ItemFailure records one transaction that failed inside a run.
type ItemFailure struct {
	TransactionID string `json:"transaction_id"`
	Stage         string `json:"stage"`
	Reason        string `json:"reason"`
}

// RunJob tracks one pipeline run over a source.
type RunJob struct {
	// JobID is also the run id carried through logs and traces.
	JobID string `json:"job_id"`

	// SourceURI is a local path or gs:// URI of the input.
	SourceURI string `json:"source_uri"`

	Status JobStatus `json:"status"`

	// RunStatus is the orchestrator outcome: success, failed, timed_out or cancelled.
	RunStatus string `json:"run_status,omitempty"`

	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`

	Failures []ItemFailure `json:"failures,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains the run-level error, if any.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Publisher enqueues runs for asynchronous execution.
type Publisher interface {
	PublishRun(ctx context.Context, job *RunJob) error
	Close() error
}

// Consumer executes queued runs.
type Consumer interface {
	// Start begins consuming jobs; handler is called for each one.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler executes one run. A returned error marks the job for retry.
type JobHandler func(ctx context.Context, job *RunJob) error

// Store persists run jobs across the API and workers.
type Store interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *RunJob) error

	// GetJob retrieves a job by ID or returns ErrNotFound.
	GetJob(ctx context.Context, jobID string) (*RunJob, error)

	// ListJobs returns jobs newest first, filtered.
	ListJobs(ctx context.Context, filter JobFilter) ([]*RunJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	SourceURI string
	Status    JobStatus
	Limit     int
	Offset    int
}

// Paginate applies filter's offset and limit to an already ordered list.
func Paginate[T any](items []T, filter JobFilter) []T {
	if filter.Offset > 0 {
		if filter.Offset >= len(items) {
			return []T{}
		}
		items = items[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(items) {
		items = items[:filter.Limit]
	}
	return items
}
