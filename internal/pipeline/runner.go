package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-graph/internal/jobs"
	"github.com/dvloznov/finance-graph/internal/logger"
	"github.com/google/uuid"
)

// Runner executes whole runs: it prepares the graph schema, drives the
// orchestrator and records the outcome in the run ledger.
type Runner struct {
	orchestrator *Orchestrator
	pipeline     Pipeline
	jobs         jobs.Store
	opts         Options
}

// NewRunner creates a Runner. store may be nil when no ledger is kept.
func NewRunner(o *Orchestrator, p Pipeline, store jobs.Store, opts Options) *Runner {
	return &Runner{orchestrator: o, pipeline: p, jobs: store, opts: opts}
}

// Execute runs src under runID. If the graph schema cannot be initialized the
// run ends Failed before any record is read.
func (r *Runner) Execute(ctx context.Context, src Source, runID string) RunResult {
	if runID == "" {
		runID = uuid.New().String()
	}
	log := logger.FromContext(ctx).With().Str("run_id", runID).Logger()
	ctx = logger.WithContext(ctx, log)

	if err := r.pipeline.Store.Initialize(ctx); err != nil {
		log.Error().Err(err).Msg("Graph schema initialization failed")
		return RunResult{RunID: runID, Status: RunFailed, Err: fmt.Errorf("initialize graph: %w", err)}
	}

	opts := r.opts
	opts.RunID = runID
	return r.orchestrator.Run(ctx, src, r.pipeline.Stages(), opts)
}

// Handle returns a jobs.JobHandler that opens each job's source and runs it.
// A run that ends Failed is reported as an error so the queue may retry it.
func (r *Runner) Handle(open func(ctx context.Context, uri string) (SourceCloser, error)) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.RunJob) error {
		src, err := open(ctx, job.SourceURI)
		if err != nil {
			return fmt.Errorf("open source: %w", err)
		}
		defer src.Close()

		res := r.Execute(ctx, src, job.JobID)
		ApplyResult(job, res)
		if r.jobs != nil {
			if err := r.jobs.SaveJob(ctx, job); err != nil {
				log := logger.FromContext(ctx)
				log.Warn().Err(err).Str("job_id", job.JobID).Msg("Could not record run")
			}
		}
		if res.Status == RunFailed {
			return res.Err
		}
		return nil
	}
}

// SourceCloser is a Source holding an open file or object.
type SourceCloser interface {
	Source
	Close() error
}

// ApplyResult copies a run outcome onto its ledger entry.
func ApplyResult(job *jobs.RunJob, res RunResult) {
	job.RunStatus = string(res.Status)
	job.Processed = res.ProcessedCount
	job.Failed = res.FailedCount
	job.Cancelled = res.CancelledCount
	job.Failures = job.Failures[:0]
	for _, f := range res.Failures {
		job.Failures = append(job.Failures, jobs.ItemFailure{TransactionID: f.ID, Stage: f.Stage, Reason: f.Reason})
	}
	if res.Err != nil {
		job.Error = res.Err.Error()
	}
	now := time.Now().UTC()
	job.CompletedAt = &now
}
