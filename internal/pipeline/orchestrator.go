// Package pipeline moves transactions through the fetch, normalize, enrich,
// categorize, store and export stages with bounded concurrency.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/dvloznov/finance-graph/internal/domain"
	"github.com/dvloznov/finance-graph/internal/logger"
	"github.com/dvloznov/finance-graph/internal/normalize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxConcurrency = 4
	DefaultQueueCapacity  = 16
	DefaultItemGrace      = 30 * time.Second

	// FetchStage names the source read in failures and cancellations.
	FetchStage = "fetch"

	tracerName = "github.com/dvloznov/finance-graph/internal/pipeline"
)

// ErrFatal marks a stage error that must abort the whole run.
var ErrFatal = errors.New("fatal pipeline error")

// Fatal wraps err so the orchestrator aborts the run when a stage returns it.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

type runIDKey struct{}

// WithRunID returns a context carrying the run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the id of the run processing the current item.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Source yields raw records until io.EOF.
type Source interface {
	Next(ctx context.Context) (domain.RawRecord, error)
}

// StageFunc processes one transaction and returns its successor value.
type StageFunc func(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)

// Stage is one step of the pipeline. After Process succeeds the result is
// advanced to Target.
type Stage struct {
	Name   string
	Target domain.ProcessingStatus
	// MaxConcurrency overrides Options.MaxConcurrency for this stage.
	MaxConcurrency int
	// Serial forces a single worker.
	Serial  bool
	Process StageFunc
}

// Options tunes a run.
type Options struct {
	RunID          string
	MaxConcurrency int
	QueueCapacity  int
	// Timeout bounds the whole run; zero means none.
	Timeout time.Duration
	// ItemGrace is how long an item already in a worker may keep running
	// after the run is cancelled.
	ItemGrace time.Duration
	// StageConcurrency overrides worker counts by stage name.
	StageConcurrency map[string]int
	// OnComplete, when set, receives every item in its final state from a
	// single goroutine.
	OnComplete func(domain.Transaction)
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.ItemGrace <= 0 {
		o.ItemGrace = DefaultItemGrace
	}
	return o
}

func (o Options) workers(s Stage) int {
	if s.Serial {
		return 1
	}
	if n := o.StageConcurrency[s.Name]; n > 0 {
		return n
	}
	if s.MaxConcurrency > 0 {
		return s.MaxConcurrency
	}
	return o.MaxConcurrency
}

// RunStatus is the outcome of a whole run.
type RunStatus string

const (
	RunSuccess   RunStatus = "success"
	RunFailed    RunStatus = "failed"
	RunTimedOut  RunStatus = "timed_out"
	RunCancelled RunStatus = "cancelled"
)

// ItemFailure describes one item that ended Failed.
type ItemFailure struct {
	ID     string `json:"id"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// RunResult summarizes a run. Every record read from the source is counted
// exactly once as processed, failed or cancelled.
type RunResult struct {
	RunID          string        `json:"run_id"`
	Status         RunStatus     `json:"status"`
	ProcessedCount int           `json:"processed_count"`
	FailedCount    int           `json:"failed_count"`
	CancelledCount int           `json:"cancelled_count"`
	Duration       time.Duration `json:"duration"`
	Failures       []ItemFailure `json:"failures,omitempty"`
	// Err is the fatal or source error that ended the run early.
	Err error `json:"-"`
}

// Total is the number of records the run read.
func (r RunResult) Total() int {
	return r.ProcessedCount + r.FailedCount + r.CancelledCount
}

// Orchestrator runs transactions through stages. It holds no per-run state
// and may run several pipelines at once.
type Orchestrator struct {
	tracer trace.Tracer
}

// NewOrchestrator creates an Orchestrator. A nil tracer uses the global provider.
func NewOrchestrator(tracer trace.Tracer) *Orchestrator {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Orchestrator{tracer: tracer}
}

// Run reads src to exhaustion and pushes every record through stages.
// It blocks until every item reached a final state.
func (o *Orchestrator) Run(ctx context.Context, src Source, stages []Stage, opts Options) RunResult {
	opts = opts.withDefaults()
	start := time.Now()

	log := logger.FromContext(ctx).With().Str("run_id", opts.RunID).Logger()
	ctx = WithRunID(logger.WithContext(ctx, log), opts.RunID)

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, opts.Timeout)
		defer cancelTimeout()
	}
	runCtx, abort := context.WithCancelCause(runCtx)
	defer abort(nil)

	queues := make([]chan domain.Transaction, len(stages)+1)
	for i := range queues {
		queues[i] = make(chan domain.Transaction, opts.QueueCapacity)
	}

	r := &run{
		o:     o,
		opts:  opts,
		ctx:   runCtx,
		abort: abort,
	}

	log.Info().Int("stages", len(stages)).Int("queue_capacity", opts.QueueCapacity).Msg("Run started")

	var g errgroup.Group
	g.Go(func() error {
		defer close(queues[0])
		r.produce(src, queues[0])
		return nil
	})
	for i, stage := range stages {
		in, out := queues[i], queues[i+1]
		n := opts.workers(stage)
		g.Go(func() error {
			defer close(out)
			var workers errgroup.Group
			for w := 0; w < n; w++ {
				workers.Go(func() error {
					for tx := range in {
						out <- r.step(stage, tx)
					}
					return nil
				})
			}
			return workers.Wait()
		})
	}

	result := RunResult{RunID: opts.RunID}
	for tx := range queues[len(stages)] {
		switch tx.Status {
		case domain.StatusFailed:
			result.FailedCount++
			result.Failures = append(result.Failures, ItemFailure{ID: tx.ID, Stage: tx.FailedStage, Reason: tx.FailureReason})
			log.Warn().Str("transaction_id", tx.ID).Str("stage", tx.FailedStage).Str("reason", tx.FailureReason).Msg("Item failed")
		case domain.StatusCancelled:
			result.CancelledCount++
		default:
			result.ProcessedCount++
		}
		if opts.OnComplete != nil {
			opts.OnComplete(tx)
		}
	}
	_ = g.Wait()

	result.Duration = time.Since(start)
	result.Status, result.Err = r.outcome(ctx, runCtx, result)

	ev := log.Info()
	if result.Status != RunSuccess {
		ev = log.Warn().AnErr("cause", result.Err)
	}
	ev.Str("status", string(result.Status)).
		Int("processed", result.ProcessedCount).
		Int("failed", result.FailedCount).
		Int("cancelled", result.CancelledCount).
		Dur("duration", result.Duration).
		Msg("Run finished")
	return result
}

// run carries the state shared by one Run's goroutines.
type run struct {
	o     *Orchestrator
	opts  Options
	ctx   context.Context
	abort context.CancelCauseFunc

	// drained is written by the producer before it closes the first queue.
	drained bool
}

func (r *run) produce(src Source, out chan<- domain.Transaction) {
	log := logger.FromContext(r.ctx)
	for {
		if r.ctx.Err() != nil {
			return
		}
		rec, err := src.Next(r.ctx)
		if err == io.EOF {
			r.drained = true
			return
		}
		if err != nil {
			if r.ctx.Err() == nil {
				log.Error().Err(err).Msg("Source failed")
				r.abort(Fatal(fmt.Errorf("read source: %w", err)))
			}
			return
		}

		tx := normalize.FromRaw(rec)
		if r.ctx.Err() != nil {
			tx = tx.Cancel(FetchStage)
		}
		// Blocking send: queues are bounded and workers always drain them.
		out <- tx
	}
}

// step applies one stage to one item and never fails the run by itself
// except through ErrFatal.
func (r *run) step(stage Stage, tx domain.Transaction) domain.Transaction {
	if tx.Status.Terminal() {
		return tx
	}
	if r.ctx.Err() != nil {
		return tx.Cancel(stage.Name)
	}

	// Work already started survives cancellation for up to ItemGrace.
	detached, cancelItem := context.WithCancel(context.WithoutCancel(r.ctx))
	stop := context.AfterFunc(r.ctx, func() {
		t := time.NewTimer(r.opts.ItemGrace)
		defer t.Stop()
		select {
		case <-t.C:
			cancelItem()
		case <-detached.Done():
		}
	})
	defer func() {
		stop()
		cancelItem()
	}()

	itemCtx, span := r.o.tracer.Start(detached, "pipeline.stage", trace.WithAttributes(
		attribute.String("pipeline.run_id", r.opts.RunID),
		attribute.String("pipeline.stage", stage.Name),
		attribute.String("transaction.id", tx.ID),
	))
	defer span.End()
	itemCtx = logger.WithContext(itemCtx, logger.FromContext(r.ctx).With().
		Str("stage", stage.Name).Str("transaction_id", tx.ID).Logger())

	out, err := r.invoke(itemCtx, stage, tx)
	if err == nil {
		if out.Status != stage.Target {
			out, err = out.Advance(stage.Target)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if errors.Is(err, ErrFatal) {
			log := logger.FromContext(itemCtx)
			log.Error().Err(err).Msg("Fatal stage error, aborting run")
			r.abort(err)
		} else if r.ctx.Err() != nil && detached.Err() != nil {
			return tx.Cancel(stage.Name)
		}
		return tx.Fail(stage.Name, err)
	}

	span.SetAttributes(attribute.String("transaction.status", out.Status.String()))
	return out
}

func (r *run) invoke(ctx context.Context, stage Stage, tx domain.Transaction) (out domain.Transaction, err error) {
	defer func() {
		if p := recover(); p != nil {
			log := logger.FromContext(ctx)
			log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("Stage panicked")
			out, err = tx, fmt.Errorf("panic: %v", p)
		}
	}()
	if stage.Process == nil {
		return tx, nil
	}
	return stage.Process(ctx, tx)
}

// outcome derives the run status once every queue has drained.
func (r *run) outcome(parent, runCtx context.Context, res RunResult) (RunStatus, error) {
	cause := context.Cause(runCtx)
	if errors.Is(cause, ErrFatal) {
		return RunFailed, cause
	}
	// A run that overran its deadline is timed out even if every item finished.
	if errors.Is(parent.Err(), context.DeadlineExceeded) {
		return RunTimedOut, parent.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return RunTimedOut, runCtx.Err()
	}
	if r.drained && res.CancelledCount == 0 {
		return RunSuccess, nil
	}
	switch {
	case parent.Err() != nil:
		return RunCancelled, parent.Err()
	case runCtx.Err() != nil:
		return RunCancelled, cause
	}
	return RunSuccess, nil
}
