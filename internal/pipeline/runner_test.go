package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dvloznov/finance-graph/internal/domain"
	"github.com/dvloznov/finance-graph/internal/graph"
	"github.com/dvloznov/finance-graph/internal/jobs"
	"github.com/dvloznov/finance-graph/internal/jobs/inmemory"
	"github.com/dvloznov/finance-graph/internal/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu             sync.Mutex
	upserted       []domain.Transaction
	InitializeFunc func(ctx context.Context) error
	UpsertFunc     func(ctx context.Context, tx domain.Transaction) (string, error)
}

func (m *mockStore) Initialize(ctx context.Context) error {
	if m.InitializeFunc != nil {
		return m.InitializeFunc(ctx)
	}
	return nil
}

func (m *mockStore) Upsert(ctx context.Context, tx domain.Transaction) (string, error) {
	m.mu.Lock()
	m.upserted = append(m.upserted, tx)
	m.mu.Unlock()
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, tx)
	}
	return tx.ID, nil
}

type mockCategorizer struct {
	CategorizeFunc func(ctx context.Context, tx domain.Transaction) (*domain.CategoryAssignment, error)
}

func (m *mockCategorizer) Categorize(ctx context.Context, tx domain.Transaction) (*domain.CategoryAssignment, error) {
	return m.CategorizeFunc(ctx, tx)
}

type mockExporter struct {
	mu       sync.Mutex
	exported []string
}

func (m *mockExporter) Export(_ context.Context, tx domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exported = append(m.exported, tx.ID)
	return nil
}

func records(n int) []domain.RawRecord {
	out := make([]domain.RawRecord, n)
	for i := range out {
		out[i] = domain.RawRecord{
			ID:          fmt.Sprintf("tx-%d", i),
			Date:        "2024-03-09",
			Amount:      "-12.50",
			Description: "CARD PAYMENT TO TESCO STORES",
		}
	}
	return out
}

func food(context.Context, domain.Transaction) (*domain.CategoryAssignment, error) {
	return &domain.CategoryAssignment{Main: "Food", Sub: "Groceries", Validation: domain.ValidationValid, Attempts: 1}, nil
}

func TestPipeline_Stages(t *testing.T) {
	p := Pipeline{Normalizer: normalize.New(), Categorizer: &mockCategorizer{}, Store: &mockStore{}}
	names := func(stages []Stage) []string {
		var out []string
		for _, s := range stages {
			out = append(out, s.Name)
		}
		return out
	}

	assert.Equal(t, []string{StageNormalize, StageCategorize, StageStore}, names(p.Stages()))

	p.Exporter = &mockExporter{}
	stages := p.Stages()
	assert.Equal(t, []string{StageNormalize, StageCategorize, StageStore, StageExport}, names(stages))
	assert.True(t, stages[3].Serial)
}

func TestRunner_EndToEnd(t *testing.T) {
	store := &mockStore{}
	exp := &mockExporter{}
	p := Pipeline{
		Normalizer:  normalize.New(),
		Categorizer: &mockCategorizer{CategorizeFunc: food},
		Store:       store,
		Exporter:    exp,
	}

	res := NewRunner(NewOrchestrator(nil), p, nil, Options{}).Execute(context.Background(), &sliceSource{records: records(5)}, "run-7")

	assert.Equal(t, RunSuccess, res.Status)
	assert.Equal(t, "run-7", res.RunID)
	assert.Equal(t, 5, res.ProcessedCount)
	require.Len(t, store.upserted, 5)
	for _, tx := range store.upserted {
		assert.Equal(t, domain.StatusCategorized, tx.Status)
		assert.Equal(t, "Tesco Stores", tx.CleanDescription)
		require.NotNil(t, tx.Category)
		assert.Equal(t, "Food", tx.Category.Main)
	}
	assert.Len(t, exp.exported, 5)
}

func TestRunner_UncategorizedContinues(t *testing.T) {
	store := &mockStore{}
	p := Pipeline{
		Normalizer: normalize.New(),
		Categorizer: &mockCategorizer{CategorizeFunc: func(context.Context, domain.Transaction) (*domain.CategoryAssignment, error) {
			return nil, nil
		}},
		Store: store,
	}

	res := NewRunner(NewOrchestrator(nil), p, nil, Options{}).Execute(context.Background(), &sliceSource{records: records(2)}, "")

	assert.Equal(t, 2, res.ProcessedCount)
	assert.NotEmpty(t, res.RunID)
	for _, tx := range store.upserted {
		assert.Nil(t, tx.Category)
	}
}

func TestRunner_InitializeFailureProcessesNothing(t *testing.T) {
	store := &mockStore{InitializeFunc: func(context.Context) error { return graph.ErrConnectivity }}
	src := &countingSource{n: 5}
	p := Pipeline{Normalizer: normalize.New(), Categorizer: &mockCategorizer{CategorizeFunc: food}, Store: store}

	res := NewRunner(NewOrchestrator(nil), p, nil, Options{}).Execute(context.Background(), src, "r")

	assert.Equal(t, RunFailed, res.Status)
	assert.ErrorIs(t, res.Err, graph.ErrConnectivity)
	assert.Zero(t, src.reads.Load())
	assert.Empty(t, store.upserted)
}

func TestStoreStage_UnavailableIsFatal(t *testing.T) {
	store := &mockStore{UpsertFunc: func(context.Context, domain.Transaction) (string, error) {
		return "", fmt.Errorf("Upsert: %w", graph.ErrUnavailable)
	}}
	p := Pipeline{Normalizer: normalize.New(), Categorizer: &mockCategorizer{CategorizeFunc: food}, Store: store}

	res := NewRunner(NewOrchestrator(nil), p, nil, Options{}).Execute(context.Background(), &sliceSource{records: records(50)}, "r")

	assert.Equal(t, RunFailed, res.Status)
	assert.ErrorIs(t, res.Err, graph.ErrUnavailable)
	assert.GreaterOrEqual(t, res.FailedCount, 1)
	assert.LessOrEqual(t, res.Total(), 50)
}

func TestStoreStage_ItemErrorIsNotFatal(t *testing.T) {
	store := &mockStore{UpsertFunc: func(_ context.Context, tx domain.Transaction) (string, error) {
		if tx.ID == "tx-1" {
			return "", errors.New("constraint violated")
		}
		return tx.ID, nil
	}}
	p := Pipeline{Normalizer: normalize.New(), Categorizer: &mockCategorizer{CategorizeFunc: food}, Store: store}

	res := NewRunner(NewOrchestrator(nil), p, nil, Options{}).Execute(context.Background(), &sliceSource{records: records(3)}, "r")

	assert.Equal(t, RunSuccess, res.Status)
	assert.Equal(t, 2, res.ProcessedCount)
	assert.Equal(t, 1, res.FailedCount)
}

func TestRunner_HandleRecordsRun(t *testing.T) {
	ledger := inmemory.NewStore()
	p := Pipeline{Normalizer: normalize.New(), Categorizer: &mockCategorizer{CategorizeFunc: food}, Store: &mockStore{UpsertFunc: func(_ context.Context, tx domain.Transaction) (string, error) {
		if tx.ID == "tx-0" {
			return "", errors.New("bad row")
		}
		return tx.ID, nil
	}}}
	runner := NewRunner(NewOrchestrator(nil), p, ledger, Options{})
	handle := runner.Handle(func(context.Context, string) (SourceCloser, error) {
		return &sliceSource{records: records(4)}, nil
	})

	job := &jobs.RunJob{JobID: "job-1", SourceURI: "mem://x"}
	require.NoError(t, handle(context.Background(), job))

	got, err := ledger.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, string(RunSuccess), got.RunStatus)
	assert.Equal(t, 3, got.Processed)
	assert.Equal(t, 1, got.Failed)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "tx-0", got.Failures[0].TransactionID)
	assert.Equal(t, StageStore, got.Failures[0].Stage)
}

func TestRunner_HandleReportsFailedRuns(t *testing.T) {
	p := Pipeline{Normalizer: normalize.New(), Categorizer: &mockCategorizer{CategorizeFunc: food},
		Store: &mockStore{InitializeFunc: func(context.Context) error { return errors.New("down") }}}
	handle := NewRunner(NewOrchestrator(nil), p, nil, Options{}).Handle(func(context.Context, string) (SourceCloser, error) {
		return &sliceSource{}, nil
	})

	err := handle(context.Background(), &jobs.RunJob{JobID: "j"})
	assert.ErrorContains(t, err, "down")

	handle = NewRunner(NewOrchestrator(nil), p, nil, Options{}).Handle(func(context.Context, string) (SourceCloser, error) {
		return nil, errors.New("no such file")
	})
	assert.ErrorContains(t, handle(context.Background(), &jobs.RunJob{JobID: "j"}), "no such file")
}
