package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-graph/internal/domain"
	"github.com/dvloznov/finance-graph/internal/graph"
)

// Stage names.
const (
	StageNormalize  = "normalize"
	StageEnrich     = "enrich"
	StageCategorize = "categorize"
	StageStore      = "store"
	StageExport     = "export"
)

// Normalizer cleans a fetched transaction.
type Normalizer interface {
	Normalize(tx domain.Transaction) (domain.Transaction, error)
}

// Enricher attaches external evidence to a transaction.
type Enricher interface {
	Enrich(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
}

// Categorizer assigns a category. A nil assignment with a nil error means no
// valid category was found.
type Categorizer interface {
	Categorize(ctx context.Context, tx domain.Transaction) (*domain.CategoryAssignment, error)
}

// GraphStore persists transactions.
type GraphStore interface {
	Initialize(ctx context.Context) error
	Upsert(ctx context.Context, tx domain.Transaction) (string, error)
}

// Exporter mirrors stored transactions to an external sink.
type Exporter interface {
	Export(ctx context.Context, tx domain.Transaction) error
}

// NormalizeStage cleans descriptions and amounts.
func NormalizeStage(n Normalizer) Stage {
	return Stage{
		Name:   StageNormalize,
		Target: domain.StatusProcessed,
		Process: func(_ context.Context, tx domain.Transaction) (domain.Transaction, error) {
			return n.Normalize(tx)
		},
	}
}

// EnrichStage correlates transactions with emails.
func EnrichStage(e Enricher) Stage {
	return Stage{
		Name:    StageEnrich,
		Target:  domain.StatusEmailEnriched,
		Process: e.Enrich,
	}
}

// CategorizeStage asks the classifier for a category. Transactions without a
// valid answer continue uncategorized.
func CategorizeStage(c Categorizer) Stage {
	return Stage{
		Name:   StageCategorize,
		Target: domain.StatusCategorized,
		Process: func(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
			a, err := c.Categorize(ctx, tx)
			if err != nil {
				return tx, fmt.Errorf("categorize: %w", err)
			}
			return tx.WithCategory(a), nil
		},
	}
}

// StoreStage upserts into the graph. An unavailable store aborts the run.
func StoreStage(s GraphStore) Stage {
	return Stage{
		Name:   StageStore,
		Target: domain.StatusStored,
		Process: func(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
			if _, err := s.Upsert(ctx, tx); err != nil {
				if errors.Is(err, graph.ErrUnavailable) {
					return tx, Fatal(err)
				}
				return tx, err
			}
			return tx, nil
		},
	}
}

// ExportStage writes stored transactions to a sink one at a time.
func ExportStage(e Exporter) Stage {
	return Stage{
		Name:   StageExport,
		Target: domain.StatusExported,
		Serial: true,
		Process: func(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
			if err := e.Export(ctx, tx); err != nil {
				return tx, fmt.Errorf("export: %w", err)
			}
			return tx, nil
		},
	}
}

// Pipeline assembles the standard stages from its collaborators. Enricher
// and Exporter are optional.
type Pipeline struct {
	Normalizer  Normalizer
	Enricher    Enricher
	Categorizer Categorizer
	Store       GraphStore
	Exporter    Exporter
}

// Stages returns the configured stages in execution order.
func (p Pipeline) Stages() []Stage {
	stages := []Stage{NormalizeStage(p.Normalizer)}
	if p.Enricher != nil {
		stages = append(stages, EnrichStage(p.Enricher))
	}
	stages = append(stages, CategorizeStage(p.Categorizer), StoreStage(p.Store))
	if p.Exporter != nil {
		stages = append(stages, ExportStage(p.Exporter))
	}
	return stages
}
