package export

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-graph/internal/domain"
	infra "github.com/dvloznov/finance-graph/internal/infra/bigquery"
	"github.com/dvloznov/finance-graph/internal/pipeline"
)

// RowInserter streams transaction rows into BigQuery.
type RowInserter interface {
	InsertTransactions(ctx context.Context, rows []*infra.TransactionRow) error
}

// BigQueryExporter mirrors transactions into finance.transactions.
type BigQueryExporter struct {
	inserter RowInserter
	now      func() time.Time
}

// NewBigQueryExporter creates an exporter on top of a repository.
func NewBigQueryExporter(inserter RowInserter) *BigQueryExporter {
	return &BigQueryExporter{inserter: inserter, now: time.Now}
}

// Export implements Exporter.
func (e *BigQueryExporter) Export(ctx context.Context, tx domain.Transaction) error {
	row := TransactionRow(tx, pipeline.RunIDFromContext(ctx), e.now())
	if err := e.inserter.InsertTransactions(ctx, []*infra.TransactionRow{row}); err != nil {
		return fmt.Errorf("BigQueryExporter.Export %s: %w", tx.ID, err)
	}
	return nil
}

// TransactionRow converts tx into its BigQuery row. Amounts stay exact as NUMERIC.
func TransactionRow(tx domain.Transaction, runID string, now time.Time) *infra.TransactionRow {
	row := &infra.TransactionRow{
		TransactionID:  tx.ID,
		RunID:          runID,
		Amount:         tx.Amount.Rat(),
		RawDescription: tx.Description,
		ContentHash:    tx.ContentHash,
		CreatedTS:      now.UTC(),
	}
	if tx.HasDate() {
		row.TransactionDate = bigquery.NullDate{Date: civil.DateOf(tx.Date.UTC()), Valid: true}
	}
	if tx.CleanDescription != "" {
		row.NormalizedDescription = bigquery.NullString{StringVal: tx.CleanDescription, Valid: true}
	}
	if tx.EmailSnippet != "" {
		row.EmailSnippet = bigquery.NullString{StringVal: tx.EmailSnippet, Valid: true}
	}
	if tx.Category != nil {
		row.CategoryName = bigquery.NullString{StringVal: tx.Category.Main, Valid: true}
		if tx.Category.Sub != "" {
			row.SubcategoryName = bigquery.NullString{StringVal: tx.Category.Sub, Valid: true}
		}
	}
	return row
}
