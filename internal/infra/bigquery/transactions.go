package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
)

// TransactionRow mirrors a stored transaction into finance.transactions.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	RunID         string `bigquery:"run_id"`         // NULLABLE

	TransactionDate bigquery.NullDate `bigquery:"transaction_date"` // NULLABLE (unparseable source dates)

	Amount *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC

	RawDescription        string              `bigquery:"raw_description"`        // REQUIRED
	NormalizedDescription bigquery.NullString `bigquery:"normalized_description"` // NULLABLE

	CategoryName    bigquery.NullString `bigquery:"category_name"`    // NULLABLE
	SubcategoryName bigquery.NullString `bigquery:"subcategory_name"` // NULLABLE

	EmailSnippet bigquery.NullString `bigquery:"email_snippet"` // NULLABLE
	ContentHash  string              `bigquery:"content_hash"`  // REQUIRED

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}
