package bigquery

import "cloud.google.com/go/bigquery"

// CategoryRow is one row of the finance.categories taxonomy table.
// Depth 1 rows are main categories; depth 2 rows are subcategories of ParentCategoryID.
type CategoryRow struct {
	CategoryID       string              `bigquery:"category_id"`        // REQUIRED
	ParentCategoryID bigquery.NullString `bigquery:"parent_category_id"` // NULLABLE

	Depth int64 `bigquery:"depth"` // REQUIRED

	Slug string `bigquery:"slug"` // REQUIRED
	Name string `bigquery:"name"` // REQUIRED

	Description bigquery.NullString `bigquery:"description"` // NULLABLE
	IsActive    bigquery.NullBool   `bigquery:"is_active"`   // NULLABLE
}
