package bigquery

import (
	"context"
	"fmt"

	"google.golang.org/api/iterator"
)

// ListActiveCategories returns all active categories ordered by depth and name.
func (r *Repository) ListActiveCategories(ctx context.Context) ([]CategoryRow, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
		  category_id,
		  parent_category_id,
		  depth,
		  slug,
		  name,
		  description,
		  is_active
		FROM %s.%s
		WHERE is_active = TRUE OR is_active IS NULL
		ORDER BY depth, name
	`, r.datasetID, categoriesTable))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListActiveCategories: query read: %w", err)
	}

	var rows []CategoryRow
	for {
		var row CategoryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListActiveCategories: iter next: %w", err)
		}
		rows = append(rows, row)
	}

	return rows, nil
}
