package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-graph/internal/logger"
)

var schemaStatements = []string{
	`CREATE CONSTRAINT transaction_id_unique IF NOT EXISTS FOR (t:Transaction) REQUIRE t.id IS UNIQUE`,
	`CREATE CONSTRAINT category_name_unique IF NOT EXISTS FOR (c:Category) REQUIRE c.name IS UNIQUE`,
	`CREATE CONSTRAINT year_value_unique IF NOT EXISTS FOR (y:Year) REQUIRE y.value IS UNIQUE`,
	`CREATE CONSTRAINT month_value_year_unique IF NOT EXISTS FOR (m:Month) REQUIRE (m.value, m.year) IS UNIQUE`,
	`CREATE CONSTRAINT day_date_unique IF NOT EXISTS FOR (d:Day) REQUIRE d.date IS UNIQUE`,
	`CREATE INDEX transaction_amount_idx IF NOT EXISTS FOR (t:Transaction) ON (t.amount)`,
	`CREATE INDEX transaction_date_idx IF NOT EXISTS FOR (t:Transaction) ON (t.date)`,
	`CREATE INDEX transaction_content_hash_idx IF NOT EXISTS FOR (t:Transaction) ON (t.content_hash)`,
	`CREATE INDEX category_normalized_name_idx IF NOT EXISTS FOR (c:Category) ON (c.normalized_name)`,
	`CREATE FULLTEXT INDEX transaction_description_ft IF NOT EXISTS FOR (t:Transaction) ON EACH [t.description, t.clean_description]`,
}

// Initialize creates the constraints and indexes the store relies on.
// It may be called any number of times; objects that already exist count as success.
func (s *Store) Initialize(ctx context.Context) error {
	log := logger.FromContext(ctx)

	created := 0
	for _, q := range schemaStatements {
		err := s.exec.ExecuteWrite(ctx, Statement{Query: q})
		if errors.Is(err, ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("Initialize: %w", err)
		}
		created++
	}

	log.Info().Int("statements", len(schemaStatements)).Int("applied", created).Msg("Graph schema initialized")
	return nil
}
