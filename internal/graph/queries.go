package graph

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-graph/internal/logger"
	"github.com/shopspring/decimal"
)

// Similar is one transaction related to the queried one.
type Similar struct {
	ID               string          `json:"id"`
	Date             string          `json:"date,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Description      string          `json:"description"`
	CleanDescription string          `json:"clean_description,omitempty"`
	Category         string          `json:"category,omitempty"`
	Difference       decimal.Decimal `json:"difference"`
	// Relations lists the similarity edge types linking the pair.
	Relations []string `json:"relations"`
}

// CategoryStat is one row of the analytics category breakdown.
type CategoryStat struct {
	Category string          `json:"category"`
	Count    int64           `json:"count"`
	Total    decimal.Decimal `json:"total"`
}

// Analytics is an aggregate over all stored transactions. When Degraded is
// set only the count and amount aggregates were computed.
type Analytics struct {
	Count              int64           `json:"count"`
	Total              decimal.Decimal `json:"total"`
	Average            decimal.Decimal `json:"average"`
	Min                decimal.Decimal `json:"min"`
	Max                decimal.Decimal `json:"max"`
	DistinctCategories int64           `json:"distinct_categories"`
	WeekendCount       int64           `json:"weekend_count"`
	TopCategories      []CategoryStat  `json:"top_categories,omitempty"`
	Degraded           bool            `json:"degraded"`
}

const findSimilarQuery = `
MATCH (t:Transaction {id: $id})-[r:SIMILAR_AMOUNT|SAME_CATEGORY]-(o:Transaction)
WITH t, o, collect(DISTINCT type(r)) AS relations
RETURN o.id AS id,
       o.date AS date,
       o.amount_text AS amount,
       o.description AS description,
       o.clean_description AS clean_description,
       o.category AS category,
       relations,
       abs(o.amount - t.amount) AS difference
ORDER BY difference ASC, id ASC
LIMIT $limit
`

// FindSimilar returns transactions linked to id by a similarity edge, closest
// amount first. limit is clamped to [1, MaxSimilarLimit]; zero means DefaultSimilarLimit.
func (s *Store) FindSimilar(ctx context.Context, id string, limit int) ([]Similar, error) {
	switch {
	case limit <= 0:
		limit = DefaultSimilarLimit
	case limit > MaxSimilarLimit:
		limit = MaxSimilarLimit
	}

	rows, err := s.exec.ExecuteRead(ctx, Statement{
		Query:  findSimilarQuery,
		Params: map[string]any{"id": id, "limit": int64(limit)},
	})
	if err != nil {
		return nil, fmt.Errorf("FindSimilar %s: %w", id, err)
	}

	out := make([]Similar, 0, len(rows))
	for _, row := range rows {
		out = append(out, Similar{
			ID:               asString(row["id"]),
			Date:             asString(row["date"]),
			Amount:           asDecimalText(row["amount"]),
			Description:      asString(row["description"]),
			CleanDescription: asString(row["clean_description"]),
			Category:         asString(row["category"]),
			Difference:       asDecimal(row["difference"]),
			Relations:        asStrings(row["relations"]),
		})
	}
	return out, nil
}

const analyticsQuery = `
MATCH (t:Transaction)
OPTIONAL MATCH (t)-[:OCCURRED_ON]->(d:Day)
OPTIONAL MATCH (t)-[:BELONGS_TO_CATEGORY]->(c:Category)
RETURN count(DISTINCT t) AS count,
       sum(t.amount) AS total,
       avg(t.amount) AS average,
       min(t.amount) AS min,
       max(t.amount) AS max,
       count(DISTINCT c) AS categories,
       count(DISTINCT CASE WHEN d.weekday >= 6 THEN t END) AS weekend
`

const topCategoriesQuery = `
MATCH (t:Transaction)-[:BELONGS_TO_CATEGORY]->(c:Category)
RETURN coalesce(c.display_name, c.name) AS category, count(t) AS count, sum(t.amount) AS total
ORDER BY count DESC, category ASC
LIMIT $limit
`

const basicAnalyticsQuery = `
MATCH (t:Transaction)
RETURN count(t) AS count,
       sum(t.amount) AS total,
       avg(t.amount) AS average,
       min(t.amount) AS min,
       max(t.amount) AS max
`

// Analytics aggregates all stored transactions. If the relationship-aware
// queries fail it falls back to the basic aggregate with Degraded set; an
// error is returned only when the basic aggregate fails too.
func (s *Store) Analytics(ctx context.Context) (Analytics, error) {
	a, err := s.richAnalytics(ctx)
	if err == nil {
		return a, nil
	}
	log := logger.FromContext(ctx)
	log.Warn().Err(err).Msg("Rich analytics failed, falling back to basic aggregate")

	rows, basicErr := s.exec.ExecuteRead(ctx, Statement{Query: basicAnalyticsQuery})
	if basicErr != nil {
		return Analytics{}, fmt.Errorf("Analytics: basic aggregate: %w", basicErr)
	}
	out := Analytics{Degraded: true}
	if len(rows) > 0 {
		fillAggregate(&out, rows[0])
	}
	return out, nil
}

func (s *Store) richAnalytics(ctx context.Context) (Analytics, error) {
	rows, err := s.exec.ExecuteRead(ctx, Statement{Query: analyticsQuery})
	if err != nil {
		return Analytics{}, fmt.Errorf("aggregate: %w", err)
	}
	var out Analytics
	if len(rows) > 0 {
		fillAggregate(&out, rows[0])
		out.DistinctCategories = asInt64(rows[0]["categories"])
		out.WeekendCount = asInt64(rows[0]["weekend"])
	}

	top, err := s.exec.ExecuteRead(ctx, Statement{
		Query:  topCategoriesQuery,
		Params: map[string]any{"limit": int64(TopCategoryLimit)},
	})
	if err != nil {
		return Analytics{}, fmt.Errorf("top categories: %w", err)
	}
	for _, row := range top {
		out.TopCategories = append(out.TopCategories, CategoryStat{
			Category: asString(row["category"]),
			Count:    asInt64(row["count"]),
			Total:    asDecimal(row["total"]),
		})
	}
	return out, nil
}

func fillAggregate(a *Analytics, row Row) {
	a.Count = asInt64(row["count"])
	a.Total = asDecimal(row["total"])
	a.Average = asDecimal(row["average"])
	a.Min = asDecimal(row["min"])
	a.Max = asDecimal(row["max"])
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// asDecimal converts a float aggregate to a 2dp decimal; nulls become zero.
func asDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n).Round(2)
	case int64:
		return decimal.NewFromInt(n)
	case int:
		return decimal.NewFromInt(int64(n))
	}
	return decimal.Zero
}

func asDecimalText(v any) decimal.Decimal {
	if s, ok := v.(string); ok {
		if d, err := decimal.NewFromString(s); err == nil {
			return d
		}
	}
	return asDecimal(v)
}
