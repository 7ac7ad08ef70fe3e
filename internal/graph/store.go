// Package graph persists transactions as a date-hierarchical, similarity-linked
// property graph.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-graph/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

const (
	// DefaultCandidateLimit caps similarity candidates examined per edge kind and write.
	DefaultCandidateLimit = 500
	// DefaultSimilarLimit is the FindSimilar result size when none is given.
	DefaultSimilarLimit = 10
	// MaxSimilarLimit is the largest FindSimilar result size.
	MaxSimilarLimit = 50
	// TopCategoryLimit is the size of the analytics category breakdown.
	TopCategoryLimit = 5
)

var (
	// SimilarAbsoluteThreshold is the minimum amount difference treated as similar.
	SimilarAbsoluteThreshold = decimal.NewFromInt(10)
	// SimilarRelativeThreshold is the fraction of |amount| treated as similar.
	SimilarRelativeThreshold = decimal.RequireFromString("0.10")
)

// Options tunes a Store.
type Options struct {
	CandidateLimit int
	// BreakerFailures is the number of consecutive connectivity failures that opens the breaker.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
	// Now overrides the clock used for created_at/updated_at.
	Now func() time.Time
}

// Store is the graph persistence layer. It is safe for concurrent callers.
type Store struct {
	exec           Executor
	breaker        *gobreaker.CircuitBreaker
	candidateLimit int
	now            func() time.Time
}

// NewStore creates a Store on top of exec.
func NewStore(exec Executor, opts Options) *Store {
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = DefaultCandidateLimit
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	failures := opts.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "graph-store-writes",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only infrastructure faults count against the breaker; per-item
		// write errors must not take the store offline.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrConnectivity)
		},
	})

	return &Store{
		exec:           exec,
		breaker:        breaker,
		candidateLimit: opts.CandidateLimit,
		now:            opts.Now,
	}
}

// SimilarityThreshold is the largest amount difference amount itself tolerates.
func SimilarityThreshold(amount decimal.Decimal) decimal.Decimal {
	rel := amount.Abs().Mul(SimilarRelativeThreshold)
	if rel.GreaterThan(SimilarAbsoluteThreshold) {
		return rel
	}
	return SimilarAbsoluteThreshold
}

// IsSimilarAmount reports whether a and b are within either one's threshold.
// The relation is symmetric, so the edge set does not depend on write order.
func IsSimilarAmount(a, b decimal.Decimal) bool {
	diff := a.Sub(b).Abs()
	return diff.LessThanOrEqual(SimilarityThreshold(a)) || diff.LessThanOrEqual(SimilarityThreshold(b))
}

// SimilaritySearchBound is the widest difference at which some counterpart of
// amount can still be similar: |amount|*r/(1-r) for relative threshold r, or
// the absolute threshold.
func SimilaritySearchBound(amount decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	wide := amount.Abs().Mul(SimilarRelativeThreshold).Div(one.Sub(SimilarRelativeThreshold)).RoundUp(domain.AmountScale)
	if wide.GreaterThan(SimilarAbsoluteThreshold) {
		return wide
	}
	return SimilarAbsoluteThreshold
}

// Upsert writes tx and re-derives its relationships in one transaction and
// returns the transaction id.
func (s *Store) Upsert(ctx context.Context, tx domain.Transaction) (string, error) {
	if tx.ID == "" {
		return "", fmt.Errorf("Upsert: transaction id required")
	}

	stmts, err := s.upsertStatements(tx)
	if err != nil {
		return "", fmt.Errorf("Upsert: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.exec.ExecuteWrite(ctx, stmts...)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("Upsert %s: %w: %v", tx.ID, ErrUnavailable, err)
	}
	if err != nil {
		return "", fmt.Errorf("Upsert %s: %w", tx.ID, err)
	}
	return tx.ID, nil
}

// BreakerState reports the write breaker's state name.
func (s *Store) BreakerState() string {
	return s.breaker.State().String()
}

func (s *Store) upsertStatements(tx domain.Transaction) ([]Statement, error) {
	params, err := s.upsertParams(tx)
	if err != nil {
		return nil, err
	}

	hasCategory := tx.Category != nil
	hasDate := tx.HasDate()

	var stmts []Statement
	if hasCategory {
		stmts = append(stmts, Statement{Query: mergeCategoryQuery, Params: params})
	}
	if hasDate {
		stmts = append(stmts, Statement{Query: mergeDateChainQuery, Params: params})
	}
	stmts = append(stmts,
		Statement{Query: mergeTransactionQuery, Params: params},
		Statement{Query: unlinkStaleQuery, Params: params},
	)
	if hasCategory {
		stmts = append(stmts, Statement{Query: linkCategoryQuery, Params: params})
	}
	if hasDate {
		stmts = append(stmts, Statement{Query: linkDayQuery, Params: params})
	}
	stmts = append(stmts, Statement{Query: dropSimilarityQuery, Params: params})
	if hasCategory {
		stmts = append(stmts, Statement{Query: sameCategoryQuery, Params: params})
	}
	stmts = append(stmts, Statement{Query: similarAmountQuery, Params: params})
	return stmts, nil
}

func (s *Store) upsertParams(tx domain.Transaction) (map[string]any, error) {
	anomalies := ""
	if len(tx.Anomalies) > 0 {
		b, err := json.Marshal(tx.Anomalies)
		if err != nil {
			return nil, fmt.Errorf("encode anomalies: %w", err)
		}
		anomalies = string(b)
	}

	bound := SimilaritySearchBound(tx.Amount)
	params := map[string]any{
		"id":                tx.ID,
		"amount":            tx.Amount.InexactFloat64(),
		"amount_text":       tx.Amount.StringFixed(domain.AmountScale),
		"amount_lo":         tx.Amount.Sub(bound).InexactFloat64(),
		"amount_hi":         tx.Amount.Add(bound).InexactFloat64(),
		"threshold":         SimilarityThreshold(tx.Amount).InexactFloat64(),
		"abs_threshold":     SimilarAbsoluteThreshold.InexactFloat64(),
		"rel_threshold":     SimilarRelativeThreshold.InexactFloat64(),
		"tolerance":         similarityTolerance,
		"description":       tx.Description,
		"clean_description": tx.CleanDescription,
		"email_snippet":     tx.EmailSnippet,
		"content_hash":      tx.ContentHash,
		"status":            domain.StatusStored.String(),
		"anomalies":         anomalies,
		"now":               s.now().UTC().Format(time.RFC3339Nano),
		"candidate_limit":   int64(s.candidateLimit),
		"date":              nil,
		"category_key":      nil,
		"category_name":     nil,
		"subcategory":       nil,
	}

	fingerprint := tx.ContentHash
	if tx.Category != nil {
		params["category_key"] = tx.Category.Key()
		params["category_name"] = tx.Category.Main
		params["subcategory"] = tx.Category.Sub
		fingerprint += "|" + tx.Category.Key() + "|" + domain.NormalizeCategoryName(tx.Category.Sub)
	}
	params["fingerprint"] = fingerprint

	if tx.HasDate() {
		d := tx.Date.UTC()
		params["date"] = d.Format(time.DateOnly)
		params["year"] = int64(d.Year())
		params["month"] = int64(d.Month())
		params["day"] = int64(d.Day())
		params["weekday"] = isoWeekday(d)
	}
	return params, nil
}

// isoWeekday numbers Monday 1 through Sunday 7.
func isoWeekday(t time.Time) int64 {
	wd := int64(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

const mergeCategoryQuery = `
MERGE (c:Category {name: $category_key})
ON CREATE SET c.created_at = $now
SET c.display_name = $category_name, c.normalized_name = $category_key
`

const mergeDateChainQuery = `
MERGE (y:Year {value: $year})
MERGE (m:Month {value: $month, year: $year})
MERGE (y)-[:HAS_MONTH]->(m)
MERGE (d:Day {date: $date})
ON CREATE SET d.year = $year, d.month = $month, d.day = $day, d.weekday = $weekday
MERGE (m)-[:HAS_DAY]->(d)
`

// version starts at 1 and only moves when the content or category changes,
// so re-submitting an unchanged transaction leaves every property as it was.
const mergeTransactionQuery = `
MERGE (t:Transaction {id: $id})
ON CREATE SET t.created_at = $now
WITH t, coalesce(t.fingerprint, '') <> $fingerprint AS changed
SET t.version = CASE WHEN changed THEN coalesce(t.version, 0) + 1 ELSE t.version END,
    t.updated_at = CASE WHEN changed THEN $now ELSE t.updated_at END,
    t.fingerprint = $fingerprint,
    t.date = $date,
    t.amount = $amount,
    t.amount_text = $amount_text,
    t.description = $description,
    t.clean_description = $clean_description,
    t.email_snippet = $email_snippet,
    t.content_hash = $content_hash,
    t.category = $category_name,
    t.subcategory = $subcategory,
    t.status = $status,
    t.anomalies = $anomalies
`

const unlinkStaleQuery = `
MATCH (t:Transaction {id: $id})
OPTIONAL MATCH (t)-[rc:BELONGS_TO_CATEGORY]->(c:Category)
WHERE $category_key IS NULL OR c.name <> $category_key
DELETE rc
WITH DISTINCT t
OPTIONAL MATCH (t)-[rd:OCCURRED_ON]->(d:Day)
WHERE $date IS NULL OR d.date <> $date
DELETE rd
`

const linkCategoryQuery = `
MATCH (t:Transaction {id: $id})
MATCH (c:Category {name: $category_key})
MERGE (t)-[:BELONGS_TO_CATEGORY]->(c)
`

const linkDayQuery = `
MATCH (t:Transaction {id: $id})
MATCH (d:Day {date: $date})
MERGE (t)-[:OCCURRED_ON]->(d)
`

const dropSimilarityQuery = `
MATCH (t:Transaction {id: $id})
OPTIONAL MATCH (t)-[r:SAME_CATEGORY|SIMILAR_AMOUNT]-()
DELETE r
`

const sameCategoryQuery = `
MATCH (t:Transaction {id: $id})-[:BELONGS_TO_CATEGORY]->(:Category)<-[:BELONGS_TO_CATEGORY]-(o:Transaction)
WHERE o.id <> t.id
WITH t, o
ORDER BY abs(o.amount - t.amount) ASC, o.id ASC
LIMIT $candidate_limit
MERGE (t)-[:SAME_CATEGORY]-(o)
`

// similarityTolerance absorbs float rounding at the threshold boundary.
const similarityTolerance = 1e-6

// The range predicate uses the amount index; the WHERE that follows applies
// the candidate's own threshold as well as t's.
const similarAmountQuery = `
MATCH (t:Transaction {id: $id})
MATCH (o:Transaction)
WHERE o.amount >= $amount_lo AND o.amount <= $amount_hi AND o.id <> t.id
WITH t, o, abs(o.amount - t.amount) AS diff,
     CASE WHEN abs(o.amount) * $rel_threshold > $abs_threshold
          THEN abs(o.amount) * $rel_threshold ELSE $abs_threshold END AS other_threshold
WHERE diff <= $threshold + $tolerance OR diff <= other_threshold + $tolerance
WITH t, o, diff
ORDER BY diff ASC, o.id ASC
LIMIT $candidate_limit
MERGE (t)-[r:SIMILAR_AMOUNT]-(o)
SET r.difference = diff
`
