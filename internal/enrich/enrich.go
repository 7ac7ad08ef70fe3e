// Package enrich correlates transactions with nearby emails and attaches the
// best matching snippet.
package enrich

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/dvloznov/finance-graph/internal/domain"
	"github.com/dvloznov/finance-graph/internal/logger"
	"github.com/shopspring/decimal"
)

const (
	DefaultWindowDays = 3
	DefaultMinScore   = 0.35

	amountWeight    = 0.5
	keywordWeight   = 0.3
	temporalWeight  = 0.2
	financialWeight = 0.1

	maxSnippetLen = 280
)

var (
	moneyRe = regexp.MustCompile(`\d{1,3}(?:[,\s]\d{3})*(?:\.\d{2})|\d+\.\d{2}`)
	wordRe  = regexp.MustCompile(`[a-z0-9]+`)

	financialWords = []string{
		"receipt", "invoice", "payment", "order", "purchase",
		"transaction", "charged", "refund", "booking", "subscription",
	}
)

// Options tunes an Enricher.
type Options struct {
	WindowDays int     `yaml:"window_days"`
	MinScore   float64 `yaml:"min_score"`
}

// Enricher attaches email evidence to transactions.
type Enricher struct {
	searcher Searcher
	window   time.Duration
	minScore float64
}

// New creates an Enricher. A nil searcher makes Enrich a pure status advance.
func New(searcher Searcher, opts Options) *Enricher {
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	if opts.MinScore <= 0 {
		opts.MinScore = DefaultMinScore
	}
	return &Enricher{
		searcher: searcher,
		window:   time.Duration(opts.WindowDays) * 24 * time.Hour,
		minScore: opts.MinScore,
	}
}

// Enrich searches the date window around tx, keeps the best scoring email
// and advances tx to EmailEnriched whether or not anything matched.
func (e *Enricher) Enrich(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	log := logger.FromContext(ctx)

	if e.searcher != nil && tx.HasDate() {
		emails, err := e.searcher.Search(ctx, tx.Date.Add(-e.window), tx.Date.Add(e.window+24*time.Hour-time.Nanosecond))
		if err != nil {
			return tx, fmt.Errorf("Enrich: search emails: %w", err)
		}

		best, score := e.best(tx, emails)
		if best != nil {
			tx = tx.WithEmailSnippet(snippet(*best))
			log.Debug().Str("transaction_id", tx.ID).Float64("score", score).Msg("Matched email")
		}
	}

	out, err := tx.Advance(domain.StatusEmailEnriched)
	if err != nil {
		return tx, fmt.Errorf("Enrich: %w", err)
	}
	return out, nil
}

func (e *Enricher) best(tx domain.Transaction, emails []Email) (*Email, float64) {
	var best *Email
	bestScore := 0.0
	for i := range emails {
		s := Score(tx, emails[i], e.window)
		if s >= e.minScore && s > bestScore {
			best, bestScore = &emails[i], s
		}
	}
	return best, bestScore
}

// Score rates how likely email documents tx, in [0, 1.1].
func Score(tx domain.Transaction, email Email, window time.Duration) float64 {
	text := strings.ToLower(email.Subject + " " + email.Snippet)

	score := 0.0
	if mentionsAmount(text, tx.Amount) {
		score += amountWeight
	}
	score += keywordWeight * keywordOverlap(tx.DisplayDescription(), text)
	score += temporalWeight * proximity(tx.Date, email.ReceivedAt, window)
	for _, w := range financialWords {
		if strings.Contains(text, w) {
			score += financialWeight
			break
		}
	}
	return score
}

func mentionsAmount(text string, amount decimal.Decimal) bool {
	want := amount.Abs().StringFixed(domain.AmountScale)
	for _, m := range moneyRe.FindAllString(text, -1) {
		m = strings.NewReplacer(",", "", " ", "").Replace(m)
		if d, err := decimal.NewFromString(m); err == nil && d.StringFixed(domain.AmountScale) == want {
			return true
		}
	}
	return false
}

// keywordOverlap is the share of description words (3+ chars) present in text.
func keywordOverlap(description, text string) float64 {
	words := wordRe.FindAllString(strings.ToLower(description), -1)
	present := map[string]bool{}
	for _, w := range wordRe.FindAllString(text, -1) {
		present[w] = true
	}

	total, hits := 0, 0
	seen := map[string]bool{}
	for _, w := range words {
		if len(w) < 3 || seen[w] {
			continue
		}
		seen[w] = true
		total++
		if present[w] {
			hits++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func proximity(txDate, received time.Time, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	d := math.Abs(received.Sub(txDate).Hours())
	p := 1 - d/window.Hours()
	if p < 0 {
		return 0
	}
	return p
}

func snippet(e Email) string {
	s := strings.TrimSpace(e.Snippet)
	if subj := strings.TrimSpace(e.Subject); subj != "" {
		s = subj + ": " + s
	}
	if r := []rune(s); len(r) > maxSnippetLen {
		s = string(r[:maxSnippetLen])
	}
	return s
}
