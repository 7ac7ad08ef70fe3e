// Package classifier assigns taxonomy categories to transactions through an
// external model, feeding validation failures back to it for a bounded number
// of attempts.
package classifier

import (
	"context"
	"errors"

	"github.com/dvloznov/finance-graph/internal/domain"
	"github.com/dvloznov/finance-graph/internal/logger"
)

// DefaultMaxAttempts is the number of external calls made per transaction.
const DefaultMaxAttempts = 3

// Gateway validates classifier answers and retries with corrective feedback.
// It keeps no state between Categorize calls.
type Gateway struct {
	client      Client
	taxonomy    *Taxonomy
	validator   *Validator
	cache       Cache
	maxAttempts int
	source      string
	system      string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithCache enables the assignment cache.
func WithCache(c Cache) Option {
	return func(g *Gateway) { g.cache = c }
}

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithSource sets the source name recorded on assignments.
func WithSource(name string) Option {
	return func(g *Gateway) { g.source = name }
}

// NewGateway creates a Gateway for client and taxonomy. A nil taxonomy uses DefaultTaxonomy.
func NewGateway(client Client, taxonomy *Taxonomy, opts ...Option) *Gateway {
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	g := &Gateway{
		client:      client,
		taxonomy:    taxonomy,
		validator:   NewValidator(taxonomy),
		maxAttempts: DefaultMaxAttempts,
		source:      "model",
	}
	for _, opt := range opts {
		opt(g)
	}
	g.system = BuildSystemPrompt(taxonomy)
	return g
}

// Taxonomy returns the taxonomy answers are validated against.
func (g *Gateway) Taxonomy() *Taxonomy {
	return g.taxonomy
}

// Categorize returns a valid assignment for tx, or nil when no valid answer was
// obtained within the attempt budget. The only error returned is the context's.
func (g *Gateway) Categorize(ctx context.Context, tx domain.Transaction) (*domain.CategoryAssignment, error) {
	log := logger.FromContext(ctx).With().Str("transaction_id", tx.ID).Logger()

	if a := g.cached(ctx, tx); a != nil {
		return a, nil
	}

	history := []Message{{Role: RoleUser, Content: TransactionPrompt(tx)}}

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := g.client.Send(ctx, g.system, history)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("Classifier call failed")
			if errors.Is(err, ErrEmptyResponse) {
				history = append(history, Message{Role: RoleUser, Content: CorrectionPrompt(err)})
			}
			continue
		}

		main, sub, verr := g.validator.Validate(resp.Category, resp.Subcategory)
		if verr == nil {
			a := domain.CategoryAssignment{
				Main:       main,
				Sub:        sub,
				Validation: domain.ValidationValid,
				Attempts:   attempt,
				Source:     g.source,
			}
			g.store(ctx, tx, a)
			return &a, nil
		}

		log.Debug().Err(verr).Int("attempt", attempt).Str("raw", resp.Raw).Msg("Classifier answer rejected")
		history = append(history,
			Message{Role: RoleAssistant, Content: resp.Raw},
			Message{Role: RoleUser, Content: CorrectionPrompt(verr)},
		)
	}

	log.Info().Int("attempts", g.maxAttempts).Msg("No valid category within attempt budget")
	return nil, nil
}

func (g *Gateway) cached(ctx context.Context, tx domain.Transaction) *domain.CategoryAssignment {
	if g.cache == nil || tx.ContentHash == "" {
		return nil
	}
	a, err := g.cache.Get(ctx, tx.ContentHash)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Category cache read failed")
		return nil
	}
	if a == nil {
		return nil
	}
	// Entries are revalidated in case the taxonomy changed since they were written.
	main, sub, verr := g.validator.Validate(a.Main, a.Sub)
	if verr != nil {
		return nil
	}
	return &domain.CategoryAssignment{
		Main:       main,
		Sub:        sub,
		Validation: domain.ValidationValid,
		Attempts:   0,
		Source:     "cache",
	}
}

func (g *Gateway) store(ctx context.Context, tx domain.Transaction, a domain.CategoryAssignment) {
	if g.cache == nil || tx.ContentHash == "" {
		return
	}
	if err := g.cache.Set(ctx, tx.ContentHash, a); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Category cache write failed")
	}
}
