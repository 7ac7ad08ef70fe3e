// Package export mirrors stored transactions to external sinks.
package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-graph/internal/domain"
)

// Exporter writes one transaction to a sink.
type Exporter interface {
	Export(ctx context.Context, tx domain.Transaction) error
}

// Multi fans a transaction out to every exporter. All exporters run even if
// one fails; their errors are joined.
type Multi []Exporter

// Export implements Exporter.
func (m Multi) Export(ctx context.Context, tx domain.Transaction) error {
	var errs []error
	for _, e := range m {
		if err := e.Export(ctx, tx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("Multi.Export: %w", errors.Join(errs...))
	}
	return nil
}
