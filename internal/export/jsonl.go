package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dvloznov/finance-graph/internal/domain"
)

// JSONLExporter appends one JSON object per transaction to a writer.
type JSONLExporter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

// NewJSONLExporter writes to w.
func NewJSONLExporter(w io.Writer) *JSONLExporter {
	e := &JSONLExporter{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		e.closer = c
	}
	return e
}

// OpenJSONLFile appends to path, creating it if needed.
func OpenJSONLFile(path string) (*JSONLExporter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("OpenJSONLFile: %w", err)
	}
	return NewJSONLExporter(f), nil
}

// Export implements Exporter.
func (e *JSONLExporter) Export(_ context.Context, tx domain.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(tx); err != nil {
		return fmt.Errorf("JSONLExporter.Export %s: %w", tx.ID, err)
	}
	return nil
}

// Close closes the underlying file, if any.
func (e *JSONLExporter) Close() error {
	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}
