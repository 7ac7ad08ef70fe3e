// Package source reads raw bank records from slices, files and Cloud Storage.
//
// Every reader yields domain.RawRecord values through Next and returns io.EOF
// once exhausted. Malformed lines are logged and skipped.
package source

import (
	"context"
	"io"

	"github.com/dvloznov/finance-graph/internal/domain"
)

// Source yields raw records until io.EOF.
type Source interface {
	Next(ctx context.Context) (domain.RawRecord, error)
}

// ReadCloser is a Source backed by an open file or object.
type ReadCloser interface {
	Source
	io.Closer
}

// SliceSource serves records from memory.
type SliceSource struct {
	records []domain.RawRecord
	pos     int
}

// Slice returns a Source over records.
func Slice(records []domain.RawRecord) *SliceSource {
	return &SliceSource{records: records}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (domain.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.RawRecord{}, err
	}
	if s.pos >= len(s.records) {
		return domain.RawRecord{}, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}

// Close implements io.Closer.
func (s *SliceSource) Close() error { return nil }
