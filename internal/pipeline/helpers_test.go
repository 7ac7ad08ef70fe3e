package pipeline

import (
	"context"
	"io"

	"github.com/dvloznov/finance-graph/internal/domain"
)

type sliceSource struct {
	records []domain.RawRecord
	pos     int
}

func (s *sliceSource) Next(context.Context) (domain.RawRecord, error) {
	if s.pos >= len(s.records) {
		return domain.RawRecord{}, io.EOF
	}
	s.pos++
	return s.records[s.pos-1], nil
}

func (s *sliceSource) Close() error { return nil }
