package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dvloznov/finance-graph/internal/domain"
	"github.com/dvloznov/finance-graph/internal/logger"
)

const maxLineBytes = 1 << 20

// JSONLinesSource decodes one RawRecord per line.
type JSONLinesSource struct {
	scanner *bufio.Scanner
	line    int
	closer  io.Closer
}

// JSONLines returns a Source reading newline-delimited JSON records from r.
func JSONLines(r io.Reader) *JSONLinesSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	s := &JSONLinesSource{scanner: sc}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Next implements Source.
func (s *JSONLinesSource) Next(ctx context.Context) (domain.RawRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.RawRecord{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return domain.RawRecord{}, fmt.Errorf("JSONLines: line %d: %w", s.line+1, err)
			}
			return domain.RawRecord{}, io.EOF
		}
		s.line++

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec domain.RawRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Int("line", s.line).Msg("Skipping malformed JSON line")
			continue
		}
		return rec, nil
	}
}

// Close implements io.Closer.
func (s *JSONLinesSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// JSONArray decodes a whole JSON array of records into a SliceSource.
func JSONArray(r io.Reader) (*SliceSource, error) {
	var records []domain.RawRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("JSONArray: %w", err)
	}
	return Slice(records), nil
}
