package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/finance-graph/internal/domain"
	"github.com/dvloznov/finance-graph/internal/logger"
)

// headerAliases maps accepted header names onto record fields.
var headerAliases = map[string]string{
	"id":               "id",
	"transaction id":   "id",
	"transaction_id":   "id",
	"date":             "date",
	"transaction date": "date",
	"posted":           "date",
	"amount":           "amount",
	"value":            "amount",
	"description":      "description",
	"memo":             "description",
	"narrative":        "description",
}

// CSVSource reads records from a header-mapped CSV stream.
type CSVSource struct {
	reader  *csv.Reader
	closer  io.Closer
	columns map[string]int
	line    int
}

// CSV returns a Source reading r. The first row must be a header naming at
// least date, amount and description columns (case-insensitive).
func CSV(r io.Reader) *CSVSource {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	s := &CSVSource{reader: cr}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *CSVSource) readHeader() error {
	header, err := s.reader.Read()
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("CSV: read header: %w", err)
	}
	s.line++

	s.columns = map[string]int{}
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if field, ok := headerAliases[key]; ok {
			if _, dup := s.columns[field]; !dup {
				s.columns[field] = i
			}
		}
	}
	for _, required := range []string{"date", "amount", "description"} {
		if _, ok := s.columns[required]; !ok {
			return fmt.Errorf("CSV: header missing %q column", required)
		}
	}
	return nil
}

// Next implements Source.
func (s *CSVSource) Next(ctx context.Context) (domain.RawRecord, error) {
	if s.columns == nil {
		if err := s.readHeader(); err != nil {
			return domain.RawRecord{}, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return domain.RawRecord{}, err
		}
		row, err := s.reader.Read()
		if err == io.EOF {
			return domain.RawRecord{}, io.EOF
		}
		s.line++

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Int("line", s.line).Msg("Skipping malformed CSV row")
			continue
		}
		if err != nil {
			return domain.RawRecord{}, fmt.Errorf("CSV: line %d: %w", s.line, err)
		}
		if blank(row) {
			continue
		}

		return domain.RawRecord{
			ID:          s.field(row, "id"),
			Date:        s.field(row, "date"),
			Amount:      s.field(row, "amount"),
			Description: s.field(row, "description"),
		}, nil
	}
}

func (s *CSVSource) field(row []string, name string) string {
	i, ok := s.columns[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Close implements io.Closer.
func (s *CSVSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
