// Package normalize converts raw source records into transactions and cleans
// their descriptions. Everything here is pure and synchronous.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/dvloznov/finance-graph/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	maskedCardRe  = regexp.MustCompile(`\b(?:\d{4}[ *xX]+){1,3}\d{4}\b|\*{2,}\d{2,4}|[xX]{4,}\d{2,4}`)
	onDateRe      = regexp.MustCompile(`(?i)\bON\s+\d{1,2}\s+(?:JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)[A-Z]*\b`)
	trailingRefRe = regexp.MustCompile(`(?i)\s+(?:REF|REFERENCE)[:\s]*[A-Z0-9-]+$|\s+[A-Z]*\d[A-Z0-9]{7,}$`)
	noisePrefixRe = regexp.MustCompile(`(?i)^(?:CARD PAYMENT TO|CARD PURCHASE AT|CONTACTLESS PAYMENT TO|DIRECT DEBIT TO|DIRECT DEBIT|STANDING ORDER TO|POS\s+|VIS\s+|DD\s+|SO\s+|BGC\s+)\s*`)
	punctRe       = regexp.MustCompile(`[*#_]+`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// FromRaw converts a source record into a Fetched transaction.
//
// Unparseable dates become the zero time and unparseable amounts become zero;
// each recovery is recorded as an anomaly rather than failing the record.
func FromRaw(rec domain.RawRecord) domain.Transaction {
	tx := domain.Transaction{
		ID:          strings.TrimSpace(rec.ID),
		Description: strings.TrimSpace(rec.Description),
		Status:      domain.StatusFetched,
	}

	if d, err := ParseDate(rec.Date); err == nil {
		tx.Date = d
	} else {
		tx = tx.WithAnomaly(domain.Anomaly{Field: "date", Value: rec.Date, Reason: err.Error()})
	}

	amount := decimal.Zero
	if a, err := ParseAmount(rec.Amount); err == nil {
		amount = a
	} else {
		tx = tx.WithAnomaly(domain.Anomaly{Field: "amount", Value: rec.Amount, Reason: err.Error()})
	}
	tx = tx.WithAmount(amount).WithContentHash()

	if tx.ID == "" {
		tx.ID = domain.DeriveID(tx.ContentHash)
	}
	return tx
}

// Normalizer cleans transaction descriptions.
type Normalizer struct {
	// KeepCase disables title-casing of the cleaned description.
	KeepCase bool
}

// New returns a Normalizer with default settings.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize cleans the description, rounds the amount and advances the
// transaction to Processed.
func (n *Normalizer) Normalize(tx domain.Transaction) (domain.Transaction, error) {
	clean := n.CleanDescription(tx.Description)
	out := tx.WithCleanDescription(clean).WithAmount(tx.Amount).WithContentHash()
	return out.Advance(domain.StatusProcessed)
}

// CleanDescription strips card and terminal noise from a bank description.
func (n *Normalizer) CleanDescription(raw string) string {
	s := strings.TrimSpace(raw)
	s = noisePrefixRe.ReplaceAllString(s, "")
	s = maskedCardRe.ReplaceAllString(s, " ")
	s = onDateRe.ReplaceAllString(s, " ")
	s = punctRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = trailingRefRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if s == "" {
		s = strings.TrimSpace(whitespaceRe.ReplaceAllString(raw, " "))
	}
	if n.KeepCase {
		return s
	}
	return titleCase(s)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		if len(r) == 0 {
			continue
		}
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
