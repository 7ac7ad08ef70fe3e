package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places amounts are kept at.
const AmountScale = 2

// idNamespace scopes ids derived from record content.
var idNamespace = uuid.MustParse("6f1c2a8e-4b7d-5e93-a0c1-7d2f9b3e8a45")

// RawRecord is a transaction exactly as a source delivered it.
// Date and Amount are unparsed and may be malformed; ID may be empty.
type RawRecord struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// Anomaly records a data-quality recovery applied while normalizing a record.
type Anomaly struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// Transaction is one financial event flowing through the pipeline.
//
// Values are immutable: every With*/Advance/Fail method returns a modified copy
// and leaves the receiver untouched.
type Transaction struct {
	ID               string              `json:"id"`
	Date             time.Time           `json:"date"`
	Amount           decimal.Decimal     `json:"amount"`
	Description      string              `json:"description"`
	CleanDescription string              `json:"clean_description,omitempty"`
	Category         *CategoryAssignment `json:"category,omitempty"`
	EmailSnippet     string              `json:"email_snippet,omitempty"`
	Status           ProcessingStatus    `json:"status"`
	ContentHash      string              `json:"content_hash"`
	Anomalies        []Anomaly           `json:"anomalies,omitempty"`
	FailedStage      string              `json:"failed_stage,omitempty"`
	FailureReason    string              `json:"failure_reason,omitempty"`
}

func (t Transaction) clone() Transaction {
	c := t
	c.Anomalies = slices.Clone(t.Anomalies)
	if t.Category != nil {
		cat := *t.Category
		c.Category = &cat
	}
	return c
}

// HasDate reports whether the date was parsed (the zero time is the sentinel).
func (t Transaction) HasDate() bool {
	return !t.Date.IsZero()
}

// DisplayDescription returns the cleaned description when available.
func (t Transaction) DisplayDescription() string {
	if t.CleanDescription != "" {
		return t.CleanDescription
	}
	return t.Description
}

// WithCleanDescription returns a copy carrying the cleaned description.
func (t Transaction) WithCleanDescription(s string) Transaction {
	c := t.clone()
	c.CleanDescription = s
	return c
}

// WithAmount returns a copy with the amount rounded to AmountScale.
func (t Transaction) WithAmount(a decimal.Decimal) Transaction {
	c := t.clone()
	c.Amount = a.Round(AmountScale)
	return c
}

// WithCategory returns a copy carrying the given assignment (nil clears it).
func (t Transaction) WithCategory(a *CategoryAssignment) Transaction {
	c := t.clone()
	if a == nil {
		c.Category = nil
		return c
	}
	cat := *a
	c.Category = &cat
	return c
}

// WithEmailSnippet returns a copy carrying the correlated email text.
func (t Transaction) WithEmailSnippet(s string) Transaction {
	c := t.clone()
	c.EmailSnippet = s
	return c
}

// WithAnomaly returns a copy with one more recorded anomaly.
func (t Transaction) WithAnomaly(a Anomaly) Transaction {
	c := t.clone()
	c.Anomalies = append(c.Anomalies, a)
	return c
}

// WithContentHash returns a copy with the content hash recomputed.
func (t Transaction) WithContentHash() Transaction {
	c := t.clone()
	c.ContentHash = ComputeContentHash(c.Date, c.Amount, c.Description)
	return c
}

// Advance moves the transaction to next, rejecting illegal transitions.
func (t Transaction) Advance(next ProcessingStatus) (Transaction, error) {
	if !CanTransition(t.Status, next) {
		return t, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}
	c := t.clone()
	c.Status = next
	return c, nil
}

// Fail marks the transaction Failed at stage. Terminal transactions are returned unchanged.
func (t Transaction) Fail(stage string, err error) Transaction {
	if t.Status.Terminal() {
		return t
	}
	c := t.clone()
	c.Status = StatusFailed
	c.FailedStage = stage
	if err != nil {
		c.FailureReason = err.Error()
	}
	return c
}

// Cancel marks the transaction Cancelled at stage. Terminal transactions are returned unchanged.
func (t Transaction) Cancel(stage string) Transaction {
	if t.Status.Terminal() {
		return t
	}
	c := t.clone()
	c.Status = StatusCancelled
	c.FailedStage = stage
	c.FailureReason = "run cancelled"
	return c
}

// ComputeContentHash hashes the canonical date|amount|description triple.
func ComputeContentHash(date time.Time, amount decimal.Decimal, description string) string {
	d := ""
	if !date.IsZero() {
		d = date.UTC().Format(time.DateOnly)
	}
	canonical := strings.Join([]string{
		d,
		amount.StringFixed(AmountScale),
		strings.TrimSpace(description),
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// DeriveID returns a stable id for a record that arrived without one, so that
// resubmitting the same record maps to the same node.
func DeriveID(contentHash string) string {
	return uuid.NewSHA1(idNamespace, []byte(contentHash)).String()
}
