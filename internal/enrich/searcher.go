package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// Email is a mailbox message considered as evidence for a transaction.
type Email struct {
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet"`
	ReceivedAt time.Time `json:"received_at"`
}

// Searcher looks up emails received inside [from, to].
type Searcher interface {
	Search(ctx context.Context, from, to time.Time) ([]Email, error)
}

// MailboxFile serves searches from a JSON array of emails loaded once.
type MailboxFile struct {
	emails []Email
}

// LoadMailboxFile reads a JSON mailbox export from path.
func LoadMailboxFile(path string) (*MailboxFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadMailboxFile: read %s: %w", path, err)
	}
	var emails []Email
	if err := json.Unmarshal(b, &emails); err != nil {
		return nil, fmt.Errorf("LoadMailboxFile: decode %s: %w", path, err)
	}
	return NewMailbox(emails), nil
}

// NewMailbox builds an in-memory mailbox.
func NewMailbox(emails []Email) *MailboxFile {
	sorted := append([]Email(nil), emails...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ReceivedAt.Before(sorted[j].ReceivedAt) })
	return &MailboxFile{emails: sorted}
}

// Search implements Searcher.
func (m *MailboxFile) Search(ctx context.Context, from, to time.Time) ([]Email, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Email
	for _, e := range m.emails {
		if e.ReceivedAt.Before(from) || e.ReceivedAt.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
