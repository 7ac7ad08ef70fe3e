package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/finance-graph/internal/domain"
	infra "github.com/dvloznov/finance-graph/internal/infra/bigquery"
	"github.com/dvloznov/finance-graph/internal/pipeline"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedTx() domain.Transaction {
	return domain.Transaction{
		ID:               "tx-1",
		Date:             time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		Amount:           decimal.RequireFromString("-12.34"),
		Description:      "CARD PAYMENT TO TESCO",
		CleanDescription: "Tesco",
		Category:         &domain.CategoryAssignment{Main: "Food", Sub: "Groceries"},
		Status:           domain.StatusStored,
		ContentHash:      "abc",
	}
}

type exporterFunc func(ctx context.Context, tx domain.Transaction) error

func (f exporterFunc) Export(ctx context.Context, tx domain.Transaction) error { return f(ctx, tx) }

func TestMulti(t *testing.T) {
	var calls []string
	ok := exporterFunc(func(context.Context, domain.Transaction) error { calls = append(calls, "ok"); return nil })
	bad := exporterFunc(func(context.Context, domain.Transaction) error {
		calls = append(calls, "bad")
		return errors.New("sink down")
	})

	assert.NoError(t, Multi{ok, ok}.Export(context.Background(), storedTx()))

	calls = nil
	err := Multi{bad, ok}.Export(context.Background(), storedTx())
	assert.ErrorContains(t, err, "sink down")
	assert.Equal(t, []string{"bad", "ok"}, calls, "later exporters still run")
}

func TestJSONLExporter(t *testing.T) {
	var buf bytes.Buffer
	e := NewJSONLExporter(&buf)

	require.NoError(t, e.Export(context.Background(), storedTx()))
	require.NoError(t, e.Export(context.Background(), storedTx()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var got domain.Transaction
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "tx-1", got.ID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("-12.34")))
	assert.Equal(t, domain.StatusStored, got.Status)
}

type mockInserter struct {
	rows []*infra.TransactionRow
	err  error
}

func (m *mockInserter) InsertTransactions(_ context.Context, rows []*infra.TransactionRow) error {
	m.rows = append(m.rows, rows...)
	return m.err
}

func TestBigQueryExporter(t *testing.T) {
	ins := &mockInserter{}
	e := NewBigQueryExporter(ins)
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	ctx := pipeline.WithRunID(context.Background(), "run-9")
	require.NoError(t, e.Export(ctx, storedTx()))

	require.Len(t, ins.rows, 1)
	row := ins.rows[0]
	assert.Equal(t, "tx-1", row.TransactionID)
	assert.Equal(t, "run-9", row.RunID)
	assert.Equal(t, "-617/50", row.Amount.String())
	assert.True(t, row.TransactionDate.Valid)
	assert.Equal(t, "2024-03-09", row.TransactionDate.Date.String())
	assert.Equal(t, "Tesco", row.NormalizedDescription.StringVal)
	assert.Equal(t, "Food", row.CategoryName.StringVal)
	assert.Equal(t, "Groceries", row.SubcategoryName.StringVal)
	assert.False(t, row.EmailSnippet.Valid)
	assert.Equal(t, now, row.CreatedTS)
}

func TestTransactionRow_Undated(t *testing.T) {
	tx := storedTx()
	tx.Date = time.Time{}
	tx.Category = nil

	row := TransactionRow(tx, "", time.Now())
	assert.False(t, row.TransactionDate.Valid)
	assert.False(t, row.CategoryName.Valid)
}

func TestBigQueryExporter_Error(t *testing.T) {
	e := NewBigQueryExporter(&mockInserter{err: errors.New("quota")})
	assert.ErrorContains(t, e.Export(context.Background(), storedTx()), "quota")
}

type mockNotion struct {
	pages   map[string]string // transaction id -> page id
	created []notionapi.Properties
	updated map[string]notionapi.Properties
	queries []*notionapi.DatabaseQueryRequest
}

func newMockNotion() *mockNotion {
	return &mockNotion{pages: map[string]string{}, updated: map[string]notionapi.Properties{}}
}

func (m *mockNotion) CreatePage(_ context.Context, _ string, props notionapi.Properties) (*notionapi.Page, error) {
	m.created = append(m.created, props)
	return &notionapi.Page{}, nil
}

func (m *mockNotion) UpdatePage(_ context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error) {
	m.updated[pageID] = props
	return &notionapi.Page{}, nil
}

func (m *mockNotion) QueryDatabase(_ context.Context, _ string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	m.queries = append(m.queries, req)
	f := req.Filter.(notionapi.PropertyFilter)
	if id, ok := m.pages[f.RichText.Equals]; ok {
		return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: notionapi.ObjectID(id)}}}, nil
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

func TestNotionExporter_CreatesThenUpdates(t *testing.T) {
	svc := newMockNotion()
	e := NewNotionExporter(svc, "db-1")

	require.NoError(t, e.Export(context.Background(), storedTx()))
	require.Len(t, svc.created, 1)
	assert.Empty(t, svc.updated)

	f := svc.queries[0].Filter.(notionapi.PropertyFilter)
	assert.Equal(t, TransactionIDProperty, f.Property)
	assert.Equal(t, "tx-1", f.RichText.Equals)

	svc.pages["tx-1"] = "page-42"
	require.NoError(t, e.Export(context.Background(), storedTx()))
	assert.Len(t, svc.created, 1)
	assert.Contains(t, svc.updated, "page-42")
}

func TestTransactionProperties(t *testing.T) {
	props := TransactionProperties(storedTx())

	title := props["Description"].(notionapi.TitleProperty)
	assert.Equal(t, "Tesco", title.Title[0].Text.Content)
	assert.Equal(t, -12.34, props["Amount"].(notionapi.NumberProperty).Number)
	assert.Equal(t, "Food", props["Category"].(notionapi.SelectProperty).Select.Name)
	assert.Equal(t, "Groceries", props["Subcategory"].(notionapi.SelectProperty).Select.Name)
	assert.Contains(t, props, "Date")
	assert.NotContains(t, props, "Notes")
}
