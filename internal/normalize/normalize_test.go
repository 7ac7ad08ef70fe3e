package normalize

import (
	"testing"
	"time"

	"github.com/dvloznov/finance-graph/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"iso", "2024-03-09", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), false},
		{"day first slash", "09/03/2024", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), false},
		{"month first when day first impossible", "03/25/2024", time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC), false},
		{"rfc3339 truncated to midnight", "2024-03-09T17:45:00Z", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), false},
		{"short month name", "9 Mar 2024", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), false},
		{"us long form", "March 9, 2024", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), false},
		{"empty", "", time.Time{}, true},
		{"garbage", "yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"12.34", "12.34", false},
		{"-12.34", "-12.34", false},
		{"£1,234.56", "1234.56", false},
		{"1.234,56 EUR", "1234.56", false},
		{"12,5", "12.5", false},
		{"(45.00)", "-45", false},
		{"45.00-", "-45", false},
		{"30.00 DR", "-30", false},
		{"30.00 CR", "30", false},
		{"$ -7", "-7", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFromRaw(t *testing.T) {
	tx := FromRaw(domain.RawRecord{ID: " a1 ", Date: "2024-01-05", Amount: "12.345", Description: "  SHOP "})

	assert.Equal(t, "a1", tx.ID)
	assert.Equal(t, domain.StatusFetched, tx.Status)
	assert.Equal(t, "12.35", tx.Amount.StringFixed(2))
	assert.Equal(t, "SHOP", tx.Description)
	assert.NotEmpty(t, tx.ContentHash)
	assert.Empty(t, tx.Anomalies)
}

func TestFromRaw_MalformedFieldsBecomeAnomalies(t *testing.T) {
	tx := FromRaw(domain.RawRecord{Date: "not a date", Amount: "n/a", Description: "Mystery"})

	assert.False(t, tx.HasDate())
	assert.True(t, tx.Amount.IsZero())
	require.Len(t, tx.Anomalies, 2)
	assert.Equal(t, "date", tx.Anomalies[0].Field)
	assert.Equal(t, "amount", tx.Anomalies[1].Field)
	assert.NotEmpty(t, tx.ID, "id should be derived when missing")
}

func TestFromRaw_DerivedIDIsStable(t *testing.T) {
	rec := domain.RawRecord{Date: "2024-01-05", Amount: "9.99", Description: "Netflix"}
	assert.Equal(t, FromRaw(rec).ID, FromRaw(rec).ID)
}

func TestCleanDescription(t *testing.T) {
	n := New()
	tests := []struct {
		input string
		want  string
	}{
		{"CARD PAYMENT TO TESCO STORES 2231 ON 09 MAR", "Tesco Stores 2231"},
		{"POS 1234 **** **** 5678 PRET A MANGER", "Pret A Manger"},
		{"DIRECT DEBIT TO  BRITISH GAS   REF: BG12345678", "British Gas"},
		{"  uber   *trip  ", "Uber Trip"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, n.CleanDescription(tt.input))
		})
	}
}

func TestNormalize_AdvancesToProcessed(t *testing.T) {
	tx := FromRaw(domain.RawRecord{ID: "x", Date: "2024-01-05", Amount: "1", Description: "CARD PAYMENT TO AMAZON"})

	out, err := New().Normalize(tx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, out.Status)
	assert.Equal(t, "Amazon", out.CleanDescription)
	assert.Equal(t, domain.StatusFetched, tx.Status)
}
