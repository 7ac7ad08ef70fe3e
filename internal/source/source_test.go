package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/finance-graph/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, src Source) []domain.RawRecord {
	t.Helper()
	var out []domain.RawRecord
	for {
		rec, err := src.Next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestSlice(t *testing.T) {
	recs := []domain.RawRecord{{ID: "a"}, {ID: "b"}}
	got := drain(t, Slice(recs))
	assert.Equal(t, recs, got)
}

func TestSlice_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Slice([]domain.RawRecord{{ID: "a"}}).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJSONLines_SkipsMalformed(t *testing.T) {
	in := strings.Join([]string{
		`{"id":"1","date":"2024-03-09","amount":"-4.50","description":"COFFEE"}`,
		``,
		`{not json`,
		`{"id":"2","date":"09/03/2024","amount":"12","description":"LUNCH"}`,
	}, "\n")

	got := drain(t, JSONLines(strings.NewReader(in)))

	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "-4.50", got[0].Amount)
	assert.Equal(t, "LUNCH", got[1].Description)
}

func TestCSV(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []domain.RawRecord
	}{
		{
			name: "standard header",
			in:   "id,date,amount,description\n1,2024-03-09,-4.50,COFFEE\n",
			want: []domain.RawRecord{{ID: "1", Date: "2024-03-09", Amount: "-4.50", Description: "COFFEE"}},
		},
		{
			name: "aliases and case",
			in:   "Transaction Date,Memo,Value\n09/03/2024,\"TESCO, LONDON\",12.00\n",
			want: []domain.RawRecord{{Date: "09/03/2024", Amount: "12.00", Description: "TESCO, LONDON"}},
		},
		{
			name: "blank and short rows",
			in:   "date,amount,description\n\n,,\n2024-01-01,5\n",
			want: []domain.RawRecord{{Date: "2024-01-01", Amount: "5"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := drain(t, CSV(strings.NewReader(tt.in)))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCSV_MissingColumn(t *testing.T) {
	_, err := CSV(strings.NewReader("date,description\n2024-01-01,x\n")).Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount")
}

func TestOpen_LocalFormats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"in.csv":     "date,amount,description\n2024-01-01,1.00,A\n",
		"in.jsonl":   `{"date":"2024-01-01","amount":"1.00","description":"A"}` + "\n",
		"in.json":    `  [{"date":"2024-01-01","amount":"1.00","description":"A"}]`,
		"lines.json": `{"date":"2024-01-01","amount":"1.00","description":"A"}`,
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

			src, err := Open(context.Background(), p)
			require.NoError(t, err)
			defer src.Close()

			got := drain(t, src)
			require.Len(t, got, 1)
			assert.Equal(t, "A", got[0].Description)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	p := filepath.Join(t.TempDir(), "in.xlsx")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	_, err = Open(context.Background(), p)
	assert.ErrorContains(t, err, "unsupported")
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{uri: "gs://bank/exports/2024/march.csv", bucket: "bank", object: "exports/2024/march.csv"},
		{uri: "gs://bank", wantErr: true},
		{uri: "gs://bank/", wantErr: true},
		{uri: "s3://bank/x.csv", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.object, object)
		})
	}
}
