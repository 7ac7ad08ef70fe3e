package graph

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dvloznov/finance-graph/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a disposable Neo4j instance, e.g.
// NEO4J_TEST_URI=neo4j://localhost:7687 NEO4J_TEST_PASSWORD=secret go test ./internal/graph/...
func integrationStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("NEO4J_TEST_URI")
	if uri == "" {
		t.Skip("NEO4J_TEST_URI not set")
	}
	ctx := context.Background()
	exec, err := Connect(ctx, Config{
		URI:      uri,
		User:     os.Getenv("NEO4J_TEST_USER"),
		Password: os.Getenv("NEO4J_TEST_PASSWORD"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close(context.Background()) })

	require.NoError(t, exec.ExecuteWrite(ctx, Statement{Query: "MATCH (n) DETACH DELETE n"}))

	store := NewStore(exec, Options{})
	require.NoError(t, store.Initialize(ctx))
	require.NoError(t, store.Initialize(ctx), "schema initialization must be repeatable")
	return store
}

func TestIntegration_UpsertIsIdempotent(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()
	tx := storedTx("it-1", "12.50", &domain.CategoryAssignment{Main: "Food", Sub: "Coffee"})

	_, err := store.Upsert(ctx, tx)
	require.NoError(t, err)
	first, err := store.exec.ExecuteRead(ctx, Statement{Query: "MATCH (t:Transaction {id: 'it-1'}) RETURN t.version AS version, t.updated_at AS updated"})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = store.Upsert(ctx, tx)
	require.NoError(t, err)
	second, err := store.exec.ExecuteRead(ctx, Statement{Query: "MATCH (t:Transaction {id: 'it-1'}) RETURN t.version AS version, t.updated_at AS updated"})
	require.NoError(t, err)

	assert.Equal(t, first, second)

	counts, err := store.exec.ExecuteRead(ctx, Statement{Query: `
MATCH (t:Transaction) WITH count(t) AS txs
MATCH (:Transaction)-[r:BELONGS_TO_CATEGORY]->() RETURN txs, count(r) AS links`})
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, int64(1), counts[0]["txs"])
	assert.Equal(t, int64(1), counts[0]["links"])
}

func TestIntegration_FindSimilar(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()

	a := storedTx("it-a", "100.00", nil)
	b := storedTx("it-b", "105.00", nil)
	c := storedTx("it-c", "250.00", nil)
	for _, tx := range []domain.Transaction{a, b, c} {
		_, err := store.Upsert(ctx, tx)
		require.NoError(t, err)
	}

	got, err := store.FindSimilar(ctx, "it-a", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "it-b", got[0].ID)

	got, err = store.FindSimilar(ctx, "it-b", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "it-a", got[0].ID)

	stats, err := store.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Count)
	assert.False(t, stats.Degraded)
}

func TestIntegration_SimilarAmountSurvivesReupsert(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()

	small := storedTx("it-905", "905.00", nil)
	large := storedTx("it-1000", "1000.00", nil)
	for _, tx := range []domain.Transaction{small, large, small} {
		_, err := store.Upsert(ctx, tx)
		require.NoError(t, err)
	}

	got, err := store.FindSimilar(ctx, "it-1000", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "it-905", got[0].ID)
}
