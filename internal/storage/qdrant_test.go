//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/combot/ticketsearch/internal/ticket"
)

// setupTestStore creates a store against a local Qdrant and ensures the test
// collection exists. Skips if Qdrant is not running.
func setupTestStore(t *testing.T) *QdrantStore {
	store, err := NewQdrantStore("localhost", 6334, "ticket_chunks_test")
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	err = store.EnsureCollection(context.Background(), DefaultVectorDimension)
	require.NoError(t, err, "Failed to ensure collection")

	return store
}

func testEmbedding(fill float32) []float32 {
	v := make([]float32, DefaultVectorDimension)
	for i := range v {
		v[i] = fill
	}
	return v
}

func testChunk(key, version string, resolved bool) ticket.EmbeddedChunk {
	status := "Open"
	if resolved {
		status = "Done"
	}
	return ticket.EmbeddedChunk{
		Chunk: ticket.Chunk{
			ID:   uuid.New().String(),
			Kind: ticket.KindCombined,
			Text: "Summary: test chunk for " + key,
			Metadata: ticket.Metadata{
				TicketKey:        key,
				Summary:          "test chunk for " + key,
				Status:           status,
				IsResolved:       resolved,
				IngestionVersion: version,
			},
		},
		Embedding: testEmbedding(0.1),
	}
}

func TestChunkRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	key := "RT-" + uuid.New().String()[:8]

	chunk := testChunk(key, "v1", true)
	chunk.Metadata.Components = []string{"billing"}
	chunk.Metadata.Labels = []string{"regression"}
	chunk.Metadata.Keywords = []string{"test", "chunk"}

	written, err := store.UpsertChunks(ctx, []ticket.EmbeddedChunk{chunk})
	require.NoError(t, err)
	require.Equal(t, 1, written)

	results, err := store.QueryByFilter(ctx, Filter{}.Eq(FieldTicketKey, key), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.Equal(t, chunk.ID, got.ID)
	assert.Equal(t, chunk.Text, got.Text)
	assert.Equal(t, chunk.Metadata, got.Metadata)
}

func TestVectorQueryWithVersionFilter(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	key := "VQ-" + uuid.New().String()[:8]

	oldChunk := testChunk(key, "v1", false)
	newChunk := testChunk(key, "v2", false)

	_, err := store.UpsertChunks(ctx, []ticket.EmbeddedChunk{oldChunk, newChunk})
	require.NoError(t, err)

	// Only the current-version chunk may come back.
	results, err := store.QueryByVector(ctx, testEmbedding(0.1),
		Filter{}.Eq(FieldTicketKey, key).Eq(FieldIngestionVersion, "v2"), 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "v2", results[0].Chunk.Metadata.IngestionVersion)
	assert.Greater(t, results[0].Score, 0.0)

	stale, err := store.QueryByVector(ctx, testEmbedding(0.1),
		Filter{}.Eq(FieldTicketKey, key).Eq(FieldIngestionVersion, "v1"), 10, 0)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "v1", stale[0].Chunk.Metadata.IngestionVersion)
}

func TestResolvedOnlyFilter(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	version := "rv-" + uuid.New().String()[:8]

	resolved := testChunk("RES-1", version, true)
	active := testChunk("RES-2", version, false)
	_, err := store.UpsertChunks(ctx, []ticket.EmbeddedChunk{resolved, active})
	require.NoError(t, err)

	results, err := store.QueryByVector(ctx, testEmbedding(0.1),
		Filter{}.Eq(FieldIngestionVersion, version).EqBool(FieldIsResolved, true), 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "RES-1", results[0].Chunk.Metadata.TicketKey)
}

func TestVersionManifest(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.PublishVersion(ctx, "20250901T000000"))

	version, err := store.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20250901T000000", version)

	// Publishing again overwrites the single manifest point.
	require.NoError(t, store.PublishVersion(ctx, "20250901T120000"))
	version, err = store.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20250901T120000", version)

	// The manifest must never surface as a chunk.
	results, err := store.QueryByFilter(ctx, Filter{}, 1000)
	require.NoError(t, err)
	for _, c := range results {
		assert.NotEmpty(t, c.Metadata.TicketKey, "manifest leaked into chunk query")
	}
}

func TestBatchUpsert(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	version := "batch-" + uuid.New().String()[:8]

	// More than two full batches.
	chunks := make([]ticket.EmbeddedChunk, 250)
	for i := range chunks {
		chunks[i] = testChunk("BULK-1", version, false)
	}

	written, err := store.UpsertChunks(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 250, written)

	results, err := store.QueryByFilter(ctx, Filter{}.Eq(FieldIngestionVersion, version), 300)
	require.NoError(t, err)
	assert.Len(t, results, 250)
}

func TestDimensionValidation(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	wrong := testChunk("DIM-1", "v1", false)
	wrong.Embedding = make([]float32, 512)

	_, err := store.UpsertChunks(ctx, []ticket.EmbeddedChunk{wrong})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = store.QueryByVector(ctx, make([]float32, 512), Filter{}, 10, 0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
