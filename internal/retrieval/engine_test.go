package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/combot/ticketsearch/internal/storage"
	"github.com/combot/ticketsearch/internal/ticket"
)

type fakeStore struct {
	version    string
	versionErr error

	chunksByKey map[string][]ticket.Chunk
	filterErr   error
	filters     []storage.Filter

	vectorResults []storage.ScoredChunk
	vectorErr     error
	vectorFilters []storage.Filter
}

func (f *fakeStore) QueryByFilter(_ context.Context, filter storage.Filter, limit int) ([]ticket.Chunk, error) {
	f.filters = append(f.filters, filter)
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	key := conditionValue(filter, storage.FieldTicketKey)
	chunks := f.chunksByKey[key]
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

func (f *fakeStore) QueryByVector(_ context.Context, _ []float32, filter storage.Filter, limit int, _ float32) ([]storage.ScoredChunk, error) {
	f.vectorFilters = append(f.vectorFilters, filter)
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	results := f.vectorResults
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (f *fakeStore) CurrentVersion(context.Context) (string, error) {
	if f.versionErr != nil {
		return "", f.versionErr
	}
	return f.version, nil
}

func conditionValue(f storage.Filter, field string) string {
	for _, c := range f.Must {
		if c.Field == field {
			if s, ok := c.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

type fakeEmbedder struct {
	calls  int
	vector []float32
	err    error
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.vector == nil {
		return []float32{0.1, 0.2}, nil
	}
	return f.vector, nil
}

type fakeReranker struct {
	enabled bool
	scores  []float64
	err     error
	calls   int
}

func (f *fakeReranker) Enabled() bool { return f.enabled }

func (f *fakeReranker) Score(context.Context, string, []string) ([]float64, error) {
	f.calls++
	return f.scores, f.err
}

func chunkFor(key, summary, status, text string, version string) ticket.Chunk {
	return ticket.Chunk{
		ID:   "id-" + key + "-" + fmt.Sprint(len(text)),
		Kind: ticket.KindCombined,
		Text: text,
		Metadata: ticket.Metadata{
			TicketKey:        key,
			Summary:          summary,
			Status:           status,
			IsResolved:       ticket.IsTerminalStatus(status),
			IngestionVersion: version,
		},
	}
}

func TestRetrieve_ExactPathSkipsSemantic(t *testing.T) {
	store := &fakeStore{
		version: "v5",
		chunksByKey: map[string][]ticket.Chunk{
			"ABC-1234": {chunkFor("ABC-1234", "Upgrade breaks login", "Open", "Summary: Upgrade breaks login", "v5")},
		},
	}
	embedder := &fakeEmbedder{}

	engine := NewEngine(store, embedder, nil, nil, DefaultConfig(), nil)
	rc, err := engine.Retrieve(context.Background(), "Getting error on ABC-1234 after upgrade")
	require.NoError(t, err)

	assert.Equal(t, MethodExact, rc.Method)
	require.Len(t, rc.Evidence, 1)
	assert.Contains(t, rc.Evidence[0], "ABC-1234")
	assert.Contains(t, rc.Evidence[0], "[ACTIVE]")
	assert.Equal(t, "ABC-1234", rc.Sources[0].TicketKey)

	// The hybrid path must never run when exact lookup produced evidence.
	assert.Equal(t, 0, embedder.calls)

	// Every exact lookup is pinned to the current version.
	require.NotEmpty(t, store.filters)
	for _, f := range store.filters {
		assert.Equal(t, "v5", conditionValue(f, storage.FieldIngestionVersion))
	}
}

func TestRetrieve_ExactTagsResolved(t *testing.T) {
	store := &fakeStore{
		version: "v1",
		chunksByKey: map[string][]ticket.Chunk{
			"OPS-9": {chunkFor("OPS-9", "Disk alerts", "Done", "Summary: Disk alerts", "v1")},
		},
	}
	engine := NewEngine(store, &fakeEmbedder{}, nil, nil, DefaultConfig(), nil)

	rc, err := engine.Retrieve(context.Background(), "what happened with OPS-9")
	require.NoError(t, err)
	assert.Contains(t, rc.Evidence[0], "[RESOLVED]")
	assert.Contains(t, rc.Evidence[0], "already resolved")
}

func TestRetrieve_SemanticWhenNoKeys(t *testing.T) {
	version := "v2"
	store := &fakeStore{
		version: version,
		vectorResults: []storage.ScoredChunk{
			{Chunk: chunkFor("UI-77", "Dashboard widget alignment", "Open", "The dashboard widgets drift.", version), Score: 0.9},
			{Chunk: chunkFor("PAY-31", "payment retries fail after gateway timeout", "Open", "Gateway returns 504 and the payment retries fail.", version), Score: 0.8},
		},
	}
	embedder := &fakeEmbedder{}

	engine := NewEngine(store, embedder, nil, nil, DefaultConfig(), nil)
	rc, err := engine.Retrieve(context.Background(), "payment retries fail after gateway timeout 504")
	require.NoError(t, err)

	assert.Equal(t, MethodSemantic, rc.Method)
	assert.Equal(t, 1, embedder.calls)
	require.Len(t, rc.Sources, 2)

	// Lexical overlap outranks the higher raw similarity.
	assert.Equal(t, "PAY-31", rc.Sources[0].TicketKey)
	assert.Equal(t, "UI-77", rc.Sources[1].TicketKey)

	// Semantic pool is restricted to the current ingestion version.
	require.Len(t, store.vectorFilters, 1)
	assert.Equal(t, version, conditionValue(store.vectorFilters[0], storage.FieldIngestionVersion))
}

func TestRetrieve_EmptyPoolIsNone(t *testing.T) {
	store := &fakeStore{version: "v1"}
	engine := NewEngine(store, &fakeEmbedder{}, nil, nil, DefaultConfig(), nil)

	rc, err := engine.Retrieve(context.Background(), "nothing matches this")
	require.NoError(t, err)
	assert.Equal(t, MethodNone, rc.Method)
	assert.True(t, rc.Empty())
}

func TestRetrieve_NotReady(t *testing.T) {
	store := &fakeStore{versionErr: storage.ErrNoVersion}
	engine := NewEngine(store, &fakeEmbedder{}, nil, nil, DefaultConfig(), nil)

	_, err := engine.Retrieve(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestRetrieve_RerankerOrdersShortlist(t *testing.T) {
	version := "v3"
	store := &fakeStore{
		version: version,
		vectorResults: []storage.ScoredChunk{
			{Chunk: chunkFor("A-10", "first", "Open", "first text", version), Score: 0.9},
			{Chunk: chunkFor("B-20", "second", "Open", "second text", version), Score: 0.8},
			{Chunk: chunkFor("C-30", "third", "Open", "third text", version), Score: 0.7},
		},
	}
	// Reranker inverts the composite order.
	reranker := &fakeReranker{enabled: true, scores: []float64{0.1, 0.5, 0.9}}

	engine := NewEngine(store, &fakeEmbedder{}, reranker, nil, DefaultConfig(), nil)
	rc, err := engine.Retrieve(context.Background(), "unrelated words entirely")
	require.NoError(t, err)

	assert.Equal(t, MethodSemanticRerank, rc.Method)
	require.Len(t, rc.Sources, 3)
	assert.Equal(t, "C-30", rc.Sources[0].TicketKey)
	assert.Equal(t, "B-20", rc.Sources[1].TicketKey)
	assert.Equal(t, "A-10", rc.Sources[2].TicketKey)
	assert.Equal(t, 0.9, rc.Sources[0].RerankScore)
}

func TestRetrieve_FailingRerankerKeepsCompositeOrder(t *testing.T) {
	version := "v3"
	store := &fakeStore{
		version: version,
		vectorResults: []storage.ScoredChunk{
			{Chunk: chunkFor("A-10", "first", "Open", "first text", version), Score: 0.9},
			{Chunk: chunkFor("B-20", "second", "Open", "second text", version), Score: 0.8},
		},
	}
	reranker := &fakeReranker{enabled: true, err: errors.New("model down")}

	engine := NewEngine(store, &fakeEmbedder{}, reranker, nil, DefaultConfig(), nil)
	rc, err := engine.Retrieve(context.Background(), "unrelated words entirely")
	require.NoError(t, err)

	// Degrades to composite ordering and is tagged as not reranked.
	assert.Equal(t, MethodSemantic, rc.Method)
	assert.Equal(t, 1, reranker.calls)
	require.Len(t, rc.Sources, 2)
	assert.Equal(t, "A-10", rc.Sources[0].TicketKey)
	assert.Equal(t, "B-20", rc.Sources[1].TicketKey)
	assert.Equal(t, rerankMissing, rc.Sources[0].RerankScore)
}

func TestRetrieve_ExactTransportErrorFallsThrough(t *testing.T) {
	version := "v1"
	store := &fakeStore{
		version:   version,
		filterErr: errors.New("connection refused"),
		vectorResults: []storage.ScoredChunk{
			{Chunk: chunkFor("NET-55", "connection resets", "Open", "resets during failover", version), Score: 0.6},
		},
	}
	embedder := &fakeEmbedder{}

	engine := NewEngine(store, embedder, nil, nil, DefaultConfig(), nil)
	rc, err := engine.Retrieve(context.Background(), "what is NET-55 about")
	require.NoError(t, err)

	assert.Equal(t, MethodSemantic, rc.Method)
	assert.Equal(t, 1, embedder.calls)
	require.Len(t, rc.Sources, 1)
}

func TestRetrieve_SemanticTransportErrorIsEmptyContext(t *testing.T) {
	store := &fakeStore{
		version:   "v1",
		vectorErr: errors.New("connection refused"),
	}
	engine := NewEngine(store, &fakeEmbedder{}, nil, nil, DefaultConfig(), nil)

	rc, err := engine.Retrieve(context.Background(), "payment retries fail")
	require.NoError(t, err)
	assert.Equal(t, MethodNone, rc.Method)
	assert.True(t, rc.Empty())
}

func TestRetrieve_EmbedErrorIsEmptyContext(t *testing.T) {
	store := &fakeStore{version: "v1"}
	embedder := &fakeEmbedder{err: errors.New("429 rate limited")}
	engine := NewEngine(store, embedder, nil, nil, DefaultConfig(), nil)

	rc, err := engine.Retrieve(context.Background(), "payment retries fail")
	require.NoError(t, err)
	assert.Equal(t, MethodNone, rc.Method)
	assert.True(t, rc.Empty())

	// The store is never queried when the query embedding failed.
	assert.Empty(t, store.vectorFilters)
}

func TestRetrieve_TopKCap(t *testing.T) {
	version := "v1"
	store := &fakeStore{version: version}
	for i := 0; i < 20; i++ {
		store.vectorResults = append(store.vectorResults, storage.ScoredChunk{
			Chunk: chunkFor(fmt.Sprintf("T-%d", i), "ticket", "Open", "text", version),
			Score: 1.0 - float64(i)*0.01,
		})
	}

	cfg := DefaultConfig()
	cfg.TopK = 8
	engine := NewEngine(store, &fakeEmbedder{}, nil, nil, cfg, nil)

	rc, err := engine.Retrieve(context.Background(), "some query")
	require.NoError(t, err)
	assert.Len(t, rc.Sources, 8)
}

func TestRetrieve_DebugBufferRetainsLast(t *testing.T) {
	store := &fakeStore{
		version: "v1",
		chunksByKey: map[string][]ticket.Chunk{
			"OPS-9": {chunkFor("OPS-9", "Disk alerts", "Open", "Summary: Disk alerts", "v1")},
		},
	}
	debug := NewDebugBuffer()
	engine := NewEngine(store, &fakeEmbedder{}, nil, debug, DefaultConfig(), nil)

	_, ok := debug.Snapshot(0)
	assert.False(t, ok)

	_, err := engine.Retrieve(context.Background(), "status of OPS-9")
	require.NoError(t, err)

	snap, ok := debug.Snapshot(0)
	require.True(t, ok)
	assert.Contains(t, snap, "method: exact")
	assert.Contains(t, snap, "OPS-9")

	truncated, _ := debug.Snapshot(20)
	assert.Contains(t, truncated, "[truncated]")
}
