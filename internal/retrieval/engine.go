package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/combot/ticketsearch/internal/storage"
	"github.com/combot/ticketsearch/internal/ticket"
)

// ErrNotReady means no ingestion pass has published a version yet; callers
// must distinguish this from an empty result.
var ErrNotReady = errors.New("retrieval engine not ready: no published ingestion version")

// ChunkStore is the slice of the storage adapter the engine consumes.
type ChunkStore interface {
	QueryByFilter(ctx context.Context, filter storage.Filter, limit int) ([]ticket.Chunk, error)
	QueryByVector(ctx context.Context, vector []float32, filter storage.Filter, limit int, scoreThreshold float32) ([]storage.ScoredChunk, error)
	CurrentVersion(ctx context.Context) (string, error)
}

// Embedder turns query text into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Reranker scores (query, candidate) pairs. Implementations degrade to an
// error rather than blocking; rerank.ErrUnavailable is the expected failure.
type Reranker interface {
	Enabled() bool
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
}

// Config carries the engine's tunables with their production defaults.
type Config struct {
	// PoolSize is the semantic candidate pool fetched per query.
	PoolSize int
	// TopK is the final result cap.
	TopK int
	// PerTicketLimit caps chunks fetched per ticket key on the exact path.
	PerTicketLimit int
	// MaxEvidence caps evidence blocks in one context.
	MaxEvidence int
	// Weights blends the composite score.
	Weights Weights
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		PoolSize:       24,
		TopK:           8,
		PerTicketLimit: 5,
		MaxEvidence:    12,
		Weights:        DefaultWeights,
	}
}

// Engine routes a query through exact-key lookup, hybrid scoring and
// optional reranking, and assembles the evidence context.
type Engine struct {
	store    ChunkStore
	embedder Embedder
	reranker Reranker
	debug    *DebugBuffer
	cfg      Config
	logger   *slog.Logger
}

// NewEngine wires the engine. reranker and debug may be nil.
func NewEngine(store ChunkStore, embedder Embedder, reranker Reranker, debug *DebugBuffer, cfg Config, logger *slog.Logger) *Engine {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 24
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 8
	}
	if cfg.PerTicketLimit <= 0 {
		cfg.PerTicketLimit = 5
	}
	if cfg.MaxEvidence <= 0 {
		cfg.MaxEvidence = 12
	}
	zero := Weights{}
	if cfg.Weights == zero {
		cfg.Weights = DefaultWeights
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		reranker: reranker,
		debug:    debug,
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve resolves a query to an evidence context. Exact-key lookup wins
// when it produces anything; otherwise the hybrid scorer runs, followed by
// the reranker when one is configured. An empty context with Method "none"
// means the index had nothing relevant or a transport failure cut the pass
// short; ErrNotReady is the only hard retrieval error.
func (e *Engine) Retrieve(ctx context.Context, query string) (*Context, error) {
	version, err := e.store.CurrentVersion(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNoVersion) {
			return nil, ErrNotReady
		}
		return nil, fmt.Errorf("resolve current version: %w", err)
	}

	rc := &Context{Query: query, Method: MethodNone}
	defer func() { e.debug.Store(rc) }()

	exact, err := e.retrieveExact(ctx, query, version)
	if err != nil {
		// Transport failure on the exact path falls through to semantic
		// search rather than failing the query.
		e.logger.Warn("exact-key retrieval failed, falling through", "error", err)
	}
	if len(exact) > 0 {
		rc.Method = MethodExact
		for _, c := range exact {
			rc.Evidence = append(rc.Evidence, formatEvidence(c))
			rc.Sources = append(rc.Sources, sourceFromChunk(c))
		}
		return rc, nil
	}

	candidates, err := e.semanticCandidates(ctx, query, version)
	if err != nil {
		// Transport failure on the semantic path yields an empty context,
		// not a hard error; the caller sees Method "none".
		e.logger.Warn("semantic retrieval failed, returning empty context", "error", err)
		return rc, nil
	}
	if len(candidates) == 0 {
		return rc, nil
	}

	e.scoreCandidates(query, candidates)
	sortByComposite(candidates)

	method := MethodSemantic
	if e.reranker != nil && e.reranker.Enabled() {
		if reranked, ok := e.rerankShortlist(ctx, query, candidates); ok {
			candidates = reranked
			method = MethodSemanticRerank
		}
	}

	if len(candidates) > e.cfg.TopK {
		candidates = candidates[:e.cfg.TopK]
	}

	rc.Method = method
	for _, c := range candidates {
		rc.Evidence = append(rc.Evidence, formatEvidence(c.chunk))
		src := sourceFromChunk(c.chunk)
		src.CompositeScore = c.composite
		src.RerankScore = c.rerankScore
		rc.Sources = append(rc.Sources, src)
	}
	return rc, nil
}

// semanticCandidates embeds the query and pulls the similarity pool,
// restricted to the current ingestion version.
func (e *Engine) semanticCandidates(ctx context.Context, query, version string) ([]*candidate, error) {
	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	filter := storage.Filter{}.Eq(storage.FieldIngestionVersion, version)
	scored, err := e.store.QueryByVector(ctx, vector, filter, e.cfg.PoolSize, 0)
	if err != nil {
		return nil, fmt.Errorf("semantic query: %w", err)
	}

	candidates := make([]*candidate, len(scored))
	for i, sc := range scored {
		candidates[i] = &candidate{
			chunk:         sc.Chunk,
			semanticScore: sc.Score,
			rerankScore:   rerankMissing,
		}
	}
	return candidates, nil
}

// scoreCandidates computes the per-candidate features and the composite
// blend. Similarity is normalized by the pool maximum; when every score is
// equal the norm is 1.0 for all and the lexical terms break the ties.
func (e *Engine) scoreCandidates(query string, candidates []*candidate) {
	qf := newQueryFeatures(query)

	maxScore := 0.0
	for _, c := range candidates {
		if c.semanticScore > maxScore {
			maxScore = c.semanticScore
		}
	}

	maxNumberOverlap := 0
	for _, c := range candidates {
		if maxScore > 0 {
			c.semanticNorm = c.semanticScore / maxScore
		}
		qf.extractFeatures(c)
		if c.numberOverlap > maxNumberOverlap {
			maxNumberOverlap = c.numberOverlap
		}
	}

	for _, c := range candidates {
		c.composite = e.cfg.Weights.compositeScore(c, maxNumberOverlap)
	}
}

// sortByComposite orders candidates by composite score descending, stable on
// input order for exact ties.
func sortByComposite(candidates []*candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].composite > candidates[j].composite
	})
}

// rerankShortlist re-scores the head of the composite ordering with the
// pairwise model. Returns ok=false on any reranker failure so the caller
// keeps the composite order and tags the context accordingly.
func (e *Engine) rerankShortlist(ctx context.Context, query string, candidates []*candidate) ([]*candidate, bool) {
	shortlistSize := max(2*e.cfg.TopK, 12)
	if shortlistSize > len(candidates) {
		shortlistSize = len(candidates)
	}
	shortlist := candidates[:shortlistSize]

	documents := make([]string, len(shortlist))
	for i, c := range shortlist {
		documents[i] = fmt.Sprintf("%s %s %s",
			c.chunk.Metadata.TicketKey,
			c.chunk.Metadata.Summary,
			snippet(c.chunk.Text, evidenceSnippetLimit))
	}

	scores, err := e.reranker.Score(ctx, query, documents)
	if err != nil || len(scores) != len(shortlist) {
		e.logger.Warn("rerank failed, keeping composite order", "error", err)
		return nil, false
	}

	for i, c := range shortlist {
		c.rerankScore = scores[i]
	}
	sort.SliceStable(shortlist, func(i, j int) bool {
		if shortlist[i].rerankScore != shortlist[j].rerankScore {
			return shortlist[i].rerankScore > shortlist[j].rerankScore
		}
		return shortlist[i].composite > shortlist[j].composite
	})
	return shortlist, true
}
