// Package storage adapts Qdrant to the retrieval core: typed chunk payloads,
// batched upserts with retry, exact-match filter queries, vector queries and
// the ingestion-version manifest.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/combot/ticketsearch/internal/ticket"
)

const (
	// upsertBatchSize is the number of points sent per upsert call.
	upsertBatchSize = 100
	// upsertSubBatchSize is the retry granularity when a full batch fails:
	// the batch is replayed in smaller pieces so one bad point cannot sink
	// the rest.
	upsertSubBatchSize = 10
	// hnswEf widens the approximate-search beam at query time.
	hnswEf = uint64(64)
	// manifestPointID is the fixed id of the version-manifest point.
	manifestPointID = "00000000-0000-0000-0000-00000000a11f"
)

// QdrantStore wraps the Qdrant client with connection management, health
// checks and the collection binding.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	host       string
	port       int
}

// NewQdrantStore creates a Qdrant client bound to one collection, performing
// a health check with retry on startup. Fails fast if Qdrant is unreachable.
func NewQdrantStore(host string, port int, collection string) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	if collection == "" {
		collection = DefaultCollectionName
	}

	store := &QdrantStore{
		client:     client,
		collection: collection,
		host:       host,
		port:       port,
	}

	if err := store.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return store, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, exponentialBackoff)
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection makes sure the bound collection exists with the given
// vector dimension (cosine distance, named vector "content") and payload
// indexes. Idempotent; an existing collection with a different dimension is
// kept but loudly warned about, since upserts against it will be rejected.
func (s *QdrantStore) EnsureCollection(ctx context.Context, dimension int) error {
	s.dimension = dimension

	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range collections {
		if name != s.collection {
			continue
		}
		info, err := s.client.GetCollectionInfo(ctx, s.collection)
		if err != nil {
			return fmt.Errorf("failed to inspect collection: %w", err)
		}
		params := info.GetConfig().GetParams().GetVectorsConfig().GetParamsMap().GetMap()
		if p, ok := params["content"]; ok && int(p.GetSize()) != dimension {
			slog.Warn("collection dimension differs from configured embedding dimension",
				"collection", s.collection,
				"existing", p.GetSize(),
				"configured", dimension)
		}
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			"content": {
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}

	return nil
}

// createPayloadIndexes indexes every field the retrieval paths filter on.
// Without these, filtered queries degrade to full scans.
func (s *QdrantStore) createPayloadIndexes(ctx context.Context) error {
	keywordFields := []string{
		fieldType,
		FieldTicketKey,
		FieldStatus,
		FieldIngestionVersion,
		FieldProject,
		FieldPriority,
	}
	for _, field := range keywordFields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      FieldIsResolved,
		FieldType:      qdrant.FieldType_FieldTypeBool.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create index for field %s: %w", FieldIsResolved, err)
	}

	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// upsertWithRetry performs one upsert call with exponential backoff.
func (s *QdrantStore) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}, exponentialBackoff)
}

// UpsertChunks stores embedded chunks in batches. A failed batch is replayed
// in sub-batches so a single bad point cannot abort the whole pass. Returns
// the number of points written; the error, if any, summarizes what was lost.
func (s *QdrantStore) UpsertChunks(ctx context.Context, chunks []ticket.EmbeddedChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	for i, chunk := range chunks {
		if s.dimension > 0 && len(chunk.Embedding) != s.dimension {
			return 0, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(chunk.Embedding), s.dimension)
		}
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		points[i] = &qdrant.PointStruct{
			Id: qdrant.NewIDUUID(chunk.ID),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				"content": qdrant.NewVector(chunk.Embedding...),
			}),
			Payload: qdrant.NewValueMap(encodeChunkPayload(chunk.Chunk)),
		}
	}

	written := 0
	failed := 0
	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		batch := points[start:end]

		if err := s.upsertWithRetry(ctx, batch); err == nil {
			written += len(batch)
			continue
		}

		// Replay the failed batch at sub-batch granularity.
		for subStart := 0; subStart < len(batch); subStart += upsertSubBatchSize {
			subEnd := subStart + upsertSubBatchSize
			if subEnd > len(batch) {
				subEnd = len(batch)
			}
			sub := batch[subStart:subEnd]
			if err := s.upsertWithRetry(ctx, sub); err != nil {
				failed += len(sub)
				slog.Error("sub-batch upsert failed",
					"collection", s.collection,
					"points", len(sub),
					"error", err)
				continue
			}
			written += len(sub)
		}
	}

	if failed > 0 {
		return written, fmt.Errorf("upsert incomplete: %d of %d points failed", failed, len(chunks))
	}
	return written, nil
}

// QueryByFilter returns chunks matching an exact-match conjunction, without
// any vector scoring. Used by the exact-key and lexical paths.
func (s *QdrantStore) QueryByFilter(ctx context.Context, filter Filter, limit int) ([]ticket.Chunk, error) {
	results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         filter.toQdrant(pointTypeChunk),
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by filter: %w", err)
	}

	chunks := make([]ticket.Chunk, 0, len(results))
	for _, point := range results {
		chunks = append(chunks, decodeChunkPayload(point.Id.GetUuid(), point.Payload))
	}
	return chunks, nil
}

// QueryByVector performs similarity search restricted by an exact-match
// filter. Results arrive score-descending; a zero threshold disables the
// score cutoff. An empty result is valid, not an error.
func (s *QdrantStore) QueryByVector(ctx context.Context, vector []float32, filter Filter, limit int, scoreThreshold float32) ([]ScoredChunk, error) {
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}

	query := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Using:          qdrant.PtrOf("content"),
		Filter:         filter.toQdrant(pointTypeChunk),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
		Params: &qdrant.SearchParams{
			HnswEf: qdrant.PtrOf(hnswEf),
		},
	}
	if scoreThreshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(scoreThreshold)
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query by vector: %w", err)
	}

	scored := make([]ScoredChunk, 0, len(results))
	for _, point := range results {
		scored = append(scored, ScoredChunk{
			Chunk: decodeChunkPayload(point.Id.GetUuid(), point.Payload),
			Score: float64(point.Score),
		})
	}
	return scored, nil
}

// CurrentVersion returns the ingestion version published by the last
// successful ingest pass, or ErrNoVersion if none has been published.
// Queries filter on this value so a concurrent ingest stays invisible
// until it publishes.
func (s *QdrantStore) CurrentVersion(ctx context.Context) (string, error) {
	result, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(manifestPointID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read version manifest: %w", err)
	}
	if len(result) == 0 {
		return "", ErrNoVersion
	}

	version := result[0].Payload[FieldIngestionVersion].GetStringValue()
	if version == "" {
		return "", ErrNoVersion
	}
	return version, nil
}

// PublishVersion writes the version manifest point, flipping all queries to
// the new ingestion version atomically. The manifest carries no vector.
func (s *QdrantStore) PublishVersion(ctx context.Context, version string) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(manifestPointID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			fieldType:             pointTypeManifest,
			FieldIngestionVersion: version,
			"published_at":        time.Now().UTC().Format(time.RFC3339),
		}),
	}
	if err := s.upsertWithRetry(ctx, []*qdrant.PointStruct{point}); err != nil {
		return fmt.Errorf("failed to publish version %s: %w", version, err)
	}
	return nil
}

// GetCollectionInfo retrieves collection statistics for the status surface.
func (s *QdrantStore) GetCollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	collection, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	return &CollectionInfo{
		PointsCount:     collection.GetPointsCount(),
		VectorDimension: s.dimension,
	}, nil
}
