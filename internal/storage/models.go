package storage

import "github.com/combot/ticketsearch/internal/ticket"

// DefaultCollectionName is the single Qdrant collection holding ticket
// chunks and the version manifest.
const DefaultCollectionName = "ticket_chunks"

// DefaultVectorDimension is the embedding size for text-embedding-3-small.
const DefaultVectorDimension = 1536

// ScoredChunk pairs a chunk with its raw similarity score from a vector
// query. Filter-only lookups carry a zero score.
type ScoredChunk struct {
	Chunk ticket.Chunk
	Score float64
}

// CollectionInfo reports collection statistics for the status surface.
type CollectionInfo struct {
	PointsCount     uint64
	VectorDimension int
}
