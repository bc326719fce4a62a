package storage

import "errors"

var (
	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrNoVersion means no ingestion pass has published a version manifest
	// yet; the index is not ready to serve queries.
	ErrNoVersion = errors.New("no published ingestion version")
)
