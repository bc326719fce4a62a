// Package ticket defines the domain types shared by the ingestion and
// retrieval layers: raw ticket records, searchable chunks and their metadata.
package ticket

import "strings"

// Record represents a support ticket as parsed from a tracker export or
// fetched from the tracker API.
type Record struct {
	Key              string
	Summary          string
	Description      string
	Status           string
	Assignee         string
	Reporter         string
	Priority         string
	IssueType        string
	Project          string
	Components       []string
	Labels           []string
	Comments         []string
	TriageAnalysis   string // L1/L2 support analysis, when present
	EngineerAnalysis string // engineering root-cause analysis, when present
	FixedVersion     string
	Created          string
	Updated          string
}

// ChunkKind distinguishes a single-chunk ticket from a split one.
type ChunkKind string

const (
	// KindCombined marks the single chunk of a ticket whose combined text
	// fit within the chunk-size threshold.
	KindCombined ChunkKind = "combined"
	// KindPartial marks one of several chunks of an oversized ticket.
	KindPartial ChunkKind = "partial"
)

// Chunk is the atomic retrievable unit: a bounded slice of ticket text plus
// the ticket-level metadata it was stamped with at ingestion time. Chunks are
// immutable; re-ingestion supersedes them under a new ingestion version.
type Chunk struct {
	ID       string
	Index    int
	Kind     ChunkKind
	Text     string
	Metadata Metadata
}

// Metadata carries the ticket-level fields attached to every chunk. It is
// both the store filter surface and a scoring input.
type Metadata struct {
	TicketKey        string
	Summary          string
	Status           string
	IsResolved       bool
	Priority         string
	Assignee         string
	Reporter         string
	IssueType        string
	Project          string
	Components       []string
	Labels           []string
	IngestionVersion string
	Keywords         []string
	TriageAnalysis   string
	EngineerAnalysis string
	FixedVersion     string
	CharCount        int
	WordCount        int
	CommentCount     int
}

// EmbeddedChunk pairs a chunk with its embedding vector for upsert.
type EmbeddedChunk struct {
	Chunk
	Embedding []float32
}

// terminalStatuses is the fixed set of lifecycle statuses that mark a ticket
// as resolved. Matching is case-insensitive.
var terminalStatuses = map[string]struct{}{
	"done":     {},
	"closed":   {},
	"resolved": {},
}

// IsTerminalStatus reports whether a lifecycle status belongs to the
// terminal (resolved) set.
func IsTerminalStatus(status string) bool {
	_, ok := terminalStatuses[strings.ToLower(strings.TrimSpace(status))]
	return ok
}
