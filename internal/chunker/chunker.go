// Package chunker turns ticket records into bounded, metadata-enriched text
// chunks ready for embedding. Short tickets become a single combined chunk;
// long ones are split on paragraph boundaries with overlap.
package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/combot/ticketsearch/internal/ticket"
)

// DefaultChunkSize is the combined-text threshold in characters below which a
// ticket stays a single chunk.
const DefaultChunkSize = 800

// DefaultChunkOverlap is the number of trailing characters carried into the
// next chunk when a ticket is split.
const DefaultChunkOverlap = 150

// DefaultMinChunkSize is the floor below which a split unit is dropped
// instead of emitted as a degenerate micro-chunk.
const DefaultMinChunkSize = 80

// Config controls chunk sizing and id generation.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
	MaxKeywords  int
	// IDFunc generates chunk ids. Defaults to uuid.NewString; tests inject a
	// deterministic generator.
	IDFunc func() string
}

// Chunker splits ticket records into chunks.
type Chunker struct {
	cfg Config
}

// New creates a Chunker, filling unset config fields with defaults.
func New(cfg Config) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 4
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = DefaultMinChunkSize
	}
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = DefaultMaxKeywords
	}
	if cfg.IDFunc == nil {
		cfg.IDFunc = uuid.NewString
	}
	return &Chunker{cfg: cfg}
}

// Chunk converts one ticket record into zero or more chunks stamped with the
// given ingestion version. A record with no usable text yields zero chunks;
// this is not an error, the caller logs and moves on.
func (c *Chunker) Chunk(rec ticket.Record, ingestionVersion string) []ticket.Chunk {
	combined := CombinedText(rec)
	if combined == "" {
		return nil
	}

	meta := c.buildMetadata(rec, combined, ingestionVersion)

	if len(combined) <= c.cfg.ChunkSize {
		return []ticket.Chunk{{
			ID:       c.cfg.IDFunc(),
			Index:    0,
			Kind:     ticket.KindCombined,
			Text:     combined,
			Metadata: meta,
		}}
	}

	parts := c.splitText(combined)
	chunks := make([]ticket.Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, ticket.Chunk{
			ID:       c.cfg.IDFunc(),
			Index:    i,
			Kind:     ticket.KindPartial,
			Text:     part,
			Metadata: meta,
		})
	}
	return chunks
}

// CombinedText assembles the ticket's searchable text in a fixed section
// order. Missing fields are omitted entirely, never rendered as empty
// sections.
func CombinedText(rec ticket.Record) string {
	var sections []string

	if s := strings.TrimSpace(rec.Summary); s != "" {
		sections = append(sections, "Summary: "+s)
	}
	if s := strings.TrimSpace(rec.Description); s != "" {
		sections = append(sections, "Description: "+s)
	}
	if s := strings.TrimSpace(rec.TriageAnalysis); s != "" {
		sections = append(sections, "Triage Analysis: "+s)
	}
	if s := strings.TrimSpace(rec.EngineerAnalysis); s != "" {
		sections = append(sections, "Engineering Analysis: "+s)
	}

	var idents []string
	if rec.Key != "" {
		idents = append(idents, "Ticket: "+rec.Key)
	}
	if rec.Status != "" {
		idents = append(idents, "Status: "+rec.Status)
	}
	if rec.Priority != "" {
		idents = append(idents, "Priority: "+rec.Priority)
	}
	if len(rec.Components) > 0 {
		idents = append(idents, "Components: "+strings.Join(rec.Components, ", "))
	}
	if len(rec.Labels) > 0 {
		idents = append(idents, "Labels: "+strings.Join(rec.Labels, ", "))
	}
	if rec.FixedVersion != "" {
		idents = append(idents, "Fixed Version: "+rec.FixedVersion)
	}
	if len(idents) > 0 {
		sections = append(sections, strings.Join(idents, " | "))
	}

	var comments []string
	for _, cm := range rec.Comments {
		if cm = strings.TrimSpace(cm); cm != "" {
			comments = append(comments, "- "+cm)
		}
	}
	if len(comments) > 0 {
		sections = append(sections, "Comments:\n"+strings.Join(comments, "\n"))
	}

	return strings.Join(sections, "\n\n")
}

func (c *Chunker) buildMetadata(rec ticket.Record, combined, version string) ticket.Metadata {
	return ticket.Metadata{
		TicketKey:        rec.Key,
		Summary:          rec.Summary,
		Status:           rec.Status,
		IsResolved:       ticket.IsTerminalStatus(rec.Status),
		Priority:         rec.Priority,
		Assignee:         rec.Assignee,
		Reporter:         rec.Reporter,
		IssueType:        rec.IssueType,
		Project:          rec.Project,
		Components:       rec.Components,
		Labels:           rec.Labels,
		IngestionVersion: version,
		Keywords:         ExtractKeywords(combined, c.cfg.MaxKeywords),
		TriageAnalysis:   truncate(rec.TriageAnalysis, 8000),
		EngineerAnalysis: truncate(rec.EngineerAnalysis, 8000),
		FixedVersion:     rec.FixedVersion,
		CharCount:        len(combined),
		WordCount:        len(strings.Fields(combined)),
		CommentCount:     len(rec.Comments),
	}
}

// splitText splits combined text into overlapping pieces near the chunk-size
// target. Paragraphs are the primary unit; a paragraph longer than the target
// is further split on sentence boundaries. Pieces under the minimum floor are
// dropped.
func (c *Chunker) splitText(text string) []string {
	var units []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= c.cfg.ChunkSize {
			units = append(units, para)
			continue
		}
		units = append(units, splitSentences(para, c.cfg.ChunkSize)...)
	}

	var parts []string
	var cur strings.Builder
	for _, unit := range units {
		if cur.Len() > 0 && cur.Len()+len(unit)+2 > c.cfg.ChunkSize {
			parts = append(parts, cur.String())
			tail := overlapTail(cur.String(), c.cfg.ChunkOverlap)
			cur.Reset()
			if tail != "" {
				cur.WriteString(tail)
			}
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(unit)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}

	kept := parts[:0]
	for _, p := range parts {
		if len(p) >= c.cfg.MinChunkSize {
			kept = append(kept, p)
		}
	}
	return kept
}

// splitSentences breaks an oversized paragraph into pieces no longer than
// limit, cutting at sentence terminators where possible.
func splitSentences(para string, limit int) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(para); i++ {
		switch para[i] {
		case '.', '!', '?':
			// Treat the terminator as a boundary when followed by space or EOL.
			if i+1 == len(para) || para[i+1] == ' ' || para[i+1] == '\n' {
				s := strings.TrimSpace(para[start : i+1])
				if s != "" {
					sentences = append(sentences, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(para[start:]); s != "" {
		sentences = append(sentences, s)
	}

	var out []string
	var cur strings.Builder
	for _, s := range sentences {
		// A single sentence beyond the limit gets hard-cut.
		for len(s) > limit {
			out = appendPiece(out, &cur, s[:limit])
			s = s[limit:]
		}
		if cur.Len() > 0 && cur.Len()+len(s)+1 > limit {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(s)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func appendPiece(out []string, cur *strings.Builder, piece string) []string {
	if cur.Len() > 0 {
		out = append(out, cur.String())
		cur.Reset()
	}
	return append(out, piece)
}

// overlapTail returns the last n characters of s, extended left to the
// nearest word boundary so the overlap does not start mid-word.
func overlapTail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return ""
	}
	tail := s[len(s)-n:]
	if idx := strings.IndexAny(tail, " \n"); idx >= 0 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return fmt.Sprintf("%s...", s[:max])
}
