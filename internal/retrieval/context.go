// Package retrieval implements the ranking core: exact-key lookup, hybrid
// semantic+lexical scoring, optional reranking and evidence assembly.
package retrieval

import (
	"fmt"
	"strings"
	"sync"

	"github.com/combot/ticketsearch/internal/ticket"
)

// Method tags how a context was retrieved. The tag is part of the contract,
// not incidental logging: callers branch on it and operators alert on it.
type Method string

const (
	MethodExact          Method = "exact"
	MethodSemantic       Method = "semantic"
	MethodSemanticRerank Method = "semantic_with_rerank"
	MethodLexical        Method = "lexical_fallback"
	MethodNone           Method = "none"
)

// Source describes where one evidence block came from, parallel to
// Context.Evidence.
type Source struct {
	TicketKey      string
	Summary        string
	Status         string
	IsResolved     bool
	CompositeScore float64
	RerankScore    float64 // rerankMissing when the reranker did not score it
}

// Context is the assembled evidence for one query: ordered formatted blocks
// plus parallel source records. Created per request and discarded after use;
// the debug buffer may retain the most recent one.
type Context struct {
	Query    string
	Method   Method
	Evidence []string
	Sources  []Source
}

// Empty reports whether the context carries no evidence.
func (c *Context) Empty() bool {
	return c == nil || len(c.Evidence) == 0
}

// Text joins the evidence blocks into the prompt-ready string.
func (c *Context) Text() string {
	if c.Empty() {
		return ""
	}
	return strings.Join(c.Evidence, "\n\n")
}

const (
	// evidenceSnippetLimit caps chunk text inside one evidence block.
	evidenceSnippetLimit = 600
	// analysisExcerptLimit caps the analysis excerpt appended to a block.
	analysisExcerptLimit = 400
)

// formatEvidence renders one chunk as an evidence block. Resolved tickets are
// tagged and carry an explicit instruction so downstream generation does not
// treat them as open work.
func formatEvidence(c ticket.Chunk) string {
	tag := "[ACTIVE]"
	if c.Metadata.IsResolved {
		tag = "[RESOLVED]"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[TICKET CONTEXT] %s %s", c.Metadata.TicketKey, tag)
	if c.Metadata.Status != "" {
		fmt.Fprintf(&b, " | Status: %s", c.Metadata.Status)
	}
	if c.Metadata.Priority != "" {
		fmt.Fprintf(&b, " | Priority: %s", c.Metadata.Priority)
	}
	b.WriteString("\n")

	if c.Metadata.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", c.Metadata.Summary)
	}
	b.WriteString(snippet(c.Text, evidenceSnippetLimit))

	if a := c.Metadata.EngineerAnalysis; a != "" {
		fmt.Fprintf(&b, "\nEngineering Analysis: %s", snippet(a, analysisExcerptLimit))
	} else if a := c.Metadata.TriageAnalysis; a != "" {
		fmt.Fprintf(&b, "\nTriage Analysis: %s", snippet(a, analysisExcerptLimit))
	}

	if c.Metadata.IsResolved {
		b.WriteString("\nNote: this ticket is already resolved; treat it as reference material, not as a request for a new fix.")
	}
	return b.String()
}

func sourceFromChunk(c ticket.Chunk) Source {
	return Source{
		TicketKey:   c.Metadata.TicketKey,
		Summary:     c.Metadata.Summary,
		Status:      c.Metadata.Status,
		IsResolved:  c.Metadata.IsResolved,
		RerankScore: rerankMissing,
	}
}

func snippet(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// DebugBuffer retains the most recent context for inspection. Single slot,
// injected into the engine rather than accessed as ambient state.
type DebugBuffer struct {
	mu   sync.Mutex
	last *Context
}

// NewDebugBuffer creates an empty buffer.
func NewDebugBuffer() *DebugBuffer {
	return &DebugBuffer{}
}

// Store replaces the retained context.
func (b *DebugBuffer) Store(c *Context) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = c
}

// Snapshot renders the retained context, truncated to maxChars. Returns
// ("", false) when nothing has been retrieved yet. Diagnostic only, no
// correctness obligation.
func (b *DebugBuffer) Snapshot(maxChars int) (string, bool) {
	if b == nil {
		return "", false
	}
	b.mu.Lock()
	last := b.last
	b.mu.Unlock()
	if last == nil {
		return "", false
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "query: %s\nmethod: %s\nsources: %d\n\n", last.Query, last.Method, len(last.Sources))
	sb.WriteString(last.Text())

	out := sb.String()
	if maxChars > 0 && len(out) > maxChars {
		out = out[:maxChars] + "\n... [truncated]"
	}
	return out, true
}
