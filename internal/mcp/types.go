// Package mcp exposes the retrieval engine and resolution cascade as MCP
// tools.
package mcp

// SearchTicketsInput defines the input parameters for the search_tickets tool.
type SearchTicketsInput struct {
	// Query is the natural-language question or ticket reference.
	Query string `json:"query" jsonschema:"required,description=Natural-language question about support tickets; may name ticket keys directly"`
}

// SearchTicketsOutput contains the assembled evidence for a query.
type SearchTicketsOutput struct {
	// Method tags how the evidence was retrieved: exact, semantic,
	// semantic_with_rerank or none.
	Method string `json:"method"`
	// Evidence is the ordered list of formatted evidence blocks.
	Evidence []string `json:"evidence"`
	// Sources parallels Evidence with structured ticket metadata.
	Sources []TicketSource `json:"sources"`
	// Message provides informational context (e.g. no matches found).
	Message string `json:"message,omitempty"`
}

// TicketSource identifies the ticket behind one evidence block.
type TicketSource struct {
	TicketKey      string  `json:"ticket_key"`
	Summary        string  `json:"summary"`
	Status         string  `json:"status"`
	IsResolved     bool    `json:"is_resolved"`
	CompositeScore float64 `json:"composite_score,omitempty"`
	RerankScore    float64 `json:"rerank_score,omitempty"`
}

// SuggestResolutionInput defines the input for the suggest_resolution tool.
type SuggestResolutionInput struct {
	// TicketKey is the ticket to suggest next steps for.
	TicketKey string `json:"ticket_key" jsonschema:"required,description=Ticket key to suggest resolution steps for (e.g. PAY-101)"`
}

// SuggestResolutionOutput contains the suggestion and its provenance.
type SuggestResolutionOutput struct {
	// Found indicates whether the ticket exists in the tracker.
	Found bool `json:"found"`
	// Path tags the cascade branch taken: exact, semantic,
	// lexical_fallback or generic.
	Path string `json:"path,omitempty"`
	// Suggestion is the guidance text; never empty when Found.
	Suggestion string `json:"suggestion,omitempty"`
	// References lists the resolved tickets backing the suggestion.
	References []ResolutionReference `json:"references,omitempty"`
}

// ResolutionReference points at one resolved ticket.
type ResolutionReference struct {
	TicketKey string  `json:"ticket_key"`
	Summary   string  `json:"summary"`
	Score     float64 `json:"score"`
}

// StatusInput defines the input for the get_index_status tool. No
// parameters.
type StatusInput struct{}

// StatusOutput describes the current state of the ticket index.
type StatusOutput struct {
	// Ready is false until an ingestion pass has published a version.
	Ready bool `json:"ready"`
	// IngestionVersion is the currently published version tag.
	IngestionVersion string `json:"ingestion_version,omitempty"`
	// TotalPoints is the raw point count in the collection.
	TotalPoints uint64 `json:"total_points"`
	// VectorDimension is the configured embedding dimension.
	VectorDimension int `json:"vector_dimension"`
}

// LastContextInput defines the input for the get_last_context debug tool.
type LastContextInput struct {
	// MaxChars truncates the rendered context; 0 uses the default cap.
	MaxChars int `json:"max_chars,omitempty" jsonschema:"minimum=0,description=Truncate the rendered context to this many characters"`
}

// LastContextOutput carries the most recently assembled retrieval context.
type LastContextOutput struct {
	// Available is false when no retrieval has happened yet.
	Available bool `json:"available"`
	// Context is the rendered context, truncated to the cap.
	Context string `json:"context,omitempty"`
}
