package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/combot/ticketsearch/internal/jira"
	"github.com/combot/ticketsearch/internal/resolution"
	"github.com/combot/ticketsearch/internal/retrieval"
	"github.com/combot/ticketsearch/internal/storage"
)

// defaultDebugCap bounds the get_last_context payload.
const defaultDebugCap = 8000

// Retriever is the engine surface the search tool consumes.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*retrieval.Context, error)
}

// Assister is the cascade surface the resolution tool consumes.
type Assister interface {
	Assist(ctx context.Context, key string) (*resolution.Result, error)
}

// StatusStore is the storage surface the status tool consumes.
type StatusStore interface {
	CurrentVersion(ctx context.Context) (string, error)
	GetCollectionInfo(ctx context.Context) (*storage.CollectionInfo, error)
}

// makeSearchHandler creates the search_tickets tool handler. The engine does
// the routing: exact-key lookup first, hybrid scoring plus optional rerank
// otherwise. A not-ready index is a tool error, distinct from "no matches".
func makeSearchHandler(engine Retriever) func(
	context.Context, *mcp.CallToolRequest, SearchTicketsInput,
) (*mcp.CallToolResult, SearchTicketsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchTicketsInput) (
		*mcp.CallToolResult, SearchTicketsOutput, error,
	) {
		rc, err := engine.Retrieve(ctx, input.Query)
		if err != nil {
			if errors.Is(err, retrieval.ErrNotReady) {
				return nil, SearchTicketsOutput{}, fmt.Errorf("index not ready: run an ingestion pass first")
			}
			return nil, SearchTicketsOutput{}, fmt.Errorf("search failed: %w", err)
		}

		out := SearchTicketsOutput{
			Method:   string(rc.Method),
			Evidence: rc.Evidence,
			Sources:  make([]TicketSource, 0, len(rc.Sources)),
		}
		for _, s := range rc.Sources {
			src := TicketSource{
				TicketKey:      s.TicketKey,
				Summary:        s.Summary,
				Status:         s.Status,
				IsResolved:     s.IsResolved,
				CompositeScore: s.CompositeScore,
			}
			if s.RerankScore >= 0 {
				src.RerankScore = s.RerankScore
			}
			out.Sources = append(out.Sources, src)
		}
		if rc.Empty() {
			out.Evidence = []string{}
			out.Message = "No matching tickets found. Try broader wording or a ticket key."
		}
		return nil, out, nil
	}
}

// makeResolutionHandler creates the suggest_resolution tool handler. An
// unknown ticket is reported as found=false rather than a tool error.
func makeResolutionHandler(assister Assister) func(
	context.Context, *mcp.CallToolRequest, SuggestResolutionInput,
) (*mcp.CallToolResult, SuggestResolutionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SuggestResolutionInput) (
		*mcp.CallToolResult, SuggestResolutionOutput, error,
	) {
		res, err := assister.Assist(ctx, input.TicketKey)
		if err != nil {
			if errors.Is(err, jira.ErrTicketNotFound) {
				return nil, SuggestResolutionOutput{Found: false}, nil
			}
			return nil, SuggestResolutionOutput{}, fmt.Errorf("resolution assist failed: %w", err)
		}

		out := SuggestResolutionOutput{
			Found:      true,
			Path:       string(res.Path),
			Suggestion: res.Suggestion,
		}
		for _, r := range res.References {
			out.References = append(out.References, ResolutionReference{
				TicketKey: r.TicketKey,
				Summary:   r.Summary,
				Score:     r.Score,
			})
		}
		return nil, out, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
func makeStatusHandler(store StatusStore) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		out := StatusOutput{}

		version, err := store.CurrentVersion(ctx)
		switch {
		case err == nil:
			out.Ready = true
			out.IngestionVersion = version
		case errors.Is(err, storage.ErrNoVersion):
			// Not ready yet; still report collection stats.
		default:
			return nil, StatusOutput{}, fmt.Errorf("read version manifest: %w", err)
		}

		info, err := store.GetCollectionInfo(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("get collection info: %w", err)
		}
		out.TotalPoints = info.PointsCount
		out.VectorDimension = info.VectorDimension
		return nil, out, nil
	}
}

// makeLastContextHandler creates the get_last_context debug tool handler.
func makeLastContextHandler(debug *retrieval.DebugBuffer) func(
	context.Context, *mcp.CallToolRequest, LastContextInput,
) (*mcp.CallToolResult, LastContextOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input LastContextInput) (
		*mcp.CallToolResult, LastContextOutput, error,
	) {
		maxChars := input.MaxChars
		if maxChars <= 0 || maxChars > defaultDebugCap {
			maxChars = defaultDebugCap
		}
		snapshot, ok := debug.Snapshot(maxChars)
		if !ok {
			return nil, LastContextOutput{Available: false}, nil
		}
		return nil, LastContextOutput{Available: true, Context: snapshot}, nil
	}
}
