package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/combot/ticketsearch/internal/retrieval"
)

// Server wraps the MCP server with its dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds the server's dependencies.
type Config struct {
	Engine   Retriever
	Assister Assister
	Status   StatusStore
	Debug    *retrieval.DebugBuffer
}

// NewServer creates a configured MCP server with all tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "ticketsearch-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_tickets",
		Description: "Search support tickets. Queries naming a ticket key (e.g. PAY-101) fetch that ticket directly; everything else runs hybrid semantic search over ticket content.",
	}, makeSearchHandler(cfg.Engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "suggest_resolution",
		Description: "Suggest next steps for an unresolved ticket based on similar resolved tickets. Falls back to a generic diagnostic checklist when nothing similar exists.",
	}, makeResolutionHandler(cfg.Assister))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Report ticket index status: readiness, published ingestion version, point count and vector dimension.",
	}, makeStatusHandler(cfg.Status))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_last_context",
		Description: "Inspect the most recently assembled retrieval context. Diagnostic aid; output is truncated.",
	}, makeLastContextHandler(cfg.Debug))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
