// Package mcp exposes the book question-answering service as MCP tools.
package mcp

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/bull/got-explorer/internal/api"
)

// Server wraps the MCP server around the shared service.
type Server struct {
	server *mcp.Server
	svc    *api.Service
}

// NewServer creates an MCP server with the book tools registered.
func NewServer(svc *api.Service, version string, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "mcp").Logger()
	server := mcp.NewServer(&mcp.Implementation{Name: "got-explorer", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a question about the A Song of Ice and Fire books from retrieved book passages. Returns the answer text and a status (success, error, initializing, unavailable).",
	}, makeAskHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_passages",
		Description: "Semantic search over book passages. Returns the closest passages with book title, chapter and similarity score.",
	}, makeSearchHandler(svc, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_status",
		Description: "Report whether the passage index is ready, how many passages it holds and which embedding model built it.",
	}, makeStatusHandler(svc))

	return &Server{server: server, svc: svc}
}

// Run serves over stdio until the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler serves the tools over Streamable HTTP, for mounting at /mcp.
// Stateless mode skips session tracking; the tools never call back into
// the client, so either mode works.
func (s *Server) HTTPHandler(stateless bool) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{Stateless: stateless})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
