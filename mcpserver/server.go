// Package mcpserver exposes search, fetch and ask as Model Context
// Protocol tools over stdio.
//
// Information Hiding:
// - Tool schemas and argument parsing
// - Result shapes returned to MCP clients
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/richinex/querygate/engine"
	"github.com/richinex/querygate/model"
	"github.com/richinex/querygate/retrieval"
	"github.com/richinex/querygate/storage"
)

const (
	serverName    = "querygate"
	serverVersion = "0.1.0"

	defaultLimit = 10
	maxLimit     = 50
)

// Querier answers one query. *engine.Engine implements it.
type Querier interface {
	Handle(ctx context.Context, req model.QueryRequest) (engine.Result, error)
}

// Server holds the collaborators behind the MCP tools.
type Server struct {
	docs    storage.DocumentStore
	querier Querier
	history storage.ConversationStorage
	ranker  *retrieval.Ranker
	scope   string
	urlFor  func(id string) string
}

// Option configures a Server.
type Option func(*Server)

// WithScope sets the owner scope searched and fetched from.
func WithScope(scope string) Option {
	return func(s *Server) {
		s.scope = scope
	}
}

// WithHistory keeps ask conversations in store, keyed by conversation_id.
func WithHistory(store storage.ConversationStorage) Option {
	return func(s *Server) {
		s.history = store
	}
}

// WithDocumentURL sets how document URLs are built.
func WithDocumentURL(fn func(id string) string) Option {
	return func(s *Server) {
		s.urlFor = fn
	}
}

// New creates the tool server. querier may be nil, in which case the ask
// tool is not registered.
func New(docs storage.DocumentStore, querier Querier, opts ...Option) *Server {
	s := &Server{
		docs:    docs,
		querier: querier,
		ranker:  retrieval.NewRanker(retrieval.DefaultRankerOptions()),
		urlFor:  func(id string) string { return "querygate://documents/" + id },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MCPServer builds the mcp-go server with every tool registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithInstructions("Use search to find relevant documents, then fetch to retrieve complete content with citations. Use ask for a synthesized answer."),
	)
	srv.AddTool(searchTool(), s.handleSearch)
	srv.AddTool(fetchTool(), s.handleFetch)
	if s.querier != nil {
		srv.AddTool(askTool(), s.handleAsk)
	}
	return srv
}

// ServeStdio blocks serving MCP over stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.MCPServer())
}
