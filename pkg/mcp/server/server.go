// Package server exposes the shell itself as an MCP tool server:
// browsing history and page context become tools other MCP clients
// can call over stdio.
package server

import (
	"context"
	"encoding/json"
	"fmt"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/spyglass-browser/spyglass/pkg/pagecontext"
	"github.com/spyglass-browser/spyglass/pkg/store"
)

const (
	serverName    = "spyglass"
	serverVersion = "1.0.0"
)

// HistoryProvider is the slice of the store the server reads.
type HistoryProvider interface {
	SearchHistory(ctx context.Context, query string, limit int) ([]store.HistoryEntry, error)
	RecentHistory(ctx context.Context, limit int) ([]store.HistoryEntry, error)
}

// ContextProvider is the slice of the context manager the server
// reads.
type ContextProvider interface {
	GetCurrentContext() (pagecontext.PageContext, bool)
	GetContextHistory(limit int) []pagecontext.PageContext
}

// Server wraps the MCP server with its tool handlers.
type Server struct {
	mcp      *mcpserver.MCPServer
	history  HistoryProvider
	contexts ContextProvider
}

// New builds the shell MCP server with its four tools registered.
func New(history HistoryProvider, contexts ContextProvider) *Server {
	s := &Server{
		mcp: mcpserver.NewMCPServer(serverName, serverVersion,
			mcpserver.WithToolCapabilities(false)),
		history:  history,
		contexts: contexts,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcpgo.NewTool("history_search",
		mcpgo.WithDescription("Search the browsing history by URL or title"),
		mcpgo.WithString("query",
			mcpgo.Required(),
			mcpgo.Description("Text to match against URLs and titles"),
		),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of entries to return (default 10)"),
		),
	), s.handleHistorySearch)

	s.mcp.AddTool(mcpgo.NewTool("recent_history",
		mcpgo.WithDescription("List the most recently visited pages"),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of entries to return (default 10)"),
		),
	), s.handleRecentHistory)

	s.mcp.AddTool(mcpgo.NewTool("current_context",
		mcpgo.WithDescription("Return the currently viewed page context"),
	), s.handleCurrentContext)

	s.mcp.AddTool(mcpgo.NewTool("context_history",
		mcpgo.WithDescription("List recently captured page contexts, most recent first"),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of contexts to return (default 10)"),
		),
	), s.handleContextHistory)
}

func (s *Server) handleHistorySearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", 10)

	entries, err := s.history.SearchHistory(ctx, query, limit)
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("history search failed: %v", err)), nil
	}
	return jsonResult(entries)
}

func (s *Server) handleRecentHistory(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	limit := req.GetInt("limit", 10)

	entries, err := s.history.RecentHistory(ctx, limit)
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("history lookup failed: %v", err)), nil
	}
	return jsonResult(entries)
}

func (s *Server) handleCurrentContext(_ context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	pc, ok := s.contexts.GetCurrentContext()
	if !ok {
		return mcpgo.NewToolResultText("no page context captured yet"), nil
	}
	return jsonResult(pc)
}

func (s *Server) handleContextHistory(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	limit := req.GetInt("limit", 10)
	return jsonResult(s.contexts.GetContextHistory(limit))
}

func jsonResult(v interface{}) (*mcpgo.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("failed to serialize result: %v", err)), nil
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcp)
}

// MCPServer exposes the underlying server for in-process tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}
