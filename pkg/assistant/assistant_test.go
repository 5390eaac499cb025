package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spyglass-browser/spyglass/pkg/mcp"
	"github.com/spyglass-browser/spyglass/pkg/pagecontext"
	"github.com/spyglass-browser/spyglass/pkg/store"
)

type fakeToolRunner struct {
	connected []string
	tools     map[string][]mcp.ToolInfo
	lastCall  *mcp.ToolCall
	result    *mcp.ToolResult
}

func (f *fakeToolRunner) CallTool(_ context.Context, call *mcp.ToolCall) *mcp.ToolResult {
	f.lastCall = call
	if f.result != nil {
		return f.result
	}
	return &mcp.ToolResult{Success: true, Data: "ok", Timestamp: time.Now()}
}

func (f *fakeToolRunner) DiscoverTools(_ context.Context, serverID string) ([]mcp.ToolInfo, error) {
	tools, ok := f.tools[serverID]
	if !ok {
		return nil, errors.New("server " + serverID + ": not found")
	}
	return tools, nil
}

func (f *fakeToolRunner) GetConnectedServers() []string {
	return f.connected
}

type fakeHistory struct {
	entries []store.HistoryEntry
	err     error
	query   string
}

func (f *fakeHistory) SearchHistory(_ context.Context, query string, _ int) ([]store.HistoryEntry, error) {
	f.query = query
	return f.entries, f.err
}

type fakeContext struct {
	current *pagecontext.PageContext
}

func (f *fakeContext) GetCurrentContext() (*pagecontext.PageContext, bool) {
	if f.current == nil {
		return nil, false
	}
	return f.current, true
}

func newTestRegistry() (*CommandRegistry, *fakeToolRunner, *fakeHistory, *fakeContext) {
	tools := &fakeToolRunner{}
	history := &fakeHistory{}
	contexts := &fakeContext{}
	return New(tools, history, contexts), tools, history, contexts
}

func TestOpenCommand(t *testing.T) {
	r, _, _, _ := newTestRegistry()

	resp, err := r.ProcessQuery(context.Background(), "open example.com")
	require.NoError(t, err)
	assert.Equal(t, "navigate", resp.Action)
	assert.Equal(t, "https://example.com", resp.Data)

	resp, err = r.ProcessQuery(context.Background(), "open http://plain.test/page")
	require.NoError(t, err)
	assert.Equal(t, "http://plain.test/page", resp.Data)
}

func TestOpenWithoutURL(t *testing.T) {
	r, _, _, _ := newTestRegistry()

	resp, err := r.ProcessQuery(context.Background(), "open")
	require.NoError(t, err)
	assert.Empty(t, resp.Action)
	assert.Contains(t, resp.Text, "Usage")
}

func TestHistoryCommand(t *testing.T) {
	r, _, history, _ := newTestRegistry()
	history.entries = []store.HistoryEntry{
		{URL: "https://go.dev/blog", Title: "The Go Blog"},
	}

	resp, err := r.ProcessQuery(context.Background(), "history go blog")
	require.NoError(t, err)
	assert.Equal(t, "go blog", history.query)
	assert.Contains(t, resp.Text, "The Go Blog")
	assert.Contains(t, resp.Text, "https://go.dev/blog")
}

func TestHistoryNoMatches(t *testing.T) {
	r, _, _, _ := newTestRegistry()

	resp, err := r.ProcessQuery(context.Background(), "history zebra")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "No history")
}

func TestHistoryErrorPropagates(t *testing.T) {
	r, _, history, _ := newTestRegistry()
	history.err = errors.New("database locked")

	_, err := r.ProcessQuery(context.Background(), "history anything")
	assert.Error(t, err)
}

func TestToolsCommandListsAllServers(t *testing.T) {
	r, tools, _, _ := newTestRegistry()
	tools.connected = []string{"files", "search"}
	tools.tools = map[string][]mcp.ToolInfo{
		"files":  {{Name: "mcp_files_read", Description: "read a file"}},
		"search": {{Name: "mcp_search_query", Description: "run a query"}},
	}

	resp, err := r.ProcessQuery(context.Background(), "tools")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "mcp_files_read")
	assert.Contains(t, resp.Text, "mcp_search_query")
}

func TestToolsCommandSingleServer(t *testing.T) {
	r, tools, _, _ := newTestRegistry()
	tools.connected = []string{"files", "search"}
	tools.tools = map[string][]mcp.ToolInfo{
		"files":  {{Name: "mcp_files_read", Description: "read a file"}},
		"search": {{Name: "mcp_search_query", Description: "run a query"}},
	}

	resp, err := r.ProcessQuery(context.Background(), "tools files")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "mcp_files_read")
	assert.NotContains(t, resp.Text, "mcp_search_query")
}

func TestToolsCommandNoServers(t *testing.T) {
	r, _, _, _ := newTestRegistry()

	resp, err := r.ProcessQuery(context.Background(), "tools")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "No tool servers connected")
}

func TestCallCommand(t *testing.T) {
	r, tools, _, _ := newTestRegistry()
	tools.result = &mcp.ToolResult{Success: true, Data: "pong"}

	resp, err := r.ProcessQuery(context.Background(), `call s1 ping {"count": 2}`)
	require.NoError(t, err)
	require.NotNil(t, tools.lastCall)
	assert.Equal(t, "s1", tools.lastCall.ServerID)
	assert.Equal(t, "ping", tools.lastCall.ToolName)
	assert.Equal(t, float64(2), tools.lastCall.Params["count"])
	assert.Equal(t, "pong", resp.Text)
}

func TestCallCommandToolFailure(t *testing.T) {
	r, tools, _, _ := newTestRegistry()
	tools.result = &mcp.ToolResult{Success: false, Error: "s1 not connected"}

	resp, err := r.ProcessQuery(context.Background(), "call s1 ping")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "not connected")
}

func TestCallCommandBadJSON(t *testing.T) {
	r, tools, _, _ := newTestRegistry()

	resp, err := r.ProcessQuery(context.Background(), "call s1 ping {bad json")
	require.NoError(t, err)
	assert.Nil(t, tools.lastCall)
	assert.Contains(t, resp.Text, "Invalid tool arguments")
}

func TestServersCommand(t *testing.T) {
	r, tools, _, _ := newTestRegistry()
	tools.connected = []string{"files", "search"}

	resp, err := r.ProcessQuery(context.Background(), "servers")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "files")
	assert.Contains(t, resp.Text, "search")
	assert.Equal(t, []string{"files", "search"}, resp.Data)
}

func TestContextCommand(t *testing.T) {
	r, _, _, contexts := newTestRegistry()
	contexts.current = &pagecontext.PageContext{
		URL:       "https://example.com/page",
		Title:     "Example",
		Selection: "highlighted text",
	}

	resp, err := r.ProcessQuery(context.Background(), "context")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Example")
	assert.Contains(t, resp.Text, "highlighted text")
}

func TestContextCommandEmpty(t *testing.T) {
	r, _, _, _ := newTestRegistry()

	resp, err := r.ProcessQuery(context.Background(), "context")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "No page context")
}

func TestUnknownCommandReturnsHelp(t *testing.T) {
	r, _, _, _ := newTestRegistry()

	resp, err := r.ProcessQuery(context.Background(), "frobnicate the things")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, `"frobnicate"`)
	assert.Contains(t, resp.Text, "Available commands")
	assert.Contains(t, resp.Text, "call <server> <tool>")
}

func TestEmptyQueryReturnsHelp(t *testing.T) {
	r, _, _, _ := newTestRegistry()

	resp, err := r.ProcessQuery(context.Background(), "   ")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Available commands")
}

func TestCommandsAreCaseInsensitive(t *testing.T) {
	r, tools, _, _ := newTestRegistry()
	tools.connected = []string{"files"}

	resp, err := r.ProcessQuery(context.Background(), "SERVERS")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "files")
}
