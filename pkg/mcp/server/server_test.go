package server

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spyglass-browser/spyglass/pkg/pagecontext"
	"github.com/spyglass-browser/spyglass/pkg/store"
)

type fakeHistory struct {
	entries []store.HistoryEntry
	err     error
	query   string
	limit   int
}

func (f *fakeHistory) SearchHistory(_ context.Context, query string, limit int) ([]store.HistoryEntry, error) {
	f.query, f.limit = query, limit
	return f.entries, f.err
}

func (f *fakeHistory) RecentHistory(_ context.Context, limit int) ([]store.HistoryEntry, error) {
	f.limit = limit
	return f.entries, f.err
}

type fakeContexts struct {
	current *pagecontext.PageContext
	history []pagecontext.PageContext
}

func (f *fakeContexts) GetCurrentContext() (pagecontext.PageContext, bool) {
	if f.current == nil {
		return pagecontext.PageContext{}, false
	}
	return *f.current, true
}

func (f *fakeContexts) GetContextHistory(limit int) []pagecontext.PageContext {
	if limit > 0 && limit < len(f.history) {
		return f.history[:limit]
	}
	return f.history
}

func callRequest(name string, args map[string]any) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcpgo.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHistorySearchTool(t *testing.T) {
	history := &fakeHistory{entries: []store.HistoryEntry{
		{URL: "https://go.dev/blog", Title: "The Go Blog", VisitedAt: time.Now()},
	}}
	s := New(history, &fakeContexts{})

	result, err := s.handleHistorySearch(context.Background(),
		callRequest("history_search", map[string]any{"query": "go", "limit": 5}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "go", history.query)
	assert.Equal(t, 5, history.limit)

	var entries []store.HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "The Go Blog", entries[0].Title)
}

func TestHistorySearchRequiresQuery(t *testing.T) {
	s := New(&fakeHistory{}, &fakeContexts{})

	result, err := s.handleHistorySearch(context.Background(),
		callRequest("history_search", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHistorySearchStoreError(t *testing.T) {
	s := New(&fakeHistory{err: errors.New("database locked")}, &fakeContexts{})

	result, err := s.handleHistorySearch(context.Background(),
		callRequest("history_search", map[string]any{"query": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "database locked")
}

func TestRecentHistoryToolDefaultLimit(t *testing.T) {
	history := &fakeHistory{}
	s := New(history, &fakeContexts{})

	result, err := s.handleRecentHistory(context.Background(),
		callRequest("recent_history", map[string]any{}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, 10, history.limit)
}

func TestCurrentContextToolEmpty(t *testing.T) {
	s := New(&fakeHistory{}, &fakeContexts{})

	result, err := s.handleCurrentContext(context.Background(),
		callRequest("current_context", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no page context")
}

func TestCurrentContextTool(t *testing.T) {
	contexts := &fakeContexts{current: &pagecontext.PageContext{
		URL:   "https://example.com",
		Title: "Example",
	}}
	s := New(&fakeHistory{}, contexts)

	result, err := s.handleCurrentContext(context.Background(),
		callRequest("current_context", nil))
	require.NoError(t, err)

	var pc pagecontext.PageContext
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &pc))
	assert.Equal(t, "https://example.com", pc.URL)
}

func TestContextHistoryToolHonorsLimit(t *testing.T) {
	contexts := &fakeContexts{history: []pagecontext.PageContext{
		{URL: "https://a.example.com"},
		{URL: "https://b.example.com"},
		{URL: "https://c.example.com"},
	}}
	s := New(&fakeHistory{}, contexts)

	result, err := s.handleContextHistory(context.Background(),
		callRequest("context_history", map[string]any{"limit": 2}))
	require.NoError(t, err)

	var history []pagecontext.PageContext
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &history))
	assert.Len(t, history, 2)
}
