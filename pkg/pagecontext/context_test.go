package pagecontext

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractContext(t *testing.T) {
	tests := []struct {
		name      string
		raw       RawContext
		wantURL   string
		wantTitle string
		wantSel   string
	}{
		{
			name:      "complete observation",
			raw:       RawContext{URL: "https://example.com/a", Title: "Example", Selection: "some text"},
			wantURL:   "https://example.com/a",
			wantTitle: "Example",
			wantSel:   "some text",
		},
		{
			name:      "empty title defaults",
			raw:       RawContext{URL: "https://example.com/b"},
			wantURL:   "https://example.com/b",
			wantTitle: DefaultTitle,
		},
		{
			name:      "empty observation",
			raw:       RawContext{},
			wantTitle: DefaultTitle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now()
			ctx := ExtractContext(tt.raw)

			assert.Equal(t, tt.wantURL, ctx.URL)
			assert.Equal(t, tt.wantTitle, ctx.Title)
			assert.Equal(t, tt.wantSel, ctx.Selection)
			assert.False(t, ctx.Timestamp.Before(before))
		})
	}
}

func TestFilter_NoRestriction(t *testing.T) {
	ctx := ExtractContext(RawContext{
		URL:       "https://example.com/page",
		Title:     "Example Page",
		Selection: "highlighted",
	})

	filtered := Filter(ctx, AllGranted())

	assert.Equal(t, ctx.URL, filtered.URL)
	assert.Equal(t, ctx.Title, filtered.Title)
	assert.Equal(t, ctx.Selection, filtered.Selection)
	assert.Equal(t, ctx.Timestamp, filtered.Timestamp)
}

func TestFilter_SelectionPermission(t *testing.T) {
	ctx := PageContext{
		URL:       "https://example.com",
		Title:     "Example",
		Selection: "secret text",
		Timestamp: time.Now(),
	}

	perms := AllGranted()
	perms.ShareSelections = false

	filtered := Filter(ctx, perms)
	assert.Empty(t, filtered.Selection)
	assert.Equal(t, ctx.URL, filtered.URL)
}

func TestFilter_DomainRedaction(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		domains    []string
		restricted bool
	}{
		{"empty list is unrestricted", "https://evil.test/x", nil, false},
		{"matching domain", "https://www.example.com/page", []string{"example.com"}, false},
		{"substring match", "https://api.example.com", []string{"example"}, false},
		{"no match", "https://evil.test/x", []string{"example.com"}, true},
		{"unparseable url", "http://[::1:80", []string{"example.com"}, true},
		{"bare string without host", "not-a-url", []string{"example.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := PageContext{
				URL:       tt.url,
				Title:     "Title",
				Selection: "sel",
				Timestamp: time.Now(),
			}
			perms := AllGranted()
			perms.AllowedDomains = tt.domains

			filtered := Filter(ctx, perms)

			if tt.restricted {
				assert.Equal(t, RestrictedMarker, filtered.URL)
				assert.Equal(t, RestrictedMarker, filtered.Title)
				assert.Empty(t, filtered.Selection)
			} else {
				assert.Equal(t, tt.url, filtered.URL)
				assert.Equal(t, "Title", filtered.Title)
				assert.Equal(t, "sel", filtered.Selection)
			}
		})
	}
}

// Redaction must drop the selection even when the share flag would
// have allowed it, regardless of the other flags.
func TestFilter_RedactionDropsCopiedSelection(t *testing.T) {
	ctx := PageContext{
		URL:       "https://evil.test/x",
		Title:     "Evil",
		Selection: "copied first",
		Timestamp: time.Now(),
	}
	perms := Permissions{
		ShareHistory:     true,
		SharePageContent: true,
		ShareSelections:  true,
		AllowedDomains:   []string{"example.com"},
	}

	filtered := Filter(ctx, perms)

	assert.Equal(t, RestrictedMarker, filtered.URL)
	assert.Equal(t, RestrictedMarker, filtered.Title)
	assert.Empty(t, filtered.Selection)
}

func TestManager_UpdateContext(t *testing.T) {
	m := NewManager()

	_, ok := m.GetCurrentContext()
	assert.False(t, ok)

	ctx := ExtractContext(RawContext{URL: "https://example.com", Title: "Example"})
	filtered := m.UpdateContext(ctx, AllGranted())

	current, ok := m.GetCurrentContext()
	require.True(t, ok)
	assert.Equal(t, filtered, current)

	history := m.GetContextHistory(0)
	require.Len(t, history, 1)
	assert.Equal(t, filtered, history[0])
}

func TestManager_UpdateContextNotifiesHandlers(t *testing.T) {
	m := NewManager()

	var got []PageContext
	m.OnContextUpdated(func(c PageContext) {
		got = append(got, c)
	})

	ctx := ExtractContext(RawContext{URL: "https://example.com", Title: "Example"})
	filtered := m.UpdateContext(ctx, AllGranted())

	require.Len(t, got, 1)
	assert.Equal(t, filtered, got[0])
}

func TestManager_HistoryBound(t *testing.T) {
	m := NewManager()

	for i := 0; i < 60; i++ {
		ctx := ExtractContext(RawContext{
			URL:   fmt.Sprintf("https://example.com/page/%d", i),
			Title: fmt.Sprintf("Page %d", i),
		})
		m.UpdateContext(ctx, AllGranted())
	}

	history := m.GetContextHistory(1000)
	require.Len(t, history, historyCap)

	// Most recent first: pages 59 down to 10.
	for i, entry := range history {
		assert.Equal(t, fmt.Sprintf("https://example.com/page/%d", 59-i), entry.URL)
	}
}

func TestManager_GetContextHistoryLimit(t *testing.T) {
	m := NewManager()
	for i := 0; i < 25; i++ {
		m.UpdateContext(ExtractContext(RawContext{URL: fmt.Sprintf("https://example.com/%d", i)}), AllGranted())
	}

	assert.Len(t, m.GetContextHistory(0), defaultHistoryLimit)
	assert.Len(t, m.GetContextHistory(-3), defaultHistoryLimit)
	assert.Len(t, m.GetContextHistory(5), 5)
	assert.Len(t, m.GetContextHistory(100), 25)
}

func TestManager_ClearHistory(t *testing.T) {
	m := NewManager()

	cleared := false
	m.OnHistoryCleared(func() { cleared = true })

	m.UpdateContext(ExtractContext(RawContext{URL: "https://example.com", Title: "T"}), AllGranted())
	m.ClearHistory()

	assert.True(t, cleared)
	assert.Empty(t, m.GetContextHistory(100))

	// The current context survives a history clear.
	current, ok := m.GetCurrentContext()
	require.True(t, ok)
	assert.Equal(t, "https://example.com", current.URL)
}

func TestManager_ConcurrentUpdates(t *testing.T) {
	m := NewManager()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ctx := ExtractContext(RawContext{URL: fmt.Sprintf("https://example.com/%d", n)})
			m.UpdateContext(ctx, AllGranted())
		}(i)
	}
	wg.Wait()

	assert.Len(t, m.GetContextHistory(100), 20)
	_, ok := m.GetCurrentContext()
	assert.True(t, ok)
}

func BenchmarkFilter(b *testing.B) {
	ctx := PageContext{
		URL:       "https://api.example.com/deep/path",
		Title:     "Example",
		Selection: "selected text",
		Timestamp: time.Now(),
	}
	perms := Permissions{
		ShareSelections: true,
		AllowedDomains:  []string{"other.org", "example.com"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Filter(ctx, perms)
	}
}
