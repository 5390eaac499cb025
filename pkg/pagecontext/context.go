// Package pagecontext gates what page data may be shared with
// connected tool servers. It turns raw page observations into
// permission-filtered snapshots and retains a bounded history of them.
package pagecontext

import (
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spyglass-browser/spyglass/pkg/log"
)

const (
	// historyCap bounds the retained context history; the oldest entry
	// is evicted silently once the cap is reached.
	historyCap = 50

	// defaultHistoryLimit applies when GetContextHistory is called
	// without a positive limit.
	defaultHistoryLimit = 10
)

// Manager filters page observations against per-server permissions and
// keeps the current context plus a bounded most-recent-first history.
type Manager struct {
	mu      sync.RWMutex
	current *PageContext
	history []PageContext

	handlerMu       sync.RWMutex
	updatedHandlers []func(PageContext)
	clearedHandlers []func()

	logger *slog.Logger
}

// NewManager creates an empty context manager.
func NewManager() *Manager {
	return &Manager{
		history: make([]PageContext, 0, historyCap),
		logger:  log.WithComponent("pagecontext"),
	}
}

// ExtractContext builds a PageContext from a raw observation. It is
// pure apart from stamping the current time: no permission logic, no
// manager state.
func ExtractContext(raw RawContext) PageContext {
	title := raw.Title
	if title == "" {
		title = DefaultTitle
	}
	return PageContext{
		URL:       raw.URL,
		Title:     title,
		Selection: raw.Selection,
		Timestamp: time.Now(),
	}
}

// OnContextUpdated registers a handler invoked with every filtered
// context accepted by UpdateContext.
func (m *Manager) OnContextUpdated(fn func(PageContext)) {
	m.handlerMu.Lock()
	m.updatedHandlers = append(m.updatedHandlers, fn)
	m.handlerMu.Unlock()
}

// OnHistoryCleared registers a handler invoked after ClearHistory.
func (m *Manager) OnHistoryCleared(fn func()) {
	m.handlerMu.Lock()
	m.clearedHandlers = append(m.clearedHandlers, fn)
	m.handlerMu.Unlock()
}

// UpdateContext filters ctx against perms, installs the result as the
// current context, prepends it to the bounded history and notifies
// registered handlers. The filtered context is returned.
func (m *Manager) UpdateContext(ctx PageContext, perms Permissions) PageContext {
	filtered := Filter(ctx, perms)

	m.mu.Lock()
	current := filtered
	m.current = &current
	m.history = append([]PageContext{filtered}, m.history...)
	if len(m.history) > historyCap {
		m.history = m.history[:historyCap]
	}
	m.mu.Unlock()

	if filtered.URL == RestrictedMarker {
		m.logger.Debug("context redacted by domain policy")
	}

	m.handlerMu.RLock()
	handlers := make([]func(PageContext), len(m.updatedHandlers))
	copy(handlers, m.updatedHandlers)
	m.handlerMu.RUnlock()
	for _, fn := range handlers {
		fn(filtered)
	}

	return filtered
}

// Filter applies the permission policy to one context. The steps run
// in a fixed order: build the minimal copy, copy the selection if
// allowed, then apply the domain restriction. Domain redaction must be
// able to drop a selection the share flag alone permitted, so the
// selection copy happens before the domain check.
func Filter(ctx PageContext, perms Permissions) PageContext {
	filtered := PageContext{
		URL:       ctx.URL,
		Title:     ctx.Title,
		Timestamp: ctx.Timestamp,
	}

	if perms.ShareSelections && ctx.Selection != "" {
		filtered.Selection = ctx.Selection
	}

	if len(perms.AllowedDomains) > 0 && !domainAllowed(ctx.URL, perms.AllowedDomains) {
		filtered.URL = RestrictedMarker
		filtered.Title = RestrictedMarker
		filtered.Selection = ""
	}

	return filtered
}

// domainAllowed reports whether the URL's hostname contains any of the
// allowed substrings. An unparseable URL is never allowed.
func domainAllowed(rawURL string, allowed []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	for _, domain := range allowed {
		if strings.Contains(host, domain) {
			return true
		}
	}
	return false
}

// GetCurrentContext returns the last filtered context. The second
// return value is false until UpdateContext has been called.
func (m *Manager) GetCurrentContext() (PageContext, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return PageContext{}, false
	}
	return *m.current, true
}

// GetContextHistory returns up to limit retained contexts,
// most-recent-first. A non-positive limit uses the default of 10.
func (m *Manager) GetContextHistory(limit int) []PageContext {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]PageContext, limit)
	copy(out, m.history[:limit])
	return out
}

// ClearHistory empties the retained history and notifies handlers. The
// current context is left untouched.
func (m *Manager) ClearHistory() {
	m.mu.Lock()
	m.history = m.history[:0]
	m.mu.Unlock()

	m.handlerMu.RLock()
	handlers := make([]func(), len(m.clearedHandlers))
	copy(handlers, m.clearedHandlers)
	m.handlerMu.RUnlock()
	for _, fn := range handlers {
		fn()
	}
}
