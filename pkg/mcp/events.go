package mcp

import (
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Events is the observer registry for manager state changes. Handlers
// are registered explicitly so the notification flow is part of the
// manager's public contract; dispatch copies the handler slice and
// invokes outside the lock, so a handler may safely call back into the
// manager.
type Events struct {
	mu              sync.RWMutex
	connected       []func(serverID string)
	disconnected    []func(serverID string)
	toolsDiscovered []func(serverID string, tools []*sdk.Tool)
	errors          []func(serverID string, err error)
}

// NewEvents creates an empty registry.
func NewEvents() *Events {
	return &Events{}
}

// OnServerConnected registers a handler invoked after a server's
// connection is fully established and registered.
func (e *Events) OnServerConnected(fn func(serverID string)) {
	e.mu.Lock()
	e.connected = append(e.connected, fn)
	e.mu.Unlock()
}

// OnServerDisconnected registers a handler invoked after a server's
// registry entry has been removed, whether the disconnect was requested
// or the transport closed unexpectedly.
func (e *Events) OnServerDisconnected(fn func(serverID string)) {
	e.mu.Lock()
	e.disconnected = append(e.disconnected, fn)
	e.mu.Unlock()
}

// OnToolsDiscovered registers a handler invoked with every successful
// tool discovery, in addition to the discovery call's return value.
func (e *Events) OnToolsDiscovered(fn func(serverID string, tools []*sdk.Tool)) {
	e.mu.Lock()
	e.toolsDiscovered = append(e.toolsDiscovered, fn)
	e.mu.Unlock()
}

// OnError registers a handler for connection-level failures: failed
// connect attempts, handshake errors and health check alarms.
func (e *Events) OnError(fn func(serverID string, err error)) {
	e.mu.Lock()
	e.errors = append(e.errors, fn)
	e.mu.Unlock()
}

func (e *Events) emitServerConnected(serverID string) {
	e.mu.RLock()
	handlers := make([]func(string), len(e.connected))
	copy(handlers, e.connected)
	e.mu.RUnlock()
	for _, fn := range handlers {
		fn(serverID)
	}
}

func (e *Events) emitServerDisconnected(serverID string) {
	e.mu.RLock()
	handlers := make([]func(string), len(e.disconnected))
	copy(handlers, e.disconnected)
	e.mu.RUnlock()
	for _, fn := range handlers {
		fn(serverID)
	}
}

func (e *Events) emitToolsDiscovered(serverID string, tools []*sdk.Tool) {
	e.mu.RLock()
	handlers := make([]func(string, []*sdk.Tool), len(e.toolsDiscovered))
	copy(handlers, e.toolsDiscovered)
	e.mu.RUnlock()
	for _, fn := range handlers {
		fn(serverID, tools)
	}
}

func (e *Events) emitError(serverID string, err error) {
	e.mu.RLock()
	handlers := make([]func(string, error), len(e.errors))
	copy(handlers, e.errors)
	e.mu.RUnlock()
	for _, fn := range handlers {
		fn(serverID, err)
	}
}
