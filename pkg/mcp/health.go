package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/spyglass-browser/spyglass/pkg/log"
)

// HealthMonitor periodically pings every live connection and raises an
// error event once a server fails the threshold number of consecutive
// checks. It is observability only: it never kills a connection and
// never reconnects.
type HealthMonitor struct {
	manager   *Manager
	interval  time.Duration
	threshold int

	mu       sync.Mutex
	failures map[string]int
	alarmed  map[string]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewHealthMonitor creates a monitor over manager. Non-positive
// interval or threshold fall back to the defaults.
func NewHealthMonitor(manager *Manager, interval time.Duration, threshold int) *HealthMonitor {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if threshold <= 0 {
		threshold = 3
	}
	return &HealthMonitor{
		manager:   manager,
		interval:  interval,
		threshold: threshold,
		failures:  make(map[string]int),
		alarmed:   make(map[string]bool),
		stopCh:    make(chan struct{}),
		logger:    log.WithComponent("mcp.health"),
	}
}

// Start launches the check loop.
func (h *HealthMonitor) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.loop(ctx)
}

// Stop ends the check loop and waits for it to finish.
func (h *HealthMonitor) Stop() {
	close(h.stopCh)
	h.wg.Wait()
}

func (h *HealthMonitor) loop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.checkAll(ctx)
		}
	}
}

func (h *HealthMonitor) checkAll(ctx context.Context) {
	for _, id := range h.manager.GetConnectedServers() {
		h.checkOne(ctx, id)
	}

	// Forget servers that are no longer connected.
	connected := make(map[string]bool)
	for _, id := range h.manager.GetConnectedServers() {
		connected[id] = true
	}
	h.mu.Lock()
	for id := range h.failures {
		if !connected[id] {
			delete(h.failures, id)
			delete(h.alarmed, id)
		}
	}
	h.mu.Unlock()
}

func (h *HealthMonitor) checkOne(ctx context.Context, id string) {
	conn := h.manager.get(id)
	if conn == nil {
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, h.interval/2)
	err := conn.session.Ping(pingCtx, &sdk.PingParams{})
	cancel()

	h.mu.Lock()
	if err == nil {
		h.failures[id] = 0
		h.alarmed[id] = false
		h.mu.Unlock()
		return
	}
	h.failures[id]++
	count := h.failures[id]
	raise := count >= h.threshold && !h.alarmed[id]
	if raise {
		h.alarmed[id] = true
	}
	h.mu.Unlock()

	h.logger.Warn("health check failed", "server", id, "consecutive", count, "error", err)
	if raise {
		h.manager.events.emitError(id, fmt.Errorf("server %s unhealthy after %d failed pings: %w", id, count, err))
	}
}
