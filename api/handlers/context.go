package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/spyglass-browser/spyglass/pkg/mcp"
	"github.com/spyglass-browser/spyglass/pkg/pagecontext"
)

// UpdateContext records one page observation. Permissions resolve
// from the request, the named server, or the settings default.
func (h *Handler) UpdateContext(c *gin.Context) {
	var req struct {
		URL         string                   `json:"url" binding:"required"`
		Title       string                   `json:"title"`
		Selection   string                   `json:"selection"`
		ServerID    string                   `json:"server_id"`
		Permissions *pagecontext.Permissions `json:"permissions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, fmt.Errorf("invalid context update: %w", err))
		return
	}

	filtered, err := h.shell.UpdateContext(c.Request.Context(), pagecontext.RawContext{
		URL:       req.URL,
		Title:     req.Title,
		Selection: req.Selection,
	}, req.ServerID, req.Permissions)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, mcp.ErrServerNotFound) {
			status = http.StatusNotFound
		}
		respondError(c, status, err)
		return
	}
	respondOK(c, gin.H{"context": filtered})
}

// GetContext returns the most recent capture, or null when none
// exists yet.
func (h *Handler) GetContext(c *gin.Context) {
	pc, ok := h.shell.GetContext()
	if !ok {
		respondOK(c, gin.H{"context": nil})
		return
	}
	respondOK(c, gin.H{"context": pc})
}

// GetContextHistory returns recent captures, most recent first.
func (h *Handler) GetContextHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondBadRequest(c, fmt.Errorf("invalid limit: %q", raw))
			return
		}
		limit = parsed
	}
	respondOK(c, gin.H{"history": h.shell.GetContextHistory(limit)})
}
