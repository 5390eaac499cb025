package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SearchHistory searches the browsing history. Without a query it
// returns the most recent entries.
func (h *Handler) SearchHistory(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondBadRequest(c, fmt.Errorf("invalid limit: %q", raw))
			return
		}
		limit = parsed
	}

	query := c.Query("q")
	ctx := c.Request.Context()

	if query == "" {
		entries, err := h.shell.RecentHistory(ctx, limit)
		if err != nil {
			respondError(c, http.StatusInternalServerError, err)
			return
		}
		respondOK(c, gin.H{"entries": entries})
		return
	}

	entries, err := h.shell.SearchHistory(ctx, query, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, gin.H{"entries": entries, "query": query})
}
