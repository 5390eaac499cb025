package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AssistantQuery runs one assistant query.
func (h *Handler) AssistantQuery(c *gin.Context) {
	var req struct {
		Query string `json:"query" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, fmt.Errorf("invalid query: %w", err))
		return
	}

	resp, err := h.shell.ProcessQuery(c.Request.Context(), req.Query)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, gin.H{"response": resp})
}
