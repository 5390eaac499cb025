package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Status returns the shell summary used by the status TUI.
func (h *Handler) Status(c *gin.Context) {
	status, err := h.shell.Status(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, gin.H{"status": status})
}
