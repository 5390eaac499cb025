// Package handlers implements the boundary API routes. Every response
// is a structured {success, ..., error?} payload: the UI process on
// the other side never sees a bare error.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spyglass-browser/spyglass/pkg/shell"
)

// Handler serves every API route over the shell service.
type Handler struct {
	shell *shell.Service
}

// New creates the handler set.
func New(svc *shell.Service) *Handler {
	return &Handler{shell: svc}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func respondOK(c *gin.Context, payload gin.H) {
	payload["success"] = true
	c.JSON(http.StatusOK, payload)
}

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func respondBadRequest(c *gin.Context, err error) {
	respondError(c, http.StatusBadRequest, err)
}
