package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spyglass-browser/spyglass/pkg/mcp"
)

// Connect connects a tool server. The body is either a full server
// config or just an id referring to the stored catalog.
func (h *Handler) Connect(c *gin.Context) {
	var config mcp.ServerConfig
	if err := c.ShouldBindJSON(&config); err != nil {
		respondBadRequest(c, fmt.Errorf("invalid server config: %w", err))
		return
	}

	if config.Command == "" && config.ID != "" {
		ok, err := h.shell.ConnectByID(c.Request.Context(), config.ID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, mcp.ErrServerNotFound) {
				status = http.StatusNotFound
			}
			respondError(c, status, err)
			return
		}
		h.respondConnect(c, config.ID, ok)
		return
	}

	if err := config.Validate(); err != nil {
		respondBadRequest(c, err)
		return
	}

	ok := h.shell.Connect(c.Request.Context(), &config)
	h.respondConnect(c, config.ID, ok)
}

func (h *Handler) respondConnect(c *gin.Context, id string, ok bool) {
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"success":   false,
			"server_id": id,
			"error":     fmt.Sprintf("failed to connect server %s", id),
		})
		return
	}
	respondOK(c, gin.H{"server_id": id})
}

// Disconnect closes one server connection.
func (h *Handler) Disconnect(c *gin.Context) {
	var req struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	if err := h.shell.Disconnect(c.Request.Context(), req.ID); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, gin.H{"server_id": req.ID})
}

// ListServers returns the catalog merged with live connection state.
func (h *Handler) ListServers(c *gin.Context) {
	servers, err := h.shell.GetServers(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, gin.H{"servers": servers})
}

// DeleteServer disconnects and removes one server from the catalog.
func (h *Handler) DeleteServer(c *gin.Context) {
	id := c.Param("id")
	if err := h.shell.DeleteServer(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, mcp.ErrServerNotFound) {
			status = http.StatusNotFound
		}
		respondError(c, status, err)
		return
	}
	respondOK(c, gin.H{"server_id": id})
}

// SetServerEnabled flips one server's enabled flag.
func (h *Handler) SetServerEnabled(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	if err := h.shell.SetServerEnabled(c.Request.Context(), id, *req.Enabled); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, mcp.ErrServerNotFound) {
			status = http.StatusNotFound
		}
		respondError(c, status, err)
		return
	}
	respondOK(c, gin.H{"server_id": id, "enabled": *req.Enabled})
}

// DiscoverTools lists one connected server's tools.
func (h *Handler) DiscoverTools(c *gin.Context) {
	id := c.Param("id")
	tools, err := h.shell.DiscoverTools(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, mcp.ErrNotConnected) {
			status = http.StatusConflict
		}
		respondError(c, status, err)
		return
	}
	respondOK(c, gin.H{"server_id": id, "tools": tools})
}

// CallTool invokes one tool. The HTTP status is always 200: success
// or failure travels inside the result payload.
func (h *Handler) CallTool(c *gin.Context) {
	var call mcp.ToolCall
	if err := c.ShouldBindJSON(&call); err != nil {
		respondBadRequest(c, fmt.Errorf("invalid tool call: %w", err))
		return
	}

	result := h.shell.CallTool(c.Request.Context(), &call)
	c.JSON(http.StatusOK, result)
}

// ListResources lists one connected server's resources.
func (h *Handler) ListResources(c *gin.Context) {
	id := c.Param("id")
	resources, err := h.shell.ListResources(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, mcp.ErrNotConnected) {
			status = http.StatusConflict
		}
		respondError(c, status, err)
		return
	}
	respondOK(c, gin.H{"server_id": id, "resources": resources})
}
