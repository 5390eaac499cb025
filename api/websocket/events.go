package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/spyglass-browser/spyglass/pkg/log"
)

// Event is one shell event pushed to the UI process.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Event types pushed over the socket.
const (
	EventTypeServerConnected    = "server-connected"
	EventTypeServerDisconnected = "server-disconnected"
	EventTypeToolsDiscovered    = "tools-discovered"
	EventTypeMCPError           = "mcp-error"
	EventTypeContextUpdated     = "context-updated"
	EventTypeHistoryCleared     = "history-cleared"
)

// BroadcastEvent serializes and pushes one event to every client.
func (h *Hub) BroadcastEvent(eventType string, data interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Warn("failed to serialize event", "type", eventType, "error", err)
		return
	}
	h.BroadcastMessage(payload)
}

// NewEventHandler returns the gin handler upgrading /ws connections
// into the hub.
func NewEventHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "failed to upgrade connection"})
			return
		}

		clientID := uuid.New().String()
		client := NewClient(hub, conn, clientID)
		hub.RegisterClient(client)

		welcome := Event{
			Type:      "connected",
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"client_id": clientID},
		}
		if payload, err := json.Marshal(welcome); err == nil {
			select {
			case client.send <- payload:
			default:
			}
		}

		go client.WritePump()
		client.ReadPump()
	}
}
