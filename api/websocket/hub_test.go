package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func dialTestServer(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", NewEventHandler(hub))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

func TestClientReceivesWelcome(t *testing.T) {
	hub := startHub(t)
	conn := dialTestServer(t, hub)

	welcome := readEvent(t, conn)
	assert.Equal(t, "connected", welcome.Type)

	data, ok := welcome.Data.(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, data["client_id"])
}

func TestBroadcastEventReachesAllClients(t *testing.T) {
	hub := startHub(t)

	first := dialTestServer(t, hub)
	second := dialTestServer(t, hub)
	readEvent(t, first)
	readEvent(t, second)

	assert.Eventually(t, func() bool {
		return hub.GetClientCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastEvent(EventTypeServerConnected, map[string]string{"server_id": "s1"})

	for _, conn := range []*websocket.Conn{first, second} {
		event := readEvent(t, conn)
		assert.Equal(t, EventTypeServerConnected, event.Type)
		assert.False(t, event.Timestamp.IsZero())

		data, ok := event.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "s1", data["server_id"])
	}
}

func TestClientDisconnectLowersCount(t *testing.T) {
	hub := startHub(t)

	conn := dialTestServer(t, hub)
	readEvent(t, conn)

	assert.Eventually(t, func() bool {
		return hub.GetClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return hub.GetClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	hub.Stop()
	hub.Stop()

	// Broadcast after stop must not block.
	done := make(chan struct{})
	go func() {
		hub.BroadcastEvent(EventTypeMCPError, "late")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast after stop blocked")
	}
}
