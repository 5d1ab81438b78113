// internal/handler/websocket_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mavgate/internal/utils"
)

// WebSocketHandler streams link lifecycle events to WebSocket clients
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	eventBus    *EventBus
	logger      *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler fed by the event bus
func NewWebSocketHandler(eventBus *EventBus, logger *zap.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	handler := &WebSocketHandler{
		upgrader:    upgrader,
		connections: NewConnectionManager(),
		eventBus:    eventBus,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
	}

	go handler.forwardEvents()

	return handler
}

// HandleEventConnection upgrades the request and streams gateway events
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// ClientCount returns the number of connected event stream clients
func (h *WebSocketHandler) ClientCount() int {
	return h.connections.Count()
}

// forwardEvents relays link events from the bus to connected clients
func (h *WebSocketHandler) forwardEvents() {
	opened := h.eventBus.Subscribe("link.opened")
	closed := h.eventBus.Subscribe("link.closed")

	for {
		var event Event
		select {
		case event = <-opened:
		case event = <-closed:
		}

		message := WebSocketMessage{
			Type:      event.Type,
			Data:      event.Data,
			Timestamp: event.Timestamp,
		}

		payload, err := json.Marshal(message)
		if err != nil {
			h.logger.Error("Failed to marshal event", zap.Error(err))
			continue
		}

		h.connections.Broadcast(payload)
	}
}

// handleClientRead drains client messages; inbound content is ignored
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	client.Connection.SetReadLimit(512)
	client.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := client.Connection.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
			}
			return
		}
	}
}

// handleClientWrite pumps queued messages and pings to the client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
