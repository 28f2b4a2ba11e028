// internal/handler/websocket_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"calibrator-service/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocketHandler streams operation state events to clients. Each connection
// gets its own event bus subscription; the subscription is dropped when the
// client goes away.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	events   *service.EventBus
	logger   *zap.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(events *service.EventBus, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// In production, implement proper origin checking
				return true
			},
		},
		events: events,
		logger: logger.With(zap.String("component", "websocket-handler")),
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.HandleEvents)
}

// HandleEvents upgrades the connection and streams state events until the
// client disconnects.
func (h *WebSocketHandler) HandleEvents(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	events, cancel := h.events.Subscribe()
	h.logger.Info("WebSocket client connected",
		zap.String("remote_addr", c.Request.RemoteAddr),
	)

	done := make(chan struct{})
	go h.readLoop(conn, done)
	h.writeLoop(conn, events, done)

	cancel()
	conn.Close()
	h.logger.Info("WebSocket client disconnected",
		zap.String("remote_addr", c.Request.RemoteAddr),
	)
}

// readLoop discards client messages and detects disconnects. The stream is
// one-way; reads exist only to service close and pong frames.
func (h *WebSocketHandler) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *WebSocketHandler) writeLoop(conn *websocket.Conn, events <-chan service.StateEvent, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Warn("WebSocket write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
