package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/placepass/backend/pkg/response"
)

// EventSnapshot is sent to a screen right after it connects.
const EventSnapshot = "snapshot"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // screens authenticate with the token query parameter
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is one reception screen watching an admission session.
type Client struct {
	ID         string
	SessionID  uuid.UUID
	OperatorID uuid.UUID
	hub        *Hub
	conn       *websocket.Conn
	send       chan WSMessage
	logger     *zap.Logger
}

// TokenValidator resolves a bearer token to an operator ID.
type TokenValidator func(token string) (uuid.UUID, error)

// SnapshotFunc returns the current view of a session, or false if it does not exist.
type SnapshotFunc func(sessionID uuid.UUID) (any, bool)

// ServeWs handles GET /ws?session_id=&token= and streams session events to the screen.
func ServeWs(hub *Hub, validate TokenValidator, snapshot SnapshotFunc, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		sessionIDStr := c.Query("session_id")
		token := c.Query("token")
		if sessionIDStr == "" || token == "" {
			response.BadRequest(c, "session_id and token required")
			return
		}
		sessionID, err := uuid.Parse(sessionIDStr)
		if err != nil {
			response.BadRequest(c, "invalid session_id")
			return
		}
		operatorID, err := validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		var initial any
		if snapshot != nil {
			view, ok := snapshot(sessionID)
			if !ok {
				response.NotFound(c, "session not found")
				return
			}
			initial = view
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := &Client{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			OperatorID: operatorID,
			hub:        hub,
			conn:       conn,
			send:       make(chan WSMessage, sendBuffer),
			logger:     logger,
		}
		if initial != nil {
			if data, err := json.Marshal(initial); err == nil {
				client.send <- WSMessage{Event: EventSnapshot, Data: data}
			}
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

// readPump only keeps the connection alive; screens do not send commands.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("screen read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
