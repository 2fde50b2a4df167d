package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60

	sendBuffer = 64
)

// Publisher forwards session events to other instances.
type Publisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error
}

// Subscriber delivers session events published by any instance.
type Subscriber interface {
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains session_id -> set of reception screens and fans out admission events.
// With Redis configured every event goes through the channel once, so all instances
// (this one included) deliver it from their subscription.
type Hub struct {
	sessions map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func()
	mu       sync.RWMutex
	logger   *zap.Logger
	pub      Publisher
	sub      Subscriber
}

// NewHub creates a hub. pub and sub may be nil for a single-instance deployment.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		pub:      pub,
		sub:      sub,
	}
}

// Register adds a client to its session room, subscribing to the session channel on first join.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[c.SessionID] == nil {
		h.sessions[c.SessionID] = make(map[string]*Client)
		if h.sub != nil {
			sessionID := c.SessionID
			cancel, err := h.sub.SubscribeSession(sessionID, func(event string, payload []byte) {
				h.broadcast(sessionID, event, payload)
			})
			if err != nil {
				h.logger.Warn("session subscribe failed", zap.String("session_id", sessionID.String()), zap.Error(err))
			} else {
				h.subs[sessionID] = cancel
			}
		}
	}
	h.sessions[c.SessionID][c.ID] = c
	h.logger.Debug("screen joined session", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID.String()))
}

// Unregister removes a client and drops the subscription when the room empties.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.sessions[c.SessionID]
	if !ok {
		return
	}
	if _, ok := m[c.ID]; !ok {
		return
	}
	delete(m, c.ID)
	close(c.send)
	if len(m) == 0 {
		delete(h.sessions, c.SessionID)
		if cancel, ok := h.subs[c.SessionID]; ok {
			cancel()
			delete(h.subs, c.SessionID)
		}
	}
	h.logger.Debug("screen left session", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID.String()))
}

// PublishSessionEvent delivers an admission event to every screen watching the session.
func (h *Hub) PublishSessionEvent(sessionID uuid.UUID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal session event", zap.String("event", event), zap.Error(err))
		return
	}
	if h.pub != nil {
		err := h.pub.PublishSessionEvent(sessionID, event, data)
		if err == nil {
			return
		}
		h.logger.Warn("session event publish failed, delivering locally",
			zap.String("session_id", sessionID.String()), zap.String("event", event), zap.Error(err))
	}
	h.broadcast(sessionID, event, data)
}

// Watchers returns the number of connected screens for a session.
func (h *Hub) Watchers(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Close disconnects every screen and cancels all subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, m := range h.sessions {
		for _, c := range m {
			close(c.send)
		}
		delete(h.sessions, id)
	}
	for id, cancel := range h.subs {
		cancel()
		delete(h.subs, id)
	}
}

func (h *Hub) broadcast(sessionID uuid.UUID, event string, data []byte) {
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.sessions[sessionID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("screen buffer full, dropping event", zap.String("client_id", c.ID), zap.String("event", event))
		}
	}
}
