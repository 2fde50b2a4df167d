package admission

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/placepass/backend/internal/apperr"
)

// PollerFactory returns a fresh Poller for a new session.
type PollerFactory func() Poller

// Manager holds the live reception sessions.
type Manager struct {
	deps      Deps
	newPoller PollerFactory
	logger    *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Workflow
}

// NewManager creates a session manager. deps.Poller is ignored; every session gets its own from newPoller.
func NewManager(deps Deps, newPoller PollerFactory) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Manager{
		deps:      deps,
		newPoller: newPoller,
		logger:    deps.Logger,
		sessions:  make(map[uuid.UUID]*Workflow),
	}
}

// Create opens a session for a place and date.
func (m *Manager) Create(placeID uuid.UUID, date time.Time) *Workflow {
	deps := m.deps
	deps.Poller = m.newPoller()
	w := NewWorkflow(uuid.New(), placeID, date, deps)

	m.mu.Lock()
	m.sessions[w.ID()] = w
	m.mu.Unlock()
	m.logger.Info("admission session created", zap.String("session_id", w.ID().String()), zap.String("place_id", placeID.String()))
	return w
}

// Get returns a live session.
func (m *Manager) Get(id uuid.UUID) (*Workflow, error) {
	m.mu.RLock()
	w, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return w, nil
}

// Remove closes and forgets a session.
func (m *Manager) Remove(id uuid.UUID) error {
	m.mu.Lock()
	w, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return apperr.ErrNotFound
	}
	w.Close()
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[uuid.UUID]*Workflow)
	m.mu.Unlock()
	for _, w := range sessions {
		w.Close()
	}
	m.logger.Info("admission sessions closed", zap.Int("count", len(sessions)))
}
