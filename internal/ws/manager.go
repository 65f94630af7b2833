package ws

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Manager tracks the single active live-channel connection per user. A new
// connection for the same user replaces the old one.
type Manager struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewManager creates an empty connection manager.
func NewManager() *Manager {
	return &Manager{active: make(map[string]*websocket.Conn)}
}

// Register installs the connection as the user's active one, closing any
// previous connection.
func (m *Manager) Register(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[userID]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "connection replaced")
	}
	m.active[userID] = conn
	slog.Info("Live channel registered", "user_id", userID)
}

// Unregister removes the connection if it is still the user's active one.
// Returns false when the connection was already replaced, in which case the
// departure must not be treated as a disconnect.
func (m *Manager) Unregister(userID string, conn *websocket.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[userID]; ok && current == conn {
		delete(m.active, userID)
		slog.Info("Live channel unregistered", "user_id", userID)
		return true
	}
	return false
}

// IsConnected reports whether the user has an active live channel.
func (m *Manager) IsConnected(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[userID]
	return ok
}
