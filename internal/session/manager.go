package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is one authenticated connection lease. The lease expires unless
// the client keeps touching it; expired sessions are swept periodically.
type Session struct {
	ID        string
	UserID    string
	Username  string
	RoomID    string
	CreatedAt time.Time
	lastSeen  time.Time
}

// Manager tracks live sessions and enforces the lease period.
type Manager struct {
	logger      *zap.Logger
	leasePeriod time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]string // userID -> session ID
	closed   bool
}

// NewManager creates a session manager with the given lease period.
func NewManager(leasePeriod time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		logger:      logger,
		leasePeriod: leasePeriod,
		sessions:    make(map[string]*Session),
		byUser:      make(map[string]string),
	}
}

// Create registers a new session for the user. A previous session for the
// same user is replaced, disconnecting the older login.
func (m *Manager) Create(userID, username string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("session manager is shut down")
	}

	if oldID, exists := m.byUser[userID]; exists {
		delete(m.sessions, oldID)
	}

	now := time.Now()
	session := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Username:  username,
		CreatedAt: now,
		lastSeen:  now,
	}
	m.sessions[session.ID] = session
	m.byUser[userID] = session.ID

	m.logger.Debug("session created",
		zap.String("session_id", session.ID),
		zap.String("user_id", userID),
	)
	return session, nil
}

// Get returns the session and renews its lease. Expired sessions are
// treated as missing.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, false
	}
	if time.Since(session.lastSeen) > m.leasePeriod {
		m.removeLocked(session)
		return nil, false
	}
	session.lastSeen = time.Now()
	return session, true
}

// Touch renews the session's lease. Called on client activity (inbound
// messages, websocket pongs) so open connections are never swept.
func (m *Manager) Touch(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return false
	}
	session.lastSeen = time.Now()
	return true
}

// BindRoom associates the session with a room so a reconnecting client can
// be routed back to its game.
func (m *Manager) BindRoom(sessionID, roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return false
	}
	session.RoomID = roomID
	return true
}

// Remove closes a session.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, exists := m.sessions[sessionID]; exists {
		m.removeLocked(session)
	}
}

func (m *Manager) removeLocked(session *Session) {
	delete(m.sessions, session.ID)
	if m.byUser[session.UserID] == session.ID {
		delete(m.byUser, session.UserID)
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupExpiredSessions sweeps expired leases until the context is
// cancelled. Run it as a goroutine.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) {
	interval := m.leasePeriod / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, session := range m.sessions {
		if time.Since(session.lastSeen) > m.leasePeriod {
			m.removeLocked(session)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("swept expired sessions",
			zap.Int("removed", removed),
			zap.Int("remaining", len(m.sessions)),
		)
	}
}

// CloseAll drops every session and rejects new ones. Called on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := len(m.sessions)
	m.sessions = make(map[string]*Session)
	m.byUser = make(map[string]string)
	m.closed = true

	m.logger.Info("closed all sessions", zap.Int("count", count))
}
