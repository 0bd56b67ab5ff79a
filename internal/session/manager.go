// Package session issues and tracks reconnect tokens. A session binds
// a verified user ID to an opaque token with a sliding lease; the
// gateway resolves tokens to user IDs on connect and the rest of the
// server trusts the resolved ID.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is one authenticated client session.
type Session struct {
	Token        string
	UserID       int64
	CreatedAt    time.Time
	LastActivity time.Time
}

// Manager tracks live sessions and expires idle ones.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	lease    time.Duration
	logger   *zap.Logger
}

// NewManager creates a session manager with the given lease period.
func NewManager(lease time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		lease:    lease,
		logger:   logger,
	}
}

// Create issues a new session for the user and returns a copy.
func (m *Manager) Create(userID int64) Session {
	now := time.Now()
	s := &Session{
		Token:        uuid.NewString(),
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
	}

	m.mu.Lock()
	m.sessions[s.Token] = s
	m.mu.Unlock()

	m.logger.Info("session created", zap.Int64("user_id", userID))
	return *s
}

// Get resolves a token to its session and slides the lease. Expired
// tokens behave as unknown.
func (m *Manager) Get(token string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return Session{}, false
	}
	if time.Since(s.LastActivity) > m.lease {
		delete(m.sessions, token)
		return Session{}, false
	}
	s.LastActivity = time.Now()
	return *s, true
}

// Remove deletes a session (logout).
func (m *Manager) Remove(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// RemoveUserSessions deletes every session of a user (logout from all
// devices). Returns the number removed.
func (m *Manager) RemoveUserSessions(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for token, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, token)
			removed++
		}
	}
	return removed
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupExpiredSessions drops idle sessions until the context is
// cancelled.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) {
	ticker := time.NewTicker(m.lease / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.expire(time.Now()); n > 0 {
				m.logger.Debug("expired sessions", zap.Int("count", n))
			}
		}
	}
}

func (m *Manager) expire(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for token, s := range m.sessions {
		if now.Sub(s.LastActivity) > m.lease {
			delete(m.sessions, token)
			expired++
		}
	}
	return expired
}

// CloseAll drops every session during shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.sessions)
	m.sessions = make(map[string]*Session)
	m.logger.Info("closed all sessions", zap.Int("count", n))
}
