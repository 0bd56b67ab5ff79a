// Package invite manages game invitations between players. An
// invitation is resolved at most once: accepted, rejected, or expired
// by the sweep once its TTL passes. An accepted invitation is bound to
// exactly one game and is immutable afterwards.
package invite

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvitationNotFound means the invitation ID is unknown or the
	// record was already pruned.
	ErrInvitationNotFound = errors.New("invitation not found")
	// ErrNotInvitee means someone other than the target tried to
	// respond.
	ErrNotInvitee = errors.New("invitation addressed to another user")
	// ErrAlreadyResolved means the invitation was already accepted,
	// rejected or expired.
	ErrAlreadyResolved = errors.New("invitation already resolved")
)

// Status is the lifecycle state of an invitation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Invitation is a challenge from one player to another.
type Invitation struct {
	ID          string
	FromUserID  int64
	ToUserID    int64
	Status      Status
	GameID      string // set once when an accepted invitation starts a game
	CreatedAt   time.Time
	RespondedAt time.Time
}

// resolvedRetention is how long resolved invitations are kept around
// for late lookups before the sweep drops them.
const resolvedRetention = time.Hour

// Manager owns all invitation records.
type Manager struct {
	mu      sync.RWMutex
	invites map[string]*Invitation
	ttl     time.Duration
	logger  *zap.Logger
}

// NewManager creates an invitation manager. Pending invitations older
// than ttl are expired by CleanupExpired.
func NewManager(ttl time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		invites: make(map[string]*Invitation),
		ttl:     ttl,
		logger:  logger,
	}
}

// Create registers a new pending invitation and returns a copy of it.
func (m *Manager) Create(fromUserID, toUserID int64) Invitation {
	inv := &Invitation{
		ID:         uuid.NewString(),
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}

	m.mu.Lock()
	m.invites[inv.ID] = inv
	m.mu.Unlock()

	m.logger.Info("invitation created",
		zap.String("invitation_id", inv.ID),
		zap.Int64("from", fromUserID),
		zap.Int64("to", toUserID),
	)

	return *inv
}

// Get returns a copy of the invitation.
func (m *Manager) Get(id string) (Invitation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invites[id]
	if !ok {
		return Invitation{}, false
	}
	return *inv, true
}

// Accept resolves a pending invitation. Only the invited user may
// accept, and only once.
func (m *Manager) Accept(id string, userID int64) (Invitation, error) {
	return m.resolve(id, userID, StatusAccepted)
}

// Reject resolves a pending invitation as rejected.
func (m *Manager) Reject(id string, userID int64) (Invitation, error) {
	return m.resolve(id, userID, StatusRejected)
}

func (m *Manager) resolve(id string, userID int64, status Status) (Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invites[id]
	if !ok {
		return Invitation{}, ErrInvitationNotFound
	}
	if inv.ToUserID != userID {
		return Invitation{}, ErrNotInvitee
	}
	if inv.Status != StatusPending {
		return Invitation{}, ErrAlreadyResolved
	}

	inv.Status = status
	inv.RespondedAt = time.Now()
	return *inv, nil
}

// AttachGame binds the game created from an accepted invitation. The
// binding happens at most once.
func (m *Manager) AttachGame(id, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invites[id]
	if !ok {
		return ErrInvitationNotFound
	}
	if inv.Status != StatusAccepted || inv.GameID != "" {
		return ErrAlreadyResolved
	}

	inv.GameID = gameID
	return nil
}

// PendingFor returns the pending invitations addressed to a user.
func (m *Manager) PendingFor(userID int64) []Invitation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Invitation
	for _, inv := range m.invites {
		if inv.ToUserID == userID && inv.Status == StatusPending {
			out = append(out, *inv)
		}
	}
	return out
}

// CleanupExpired periodically expires stale pending invitations and
// prunes old resolved records until the context is cancelled.
func (m *Manager) CleanupExpired(ctx context.Context) {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.sweep(time.Now()); n > 0 {
				m.logger.Debug("expired invitations", zap.Int("count", n))
			}
		}
	}
}

// sweep expires pending invitations past the TTL and deletes resolved
// ones past the retention window. Returns the number expired.
func (m *Manager) sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for id, inv := range m.invites {
		switch inv.Status {
		case StatusPending:
			if now.Sub(inv.CreatedAt) > m.ttl {
				inv.Status = StatusExpired
				inv.RespondedAt = now
				expired++
			}
		default:
			if now.Sub(inv.RespondedAt) > resolvedRetention {
				delete(m.invites, id)
			}
		}
	}
	return expired
}
