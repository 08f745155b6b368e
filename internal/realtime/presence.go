package realtime

import (
	"context"
	"sync"
	"time"

	"messenger/internal/domain/user"
)

// ConnectionID identifies one live transport connection.
type ConnectionID string

// PresenceStore is the source of online/offline truth: a bidirectional
// user to connection mapping. A user maps to at most one connection; the
// last registration wins. Implementations must be safe for concurrent use
// from many connection handlers.
//
// The in-memory implementation is per-process: a second instance has an
// independent view. Multi-instance deployments plug in a shared store
// (see infra/presence/redis).
type PresenceStore interface {
	// Register records the mapping, atomically replacing any prior
	// connection for the same user. It returns the replaced connection
	// id, if any.
	Register(ctx context.Context, userID user.ID, connID ConnectionID) (ConnectionID, error)
	// Unregister removes the mapping owned by connID. Removing an
	// unknown or already-replaced connection is a no-op.
	Unregister(ctx context.Context, connID ConnectionID) error
	// UnregisterUser removes whatever mapping the user currently has.
	UnregisterUser(ctx context.Context, userID user.ID) error
	// Touch refreshes liveness for stores with expiring entries.
	Touch(ctx context.Context, userID user.ID, connID ConnectionID) error
	IsOnline(ctx context.Context, userID user.ID) (bool, error)
	ConnectionFor(ctx context.Context, userID user.ID) (ConnectionID, bool, error)
	// LastSeen reports when the user last disconnected. Zero when the
	// user is online or was never seen.
	LastSeen(ctx context.Context, userID user.ID) (time.Time, bool, error)
	Count(ctx context.Context) (int, error)
}

// MemoryPresence keeps presence in process memory behind one mutex.
type MemoryPresence struct {
	mu       sync.RWMutex
	byUser   map[user.ID]ConnectionID
	byConn   map[ConnectionID]user.ID
	lastSeen map[user.ID]time.Time
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{
		byUser:   make(map[user.ID]ConnectionID),
		byConn:   make(map[ConnectionID]user.ID),
		lastSeen: make(map[user.ID]time.Time),
	}
}

func (p *MemoryPresence) Register(ctx context.Context, userID user.ID, connID ConnectionID) (ConnectionID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prior := p.byUser[userID]
	if prior != "" {
		delete(p.byConn, prior)
	}
	p.byUser[userID] = connID
	p.byConn[connID] = userID
	delete(p.lastSeen, userID)
	return prior, nil
}

func (p *MemoryPresence) Unregister(ctx context.Context, connID ConnectionID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	userID, ok := p.byConn[connID]
	if !ok {
		return nil
	}
	delete(p.byConn, connID)
	// Only drop the user mapping if this connection still owns it; a
	// newer connection may have replaced it already.
	if p.byUser[userID] == connID {
		delete(p.byUser, userID)
		p.lastSeen[userID] = time.Now().UTC()
	}
	return nil
}

func (p *MemoryPresence) UnregisterUser(ctx context.Context, userID user.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	connID, ok := p.byUser[userID]
	if !ok {
		return nil
	}
	delete(p.byUser, userID)
	delete(p.byConn, connID)
	p.lastSeen[userID] = time.Now().UTC()
	return nil
}

func (p *MemoryPresence) Touch(ctx context.Context, userID user.ID, connID ConnectionID) error {
	return nil
}

func (p *MemoryPresence) IsOnline(ctx context.Context, userID user.ID) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byUser[userID]
	return ok, nil
}

func (p *MemoryPresence) ConnectionFor(ctx context.Context, userID user.ID) (ConnectionID, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	connID, ok := p.byUser[userID]
	return connID, ok, nil
}

func (p *MemoryPresence) LastSeen(ctx context.Context, userID user.ID) (time.Time, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	seen, ok := p.lastSeen[userID]
	return seen, ok, nil
}

func (p *MemoryPresence) Count(ctx context.Context) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser), nil
}

var _ PresenceStore = (*MemoryPresence)(nil)
