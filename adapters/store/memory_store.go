package store

import (
	"context"
	"sync"

	"github.com/dexmail/dexmail-go/core"
	"github.com/dexmail/dexmail-go/ports"
)

// MemoryStore is an in-memory SessionStore, primarily for tests and
// single-process use. Both slots live behind one pointer so they can
// never be cleared partially.
type MemoryStore struct {
	mu      sync.RWMutex
	session *core.Session
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() ports.SessionStore {
	return &MemoryStore{}
}

// Save writes the session, replacing any previous one.
func (s *MemoryStore) Save(ctx context.Context, session core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &session
	return nil
}

// Load returns the persisted session.
func (s *MemoryStore) Load(ctx context.Context) (core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return core.Session{}, core.ErrNoSession
	}
	return *s.session, nil
}

// Clear removes the session.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}
