package auth

import (
	"maps"
	"sync"
)

// Session is what a successful login leaves behind.
type Session struct {
	// Claims are the decoded JWT claims of Token, or the login response itself when the
	// gateway does not return a JWT.
	Claims map[string]any
	Token  string
}

// TokenStore keeps the current session between calls.
type TokenStore interface {
	Load() (Session, bool)
	Store(Session)
	Clear()
}

// MemoryStore is a TokenStore held in process memory. It is safe for concurrent use.
type MemoryStore struct {
	session *Session
	mu      sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return Session{}, false
	}
	return Session{Token: m.session.Token, Claims: maps.Clone(m.session.Claims)}, true
}

func (m *MemoryStore) Store(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &Session{Token: s.Token, Claims: maps.Clone(s.Claims)}
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
}
