package session

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Get(ctx context.Context, contactID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[contactID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.clone(), nil
}

func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ContactID]; ok {
		return ErrSessionExists
	}
	m.sessions[s.ContactID] = s.clone()
	return nil
}

// Update bumps s.Version on success.
func (m *MemoryStore) Update(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[s.ContactID]
	if !ok {
		return ErrSessionNotFound
	}
	if stored.Version != s.Version {
		return ErrVersionConflict
	}
	s.Version++
	m.sessions[s.ContactID] = s.clone()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, contactID string, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[contactID]
	if !ok {
		return ErrSessionNotFound
	}
	if stored.Version != version {
		return ErrVersionConflict
	}
	delete(m.sessions, contactID)
	return nil
}
