package conversation

import (
	"context"
	"sync"
)

// MemoryStore keeps turns per contact in append order.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]*Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string][]*Turn)}
}

func (m *MemoryStore) Append(ctx context.Context, turn *Turn) error {
	cp := *turn
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.turns[turn.ContactID], &cp)
	// keep creation order even if a concurrent append landed first
	for i := len(list) - 1; i > 0 && list[i].CreatedAt.Before(list[i-1].CreatedAt); i-- {
		list[i], list[i-1] = list[i-1], list[i]
	}
	m.turns[turn.ContactID] = list
	return nil
}

func (m *MemoryStore) Recent(ctx context.Context, contactID string, limit int) ([]*Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.turns[contactID]
	if limit > len(all) {
		limit = len(all)
	}
	out := make([]*Turn, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) All(ctx context.Context, contactID string) ([]*Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.turns[contactID]
	out := make([]*Turn, len(all))
	for i, t := range all {
		cp := *t
		out[i] = &cp
	}
	return out, nil
}
