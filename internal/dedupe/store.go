// Package dedupe remembers channel message IDs so redelivered webhooks are
// answered once.
package dedupe

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long a processed ID is remembered when no TTL is given.
const DefaultTTL = 72 * time.Hour

// Store records message IDs per channel. Callers check with AlreadyProcessed
// before handling a message and call MarkProcessed only once it succeeded, so
// a failed attempt can be redelivered.
type Store interface {
	AlreadyProcessed(ctx context.Context, channel, messageID string) (bool, error)
	// MarkProcessed returns true the first time (channel, messageID) is marked.
	MarkProcessed(ctx context.Context, channel, messageID string) (bool, error)
}

// Pruner is implemented by stores that need expired IDs deleted explicitly.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// MemoryStore keeps IDs for ttl. Zero ttl keeps them forever.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (m *MemoryStore) AlreadyProcessed(ctx context.Context, channel, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(channel+":"+messageID, m.now()), nil
}

func (m *MemoryStore) MarkProcessed(ctx context.Context, channel, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	key := channel + ":" + messageID
	if m.live(key, now) {
		return false, nil
	}
	m.seen[key] = now
	if m.ttl > 0 && len(m.seen)%256 == 0 {
		m.sweep(now)
	}
	return true, nil
}

// Prune drops expired IDs.
func (m *MemoryStore) Prune(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ttl <= 0 {
		return 0, nil
	}
	return m.sweep(m.now()), nil
}

func (m *MemoryStore) live(key string, now time.Time) bool {
	at, ok := m.seen[key]
	return ok && (m.ttl <= 0 || now.Sub(at) < m.ttl)
}

func (m *MemoryStore) sweep(now time.Time) int64 {
	var n int64
	for k, at := range m.seen {
		if now.Sub(at) >= m.ttl {
			delete(m.seen, k)
			n++
		}
	}
	return n
}
