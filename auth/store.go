package auth

import (
	"context"
	"sync"
	"time"
)

// RefreshStore remembers issued refresh ids. Each id can be consumed once.
type RefreshStore interface {
	Save(ctx context.Context, id, subject string, expiresAt time.Time) error
	// Consume removes id and reports whether it belonged to subject and was
	// still valid at now.
	Consume(ctx context.Context, id, subject string, now time.Time) (bool, error)
}

const memoryStoreSweepAbove = 5000

type storedRefresh struct {
	subject   string
	expiresAt time.Time
}

type MemoryRefreshStore struct {
	mu     sync.Mutex
	tokens map[string]storedRefresh
}

func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{tokens: make(map[string]storedRefresh)}
}

func (m *MemoryRefreshStore) Save(_ context.Context, id, subject string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tokens) > memoryStoreSweepAbove {
		now := time.Now()
		for k, v := range m.tokens {
			if !v.expiresAt.After(now) {
				delete(m.tokens, k)
			}
		}
	}
	m.tokens[id] = storedRefresh{subject: subject, expiresAt: expiresAt}
	return nil
}

func (m *MemoryRefreshStore) Consume(_ context.Context, id, subject string, now time.Time) (bool, error) {
	m.mu.Lock()
	stored, ok := m.tokens[id]
	delete(m.tokens, id)
	m.mu.Unlock()

	if !ok || stored.subject != subject {
		return false, nil
	}
	return stored.expiresAt.After(now), nil
}

func (m *MemoryRefreshStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}
