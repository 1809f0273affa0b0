// Package ratelimit throttles POST requests per client and path over a sliding window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one counted request.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the oldest request in the window expires.
	// Zero when allowed.
	RetryAfter time.Duration
}

// Store counts requests per key within a sliding window.
type Store interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Decision, error)
}

// sweepAbove is the tracked-key count beyond which idle keys are dropped.
const sweepAbove = 5000

// MemoryStore keeps a timestamp log per key.
type MemoryStore struct {
	mu   sync.Mutex
	logs map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]time.Time)}
}

func (m *MemoryStore) Hit(_ context.Context, key string, now time.Time, window time.Duration, limit int) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-window)
	log := prune(m.logs[key], cutoff)

	if len(log) >= limit {
		m.logs[key] = log
		return Decision{RetryAfter: log[0].Add(window).Sub(now)}, nil
	}

	log = append(log, now)
	m.logs[key] = log
	if len(m.logs) > sweepAbove {
		m.sweep(cutoff)
	}
	return Decision{Allowed: true, Remaining: limit - len(log)}, nil
}

func (m *MemoryStore) sweep(cutoff time.Time) {
	for k, log := range m.logs {
		if len(log) == 0 || !log[len(log)-1].After(cutoff) {
			delete(m.logs, k)
		}
	}
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

// prune drops timestamps at or before cutoff. log is sorted ascending.
func prune(log []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return log
	}
	return append(log[:0], log[i:]...)
}
