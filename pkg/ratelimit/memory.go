package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is a per-process sliding window limiter used when Redis is disabled.
type Memory struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	hits    map[string][]time.Time
	maxKeys int
	now     func() time.Time
}

// NewMemory builds an in-memory limiter allowing limit hits per window.
func NewMemory(limit int, window time.Duration) *Memory {
	limit, window = normalise(limit, window)
	return &Memory{
		limit:   limit,
		window:  window,
		hits:    make(map[string][]time.Time),
		maxKeys: 5000,
		now:     time.Now,
	}
}

// Allow records a hit for key unless the window is already full.
func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := m.now().UTC()
	threshold := now.Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	hits := m.hits[key]
	filtered := make([]time.Time, 0, len(hits)+1)
	for _, hit := range hits {
		if hit.After(threshold) {
			filtered = append(filtered, hit)
		}
	}

	if len(filtered) >= m.limit {
		m.hits[key] = filtered
		retryAfter := filtered[0].Add(m.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter, nil
	}

	m.hits[key] = append(filtered, now)

	if len(m.hits) > m.maxKeys {
		for k, v := range m.hits {
			if len(v) == 0 || v[len(v)-1].Before(threshold) {
				delete(m.hits, k)
			}
		}
	}

	return true, 0, nil
}
