// Package ratelimit enforces a per-identity request budget over a sliding
// window. Memory is process-local; Redis shares the budget across replicas.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter reports whether key may make another request now. When it may not,
// retryAfter is how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

type visitor struct {
	hits     []time.Time
	lastSeen time.Time
}

// Memory keeps a log of admitted requests per key and admits at most limit
// of them in any window, the same rule the Redis backend applies.
type Memory struct {
	limit  int
	window time.Duration
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
	lookups  uint64
}

// NewMemory allows limit requests per window for each key.
func NewMemory(limit int, window time.Duration) *Memory {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Memory{
		limit:    limit,
		window:   window,
		ttl:      10 * window,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Allow implements Limiter. It never returns an error. Rejected calls are not
// logged, so they do not push the next opening further out.
func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.visitor(key, now)
	cutoff := now.Add(-m.window)
	i := 0
	for i < len(v.hits) && !v.hits[i].After(cutoff) {
		i++
	}
	v.hits = v.hits[i:]
	if len(v.hits) >= m.limit {
		return false, v.hits[0].Add(m.window).Sub(now), nil
	}
	v.hits = append(v.hits, now)
	return true, 0, nil
}

// visitor evicts idle keys every 5000 lookups before touching key.
// m.mu must be held.
func (m *Memory) visitor(key string, now time.Time) *visitor {
	m.lookups++
	if m.lookups >= 5000 {
		for k, v := range m.visitors {
			if now.Sub(v.lastSeen) >= m.ttl {
				delete(m.visitors, k)
			}
		}
		m.lookups = 0
	}

	if v, ok := m.visitors[key]; ok {
		v.lastSeen = now
		return v
	}
	v := &visitor{hits: make([]time.Time, 0, m.limit), lastSeen: now}
	m.visitors[key] = v
	return v
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visitors)
}
