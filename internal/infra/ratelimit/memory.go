package ratelimit

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"contractseal/internal/domain"
)

// ErrCapacity is returned when every tracked window is still open and a new
// key would exceed MaxKeys.
var ErrCapacity = errors.New("rate limiter capacity exceeded")

type MemoryLimiterConfig struct {
	Now     func() time.Time
	MaxKeys int
}

// MemoryLimiter counts requests per key in fixed windows inside one process.
// Windows are kept in a heap ordered by reset time so closed ones are dropped
// without scanning every key.
type MemoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	maxKeys int
	open    map[string]*counter
	byReset resetQueue
}

type counter struct {
	key     string
	hits    int
	resetAt time.Time
}

func NewMemoryLimiter(cfg MemoryLimiterConfig) *MemoryLimiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	return &MemoryLimiter{
		now:     cfg.Now,
		maxKeys: cfg.MaxKeys,
		open:    make(map[string]*counter),
	}
}

var _ domain.RateLimiter = (*MemoryLimiter)(nil)

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeExpired(now)
	c, ok := m.open[key]
	if !ok {
		if len(m.open) >= m.maxKeys {
			return domain.RateLimitDecision{}, ErrCapacity
		}
		c = &counter{key: key, resetAt: now.Add(window)}
		m.open[key] = c
		heap.Push(&m.byReset, c)
	}

	decision := domain.RateLimitDecision{Limit: limit, ResetAt: c.resetAt}
	if c.hits >= limit {
		return decision, nil
	}
	c.hits++
	decision.Allowed = true
	decision.Remaining = limit - c.hits
	return decision, nil
}

// Len reports how many windows are currently tracked.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// closeExpired drops every window whose reset time has been reached.
func (m *MemoryLimiter) closeExpired(now time.Time) {
	for m.byReset.Len() > 0 && !now.Before(m.byReset[0].resetAt) {
		c := heap.Pop(&m.byReset).(*counter)
		delete(m.open, c.key)
	}
}

type resetQueue []*counter

func (q resetQueue) Len() int           { return len(q) }
func (q resetQueue) Less(i, j int) bool { return q[i].resetAt.Before(q[j].resetAt) }
func (q resetQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *resetQueue) Push(x any) { *q = append(*q, x.(*counter)) }

func (q *resetQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return c
}
