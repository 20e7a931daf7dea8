package ratelimit

import (
	"context"
	"sync"
	"time"
)

// userWindow tracks one user's counter and its reset deadline.
type userWindow struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is an in-memory fixed-window limiter for single-node
// deployments and tests. Multi-node setups need RedisLimiter so all
// nodes share the counters.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]userWindow
	config  Config

	// now is replaceable in tests.
	now func() time.Time
}

// NewMemoryLimiter creates an in-memory limiter.
func NewMemoryLimiter(config Config) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]userWindow),
		config:  config.withDefaults(),
		now:     time.Now,
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(ctx context.Context, userID string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[userID]
	if !exists || !now.Before(w.resetAt) {
		w = userWindow{resetAt: now.Add(l.config.Window)}
	}

	w.count++
	l.windows[userID] = w

	if w.count > l.config.MaxRequests {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: w.resetAt.Sub(now),
		}, nil
	}

	return Decision{
		Allowed:   true,
		Remaining: l.config.MaxRequests - w.count,
	}, nil
}

// Reset clears a user's counter.
func (l *MemoryLimiter) Reset(ctx context.Context, userID string) error {
	l.mu.Lock()
	delete(l.windows, userID)
	l.mu.Unlock()
	return nil
}

// ResetAll clears every counter.
func (l *MemoryLimiter) ResetAll(ctx context.Context) (int, error) {
	l.mu.Lock()
	cleared := len(l.windows)
	l.windows = make(map[string]userWindow)
	l.mu.Unlock()
	return cleared, nil
}

// Sweep drops windows that have already reset, so idle users do not
// accumulate. Intended for periodic maintenance.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for userID, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, userID)
			removed++
		}
	}
	return removed
}

var _ Limiter = (*MemoryLimiter)(nil)
