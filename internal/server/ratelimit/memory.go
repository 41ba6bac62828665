package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps per-key attempt timestamps in process memory.
type MemoryLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	now      func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{attempts: map[string][]time.Time{}, now: time.Now}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	kept := l.attempts[key][:0]
	for _, at := range l.attempts[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	l.attempts[key] = kept

	release := now
	if i := len(kept) + int(releaseIndex(limit)); i >= 0 {
		release = kept[i]
	}
	return decide(len(kept), limit, release, window, now), nil
}

// Prune drops keys whose attempts all fell out of window.
func (l *MemoryLimiter) Prune(window time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-window)
	for key, list := range l.attempts {
		if len(list) == 0 || !list[len(list)-1].After(cutoff) {
			delete(l.attempts, key)
		}
	}
}
