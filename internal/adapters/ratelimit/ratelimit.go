// Package ratelimit keeps one token bucket per key (client IP, user id).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Limiter[K comparable] struct {
	mu       sync.Mutex
	limiters map[K]*entry
	rate     rate.Limit
	burst    int
}

type entry struct {
	l    *rate.Limiter
	seen time.Time
}

// New returns a limiter allowing r events per second with bursts of b
// for every key.
func New[K comparable](r rate.Limit, b int) *Limiter[K] {
	return &Limiter[K]{
		limiters: make(map[K]*entry),
		rate:     r,
		burst:    b,
	}
}

func (l *Limiter[K]) Allow(key K) bool {
	l.mu.Lock()
	e, ok := l.limiters[key]
	if !ok {
		e = &entry{l: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = e
	}
	e.seen = time.Now()
	l.mu.Unlock()
	return e.l.Allow()
}

// Prune forgets keys not seen for idle and returns how many were removed.
func (l *Limiter[K]) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	n := 0
	for k, e := range l.limiters {
		if e.seen.Before(cutoff) {
			delete(l.limiters, k)
			n++
		}
	}
	return n
}

func (l *Limiter[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Run prunes idle keys every interval until ctx is done.
func (l *Limiter[K]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune(interval)
		}
	}
}
