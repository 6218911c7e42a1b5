// Package ratelimit provides a per-caller token bucket used by the HTTP
// middleware to bound request rates.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps a token bucket per caller key. Buckets idle past the
// retention window are dropped on the next sweep.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	ratePerS  rate.Limit
	burst     int
	retention time.Duration
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter allowing ratePerSecond sustained requests with the
// given burst per caller key.
func New(ratePerSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets:   make(map[string]*bucket),
		ratePerS:  rate.Limit(ratePerSecond),
		burst:     burst,
		retention: 10 * time.Minute,
		lastSweep: time.Now(),
	}
}

// Allow reports whether the caller identified by key may proceed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b := l.buckets[key]
	if b == nil {
		b = &bucket{limiter: rate.NewLimiter(l.ratePerS, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if now.Sub(l.lastSweep) > l.retention {
		l.sweep(now)
	}

	return b.limiter.Allow()
}

// sweep drops idle buckets. Caller holds the mutex.
func (l *Limiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.retention {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
