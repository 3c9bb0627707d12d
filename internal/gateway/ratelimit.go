// Package gateway streams run events to WebSocket clients.
package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// staleAfter is how long an idle address keeps its bucket before it is
// pruned on the next Allow.
const staleAfter = 10 * time.Minute

// RateLimiter bounds connection attempts per remote address with a token
// bucket per key. Stale buckets are pruned inline during Allow, so the
// limiter needs no background goroutine and can be dropped with the server.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int

	lastPrune time.Time
}

type bucket struct {
	tb       *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter returns a limiter refilling rpm tokens per minute with the
// given burst (minimum 1). rpm <= 0 disables limiting entirely.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	if burst < 1 {
		burst = 5
	}
	rl := &RateLimiter{
		buckets:   make(map[string]*bucket),
		burst:     burst,
		lastPrune: time.Now(),
	}
	if rpm > 0 {
		rl.limit = rate.Limit(float64(rpm) / 60.0)
	}
	return rl
}

// Enabled reports whether the limiter enforces anything.
func (rl *RateLimiter) Enabled() bool { return rl.limit > 0 }

// Allow reports whether a connection attempt from key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.Enabled() {
		return true
	}

	now := time.Now()
	rl.mu.Lock()
	if now.Sub(rl.lastPrune) > staleAfter {
		rl.prune(now)
	}
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tb: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	return b.tb.Allow()
}

// prune drops buckets idle past staleAfter. Caller holds mu.
func (rl *RateLimiter) prune(now time.Time) {
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > staleAfter {
			delete(rl.buckets, key)
		}
	}
	rl.lastPrune = now
}
