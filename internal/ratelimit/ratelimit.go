// Package ratelimit throttles bot commands per user with a token bucket.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dukerupert/gatekeeper/internal/clock"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per user. A non-positive rate disables
// limiting.
type Limiter struct {
	mu       sync.Mutex
	visitors map[int64]*visitor
	limit    rate.Limit
	burst    int
	clock    clock.Clock
}

func New(perSecond float64, burst int, clk clock.Clock) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		visitors: make(map[int64]*visitor),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		clock:    clk,
	}
}

// Allow reports whether userID may run a command now and consumes a token
// if so.
func (l *Limiter) Allow(userID int64) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[userID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[userID] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Cleanup forgets users not seen within idle.
func (l *Limiter) Cleanup(idle time.Duration) int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, v := range l.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(l.visitors, id)
			removed++
		}
	}
	return removed
}
