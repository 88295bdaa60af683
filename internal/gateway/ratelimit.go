// ABOUTME: Per-author token bucket limiting for write endpoints
// ABOUTME: One golang.org/x/time/rate limiter per author, created on first use

package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

type authorLimiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

// newAuthorLimiter returns nil when rps is not positive, which allows everything.
func newAuthorLimiter(rps float64, burst int) *authorLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &authorLimiter{
		m:     make(map[string]*rate.Limiter),
		rps:   rate.Limit(rps),
		burst: burst,
	}
}

func (l *authorLimiter) get(author string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.m[author]; ok {
		return lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.m[author] = lim
	return lim
}

// Allow reports whether author may write now.
func (l *authorLimiter) Allow(author string) bool {
	if l == nil {
		return true
	}
	return l.get(author).Allow()
}
