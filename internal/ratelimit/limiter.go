// Package ratelimit provides token-bucket limiting for the two places the
// service throttles: outbound calls to the quote provider (per host) and
// inbound API calls (per client address).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter provides per-host rate limiting for outbound provider calls.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter creates a per-host limiter with the specified RPS and burst.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) getLimiter(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[host]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[host]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[host] = limiter
	return limiter
}

// Wait blocks until a request for the host is allowed or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	return l.getLimiter(host).Wait(ctx)
}

// Allow reports whether a request for the host is allowed right now.
func (l *Limiter) Allow(host string) bool {
	return l.getLimiter(host).Allow()
}

// ClientLimiter rate-limits inbound requests per client address using a
// windowed budget (e.g. 100 requests per 15 minutes). Idle clients are
// pruned so the map does not grow unbounded.
type ClientLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientBucket
	limit    int
	window   time.Duration
	lastSeen time.Duration // prune entries idle longer than this
}

type clientBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewClientLimiter allows limit requests per window for each client address.
func NewClientLimiter(limit int, window time.Duration) *ClientLimiter {
	return &ClientLimiter{
		clients:  make(map[string]*clientBucket),
		limit:    limit,
		window:   window,
		lastSeen: 2 * window,
	}
}

// Allow reports whether the client may issue another request.
func (c *ClientLimiter) Allow(addr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	b, ok := c.clients[addr]
	if !ok {
		if len(c.clients) > 1024 {
			c.pruneLocked(now)
		}
		b = &clientBucket{
			limiter: rate.NewLimiter(rate.Limit(float64(c.limit)/c.window.Seconds()), c.limit),
		}
		c.clients[addr] = b
	}
	b.seen = now
	return b.limiter.Allow()
}

func (c *ClientLimiter) pruneLocked(now time.Time) {
	for addr, b := range c.clients {
		if now.Sub(b.seen) > c.lastSeen {
			delete(c.clients, addr)
		}
	}
}
