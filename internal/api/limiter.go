package api

import (
	"sync"
	"time"

	"urbanharvest/internal/config"

	"golang.org/x/time/rate"
)

const (
	defaultBurst     = 5
	limiterIdleTTL   = 10 * time.Minute
	limiterSweepTick = time.Minute
)

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client key. Buckets idle for
// limiterIdleTTL are dropped, so the map stays bounded by recent clients.
// Both the HTTP and the gRPC surface share this implementation.
type rateLimiter struct {
	cfg config.APIRateLimitConfig
	now func() time.Time

	mu        sync.Mutex
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	return &rateLimiter{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*limiterEntry),
	}
}

func (l *rateLimiter) enabled() bool {
	return l != nil && l.cfg.RPS > 0
}

func (l *rateLimiter) allow(key string) bool {
	if !l.enabled() {
		return true
	}
	return l.getLimiter(key).Allow()
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= limiterSweepTick {
		l.sweep(now)
	}

	if e, ok := l.entries[key]; ok {
		e.lastSeen = now
		return e.lim
	}

	burst := l.cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	e := &limiterEntry{lim: rate.NewLimiter(rate.Limit(l.cfg.RPS), burst), lastSeen: now}
	l.entries[key] = e
	return e.lim
}

// sweep must be called with mu held.
func (l *rateLimiter) sweep(now time.Time) {
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(l.entries, key)
		}
	}
	l.lastSweep = now
}

func (l *rateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
