package server

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter keeps one token bucket per client key
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	perMin   int
	expiry   time.Duration
	clock    func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limitResult is the outcome of one rate limit check
type limitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func newClientLimiter(config RateLimitConfig, clock func() time.Time) *clientLimiter {
	if clock == nil {
		clock = time.Now
	}
	expiry := config.IdleExpiry
	if expiry <= 0 {
		expiry = 10 * time.Minute
	}
	return &clientLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(float64(config.RequestsPerMinute) / 60),
		burst:    config.Burst,
		perMin:   config.RequestsPerMinute,
		expiry:   expiry,
		clock:    clock,
	}
}

// allow takes one token from key's bucket
func (l *clientLimiter) allow(key string) limitResult {
	now := l.clock()

	l.mu.Lock()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	result := limitResult{Limit: l.perMin}
	if entry.limiter.AllowN(now, 1) {
		result.Allowed = true
		result.Remaining = int(math.Max(0, math.Floor(entry.limiter.TokensAt(now))))
		return result
	}

	missing := 1 - entry.limiter.TokensAt(now)
	result.RetryAfter = time.Duration(missing / float64(l.limit) * float64(time.Second))
	if result.RetryAfter < time.Second {
		result.RetryAfter = time.Second
	}
	return result
}

// prune drops buckets idle for longer than the expiry and returns how many
func (l *clientLimiter) prune() int {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > l.expiry {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
