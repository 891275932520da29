package middleware

import (
	"math"
	"sync"
	"time"

	"github.com/dtorcivia/trainercal/internal/config"
)

// RateLimiter implements per-client rate limiting using token buckets.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	limit   config.RateLimitConfig
	now     func() time.Time
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(limit config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		limit:   limit,
		now:     time.Now,
	}
}

func (rl *RateLimiter) refillRate() float64 {
	return float64(rl.limit.RequestsPerMinute) / 60.0
}

// Allow reports whether a request for key fits within the limit and, if so,
// consumes one token.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucket, ok := rl.buckets[key]
	if !ok {
		bucket = &tokenBucket{tokens: float64(rl.limit.Burst), lastRefill: now}
		rl.buckets[key] = bucket
	}

	elapsed := now.Sub(bucket.lastRefill).Seconds()
	bucket.lastRefill = now
	bucket.tokens = math.Min(float64(rl.limit.Burst), bucket.tokens+elapsed*rl.refillRate())

	if bucket.tokens >= 1.0 {
		bucket.tokens--
		return true
	}
	return false
}

// RetryAfter returns the seconds until one token is refilled.
func (rl *RateLimiter) RetryAfter() int {
	rate := rl.refillRate()
	if rate <= 0 {
		return 60
	}
	return int(math.Ceil(1 / rate))
}

// Cleanup removes buckets idle for longer than maxAge.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxAge)
	for key, bucket := range rl.buckets {
		if bucket.lastRefill.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}
