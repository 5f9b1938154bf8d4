// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the process-local rate limiter: one token bucket
// (golang.org/x/time/rate) per caller identity, with idle buckets evicted
// opportunistically. It is the fallback when no Redis is configured;
// replicas that must share a budget use RedisRateLimiter instead. Both
// satisfy Limiter so the router can install either one.
//
// Replays flagged by IdempotencyValidator skip the limiter, so a client
// retrying a finished turn is never throttled for it.
//
// The limiter is abuse and cost control at the edge, not authorization.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Limiter is implemented by RateLimiter and RedisRateLimiter.
type Limiter interface {
	Handler() gin.HandlerFunc
}

// keyFunc selects the identity used to key a rate-limit bucket, for example
// "user:<id>" or "ip:<addr>".
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by the authenticated user (Gin context
// "userID") and falls back to the client IP. The X-User-ID header is not
// consulted: it is caller-asserted and trivially rotated.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if s := asString(c.Value("userID")); s != "" {
			return "user:" + s
		}
		return "ip:" + c.ClientIP()
	}
}

// bucket is one identity's token bucket and when it was last used.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-identity token-bucket limiter. It is safe for
// concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	idleTTL time.Duration
	sweepN  uint64
}

// sweepEvery is how many lookups pass between idle-bucket sweeps.
const sweepEvery = 5000

// NewRateLimiter allows rps requests per second per identity with bursts
// of up to burst. burst <= 0 is coerced to 1.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		idleTTL: 10 * time.Minute,
	}
}

// bucketFor returns the limiter for key, creating it if absent. The idle
// sweep runs before the lookup so a stale bucket for key is replaced rather
// than refreshed.
func (rl *RateLimiter) bucketFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.sweepN++
	if rl.sweepN >= sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.sweepN = 0
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.buckets[key] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as
// a replay of a finished turn.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyRateBypass).(bool)
	return b
}

// Handler returns a Gin middleware enforcing the per-identity limit.
// Rejected requests get 429 with the standard error envelope and a
// Retry-After (whole seconds, at least 1) derived from when the next token
// will be available.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		lim := rl.bucketFor(rl.keyFn(c), now)

		res := lim.ReserveN(now, 1)
		if res.OK() && res.DelayFrom(now) == 0 {
			c.Next()
			return
		}

		retry := 1
		if res.OK() {
			retry = int(math.Ceil(res.DelayFrom(now).Seconds()))
			res.CancelAt(now)
		}
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
