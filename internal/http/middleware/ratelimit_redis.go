// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a fixed-window rate limiter whose counters live in
// Redis, so every replica behind a load balancer enforces one shared budget
// per identity. It is installed instead of the in-memory RateLimiter when
// REDIS_URL is configured.
//
// Counters are keyed by identity and window start ("<prefix><id>:<unix>")
// and expire with the window. When Redis cannot be reached the limiter
// fails open: requests pass and the error is logged.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// windowCounter increments the counter for key and returns its new value.
type windowCounter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// redisCounter is the go-redis backed windowCounter.
type redisCounter struct {
	rdb redis.Cmdable
}

func (r redisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RedisRateLimiter allows up to limit requests per identity per window.
type RedisRateLimiter struct {
	counter windowCounter
	limit   int64
	window  time.Duration
	keyFn   keyFunc
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

// NewRedisRateLimiter builds a limiter over rdb. limit <= 0 is coerced to 1
// and window <= 0 to one second.
func NewRedisRateLimiter(rdb redis.Cmdable, limit int, window time.Duration, keyFn keyFunc) *RedisRateLimiter {
	return newRedisRateLimiter(redisCounter{rdb: rdb}, limit, window, keyFn)
}

func newRedisRateLimiter(counter windowCounter, limit int, window time.Duration, keyFn keyFunc) *RedisRateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &RedisRateLimiter{
		counter: counter,
		limit:   int64(limit),
		window:  window,
		keyFn:   keyFn,
		prefix:  "session-store:ratelimit:",
		timeout: 250 * time.Millisecond,
		now:     time.Now,
	}
}

// Handler returns a Gin middleware enforcing the shared limit. Replays
// marked by IdempotencyValidator are not counted.
func (rl *RedisRateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		start := rl.now().Truncate(rl.window)
		key := rl.prefix + rl.keyFn(c) + ":" + strconv.FormatInt(start.Unix(), 10)

		ctx, cancel := context.WithTimeout(c.Request.Context(), rl.timeout)
		n, err := rl.counter.Incr(ctx, key, rl.window)
		cancel()
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if n <= rl.limit {
			c.Next()
			return
		}

		retry := int(start.Add(rl.window).Sub(rl.now()).Seconds()) + 1
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
