// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header sent with turn submissions.
// The key doubles as the turn key of the thread named in the route, so a
// retried POST /threads/:key/turns either replays the finished turn or
// completes a partial one. The middleware only validates and stashes the key
// and, when a lookup is supplied, flags requests whose turn already finished
// so the rate limiter lets them through:
//   - read the validated key (GetIdempotencyKey)
//   - detect replayed requests (IsReplay)
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderIdempotencyKey is the request header carrying a client turn key.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotencyReplayed marks responses served from a finished turn.
	HeaderIdempotencyReplayed = "Idempotency-Replayed"
)

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: true when the turn already completed
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
)

// defaultThreadParam is the route parameter that names the thread.
const defaultThreadParam = "key"

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by IdempotencyValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the lookup found a completed turn for this key.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation for IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 128,
	// the longest turn key the session store accepts.
	MaxLen int
	// Pattern restricts allowed characters. If nil, ^[A-Za-z0-9._~\-:]+$ is used.
	Pattern *regexp.Regexp
	// ThreadParam names the route parameter holding the thread key.
	// Empty selects "key".
	ThreadParam string
}

// IdempotencyLookup reports whether a completed, unexpired turn exists for
// key in the thread addressed by threadKey. Errors are treated as a miss.
type IdempotencyLookup func(ctx context.Context, threadKey, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header (if present),
// stashes it in the request context, and consults lookup to mark replays.
//
// Behavior:
//   - If header is absent: the middleware is a no-op.
//   - If header fails validation: responds 400 with a compact error body.
//   - If lookup finds a completed turn: sets replay + rate-bypass flags.
//
// Serving the replay is left to the handler, which resubmits the turn under
// the same key.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 128
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	param := opts.ThreadParam
	if param == "" {
		param = defaultThreadParam
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if threadKey := c.Param(param); lookup != nil && threadKey != "" {
			if exists, err := lookup(c.Request.Context(), threadKey, key, time.Now().UTC()); err == nil && exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
