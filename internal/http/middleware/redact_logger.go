// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, a structured HTTP logger that
// automatically scrubs obvious PII from request metadata before emitting logs.
//
// Message bodies are never logged. Thread keys get special care: anyone
// holding a key can resume the thread, so generated keys (32 hex chars) are
// scrubbed from query strings and headers, and unmatched paths are logged
// with the same scrubbing applied.
//
// Redacted values:
//   - generated thread keys, UUIDs, emails, phone numbers
//   - sensitive headers (Authorization, Cookie, Set-Cookie, plus custom)
//
// Usage:
//
//	r := gin.New()
//	r.Use(middleware.RequestID())
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-Api-Key"},
//	    MaskParams:  []string{"key"},
//	}))
//
// Handlers reach the request-scoped logger through LoggerFrom.
//
// Security note: this middleware reduces but does not eliminate the risk of
// sensitive data leaking to logs. You should still ensure that clients and
// upstream services avoid transmitting PII in query strings or headers unless
// strictly necessary.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders specifies extra HTTP header names whose values will be fully
// replaced with "[REDACTED]". Matching is case-insensitive and merged with
// built-in sensitive headers ("Authorization", "Cookie", "Set-Cookie").
//
// MaskParams names route parameters whose values are logged in masked form
// (for example "key" for /threads/:key). The route pattern is always
// logged; masked parameters are added under "params".
type RedactOptions struct {
	MaskHeaders []string
	MaskParams  []string
}

// RedactingLogger returns a Gin middleware that logs HTTP requests and
// responses with sensitive values scrubbed.
//
// Behavior:
//   - Logs method, path, query string, status, response size, latency,
//     and request headers (with scrubbing applied).
//   - Applies regex-based substitution to redact thread keys, email
//     addresses, phone numbers, and UUID-like identifiers from query
//     strings, header values, and unmatched paths.
//   - Fully masks built-in sensitive headers and any additional headers
//     provided in opts.MaskHeaders.
//   - Logs in structured JSON format at INFO level by default, WARN for 4xx,
//     and ERROR for 5xx responses.
//
// NOTE: redact UUIDs and thread keys *before* phone numbers to avoid the
// phone pattern matching their digit runs.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	// Compile regex patterns once.
	uuidRE := regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE := regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits-only phone pattern (prevents matching hex characters from UUIDs).
	// Examples matched: "+1 212-555-1212", "212 555 1212", "(212) 555-1212".
	phoneRE := regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)

	redact := func(s string) string {
		if s == "" {
			return s
		}
		out := s
		// Order matters: IDs → email → phone (phone is the loosest).
		out = generatedKeyRE.ReplaceAllString(out, "[REDACTED:thread]")
		out = uuidRE.ReplaceAllString(out, "[REDACTED:id]")
		out = emailRE.ReplaceAllString(out, "[REDACTED:email]")
		out = phoneRE.ReplaceAllString(out, "[REDACTED:phone]")
		return out
	}

	// Build header mask set (case-insensitive).
	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	maskParams := make([]string, 0, len(opts.MaskParams))
	for _, p := range opts.MaskParams {
		if p = strings.TrimSpace(p); p != "" {
			maskParams = append(maskParams, p)
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		// Request path and query. Raw paths only appear for unmatched routes
		// and may embed a thread key.
		path := c.FullPath()
		if path == "" {
			path = redact(c.Request.URL.Path)
		}
		var params map[string]string
		for _, p := range maskParams {
			if v := c.Param(p); v != "" {
				if params == nil {
					params = make(map[string]string, len(maskParams))
				}
				params[p] = maskValue(v)
			}
		}
		safeQuery := truncate(redact(c.Request.URL.RawQuery), maxQueryLogLength)

		// Scrub headers.
		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(strings.Join(vv, ", "))
		}

		// Correlation ID: context (RequestID), then response, then request header.
		reqID := asString(c.Value(requestIDKey))
		if reqID == "" {
			reqID = c.Writer.Header().Get(requestIDHeader)
		}
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}

		// Request-scoped logger for handlers (see LoggerFrom).
		lc := log.With().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path)
		if key := c.Param(threadKeyParam); key != "" {
			lc = lc.Str("thread_key", maskValue(key))
		}
		lg := lc.Logger()
		c.Set(loggerKey, &lg)

		c.Next()

		status := c.Writer.Status()

		// Severity based on status; recorded handler errors escalate.
		ev := lg.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = lg.Error()
		case status >= 400:
			ev = lg.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}

		ev.
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Str("remote_ip", c.ClientIP()).
			Interface("headers", safeHeaders).
			Interface("params", params).
			Msg("http_request")
	}
}
