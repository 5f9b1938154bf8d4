// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides request correlation, panic recovery, and access to the
// request-scoped logger that RedactingLogger attaches:
//
//   - RequestID() reuses or mints the X-Request-ID correlation ID.
//   - Recovery() converts panics into the JSON 500 envelope and logs the
//     stack with the request's fields.
//   - LoggerFrom() returns the request-scoped zerolog.Logger so handlers can
//     log with request_id, route and masked thread key attached
//     (e.g., middleware.LoggerFrom(c).Warn().Err(err).Msg("partial turn")).
//
// Install in this order: RequestID, RedactingLogger, Recovery.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// loggerKey is the Gin context key of the request-scoped logger.
	loggerKey = "logger"
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
	// maxRequestIDLength bounds a client-supplied correlation ID.
	maxRequestIDLength = 128
	// threadKeyParam is the route parameter carrying the thread key.
	threadKeyParam = "key"
)

// generatedKeyRE matches thread keys minted by the session service.
var generatedKeyRE = regexp.MustCompile(`(?i)\b[0-9a-f]{32}\b`)

// RequestID attaches (or propagates) a correlation identifier per request.
//
// An incoming X-Request-ID is reused when it is non-empty and at most 128
// bytes; otherwise a UUIDv4 is generated. The ID is echoed on the response
// and stored in the Gin context under "requestID".
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLength {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Recovery intercepts panics, logs a stack trace, and returns a JSON 500 error.
//
// If nothing was written yet the body is the standard envelope:
//
//	{ "request_id": "...", "code": "internal_error", "message": "internal server error" }
//
// Place this after RedactingLogger so the panic is logged with request fields.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := asString(c.Value(requestIDKey))
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger, or the global logger
// when none was attached. The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// asString returns v when it is a string and "" otherwise.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate cuts s to max bytes and appends an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// maskValue keeps the first and last two characters of v so log lines about
// the same thread can still be correlated.
func maskValue(v string) string {
	if len(v) <= 6 {
		return "***"
	}
	return v[:2] + "***" + v[len(v)-2:]
}
