// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, a hardening middleware that attaches a
// conservative set of HTTP security headers suitable for JSON APIs running
// behind a reverse proxy. It supports HSTS (when traffic is HTTPS end-to-end),
// cache controls for sensitive responses, and modern browser feature policies.
//
// Browser clients of the session API need to read a few response headers
// (ETag for conditional history reads, Retry-After, and the idempotency
// headers on turns), so those are listed in Access-Control-Expose-Headers.
//
// No CSP is set here; it only matters for HTML. HSTS is opt-in and only
// applied when the request is actually HTTPS.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests. Enable
	// only when traffic is HTTPS end-to-end, including proxy to app.
	EnableHSTS bool
	// HSTSMaxAge defaults to 180 days when <= 0.
	HSTSMaxAge time.Duration
	// NoStore marks responses Cache-Control: no-store (plus Pragma and
	// Expires). Handlers serving ETag-validated reads relax this to
	// "private, no-cache" themselves.
	NoStore bool
	// EnablePolicy adds Permissions-Policy and
	// X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
}

// SecurityHeaders sets the baseline hardening headers (nosniff, frame DENY,
// no-referrer), the optional ones selected by opt, and extends
// Access-Control-Expose-Headers with X-Request-ID and the session API
// headers. Headers are written before the handler runs so handlers may
// override them.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security",
				"max-age="+strconv.Itoa(maxAge)+"; includeSubDomains; preload")
		}

		expose := exposedHeaders
		if h.Get("X-Request-ID") != "" {
			expose = append([]string{"X-Request-ID"}, exposedHeaders...)
		}
		appendExposed(h, expose)

		c.Next()
	}
}

// isHTTPS reports whether the incoming request used HTTPS either directly
// (r.TLS != nil) or via a reverse proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// exposedHeaders are readable by browser clients on every response.
var exposedHeaders = []string{"ETag", "Retry-After", HeaderIdempotencyReplayed, "X-Inbound-Message-ID"}

// appendExposed adds names to Access-Control-Expose-Headers, skipping any
// already listed (case-insensitive).
func appendExposed(h http.Header, names []string) {
	const hdr = "Access-Control-Expose-Headers"
	cur := h.Get(hdr)
	have := map[string]bool{}
	for _, n := range strings.Split(cur, ",") {
		if n = strings.TrimSpace(n); n != "" {
			have[strings.ToLower(n)] = true
		}
	}
	out := cur
	for _, n := range names {
		if have[strings.ToLower(n)] {
			continue
		}
		have[strings.ToLower(n)] = true
		if out == "" {
			out = n
		} else {
			out += ", " + n
		}
	}
	if out != "" {
		h.Set(hdr, out)
	}
}
