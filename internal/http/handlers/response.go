// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints,
// including structured error envelopes, consistent JSON serialization, and
// helpers for common HTTP patterns. The goal is to guarantee uniform responses
// for both success and failure cases, making the API predictable and
// machine-friendly.
//
// Conventions:
//   - All error responses must return an ErrorResponse with a stable `code`.
//   - `fail()` centralizes error logging and formatting, ensuring 5xx responses
//     are logged with request context for observability.
//   - `ok()` and `noContent()` simplify writing success responses in a consistent
//     shape across handlers.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "resource not found"
//	}
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "conversation_id": "abc123", "thread_key": "9f1c...", "created": false }
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-session-store/internal/http/middleware"
	"github.com/tbourn/go-session-store/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
//
// Fields:
//   - RequestID: Optional correlation ID, echoed from X-Request-ID header, used
//     to correlate server logs with client-side errors.
//   - Code: A stable, machine-readable string (see errors.go constants).
//   - Message: A human-readable error description, safe for display to users.
//
// This struct is used in OpenAPI documentation via Swagger annotations.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
}

// fail aborts the request with a structured error and logs server-side errors.
//
// It constructs an ErrorResponse, writes it as JSON with the given HTTP status,
// and calls gin.Context.AbortWithStatusJSON to stop further processing.
//
// Server errors (>=500) are logged using the request-scoped logger from middleware.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	// Log 5xx (server-side) with request-scoped logger
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error envelopes without directly depending on unexported helpers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps a service error onto its HTTP status and code.
//
//   - ErrInvalidArgument → 400 bad_request
//   - ErrNotFound        → 404 not_found
//   - ErrConflict        → 409 conflict
//   - ErrUnavailable     → 503 unavailable
//   - anything else      → 500 internal_error
//
// Client errors echo the service message. Server errors keep the cause in
// the log and send a generic message.
func failErr(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		_ = c.Error(err)
		msg = "store unavailable, retry later"
	case http.StatusInternalServerError:
		_ = c.Error(err)
		msg = "internal server error"
	}
	fail(c, status, code, msg)
}

// statusFor classifies err by service error category.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidArgument):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, services.ErrUnavailable):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// ok writes a success JSON response.
//
// It serializes `body` as JSON with the given HTTP status code.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
//
// Used when the operation succeeds but there is no response body.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// notModified sets a weak ETag on the response and reports whether the
// request's If-None-Match already matches it, in which case a 304 has been
// written. Cache-Control is relaxed from no-store to private revalidation so
// clients can keep the body and send the ETag back.
func notModified(c *gin.Context, etag string) bool {
	h := c.Writer.Header()
	h.Set("ETag", etag)
	h.Set("Cache-Control", "private, no-cache")
	h.Del("Pragma")
	h.Del("Expires")

	inm := c.GetHeader("If-None-Match")
	if inm == "" {
		return false
	}
	for _, tag := range strings.Split(inm, ",") {
		if tag = strings.TrimSpace(tag); tag == "*" || tag == etag {
			c.Status(http.StatusNotModified)
			return true
		}
	}
	return false
}
