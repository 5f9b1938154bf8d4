// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via `fail()` and `failErr()` in this package). These codes give
// clients a stable, machine-readable taxonomy next to the human-readable
// message.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless noted.
//   - Generic codes mirror common HTTP status semantics.
//   - The service error categories map one-to-one onto bad_request,
//     not_found, conflict and unavailable.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_found",
//	  "message": "conversation not found"
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"
	ErrCodeUnavailable  = "unavailable"

	// Domain-specific:
	ErrCodePartialTurn      = "partial_turn"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
