// Package services defines the business logic for conversations, messages,
// audit entries and the session façade that composes them.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Errors come in two levels. The four category errors (ErrInvalidArgument,
// ErrNotFound, ErrConflict, ErrUnavailable) describe how a caller should
// react; the specific errors below wrap one category each, so errors.Is
// matches on either level. Translation into HTTP status codes happens in the
// handler layer.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-session-store/internal/repo"
)

// Error categories.
var (
	// ErrInvalidArgument marks input that will never succeed as given.
	// Callers must not retry.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound marks a missing conversation or message.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a duplicate-key collision. Start-or-resume resolves
	// it internally; it only escapes from explicit creates.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable marks a store that is unreachable, timed out, or failed
	// in a way that could not be classified. Callers may retry.
	ErrUnavailable = errors.New("store unavailable")
)

// Specific errors.
var (
	ErrConversationNotFound = fmt.Errorf("conversation %w", ErrNotFound)
	ErrMessageNotFound      = fmt.Errorf("message %w", ErrNotFound)

	ErrThreadKeyTaken = fmt.Errorf("thread key already exists: %w", ErrConflict)

	ErrSessionClosed = fmt.Errorf("%w: session service is closed", ErrUnavailable)

	ErrInvalidRole       = fmt.Errorf("%w: role must be one of user, assistant, system", ErrInvalidArgument)
	ErrEmptyContent      = fmt.Errorf("%w: content is empty", ErrInvalidArgument)
	ErrEmptyAction       = fmt.Errorf("%w: action is empty", ErrInvalidArgument)
	ErrInvalidThreadKey  = fmt.Errorf("%w: thread key must be 1-128 visible characters", ErrInvalidArgument)
	ErrLabelTooLong      = fmt.Errorf("%w: label too long", ErrInvalidArgument)
	ErrUserIDTooLong     = fmt.Errorf("%w: user_id must be at most 64 characters", ErrInvalidArgument)
	ErrInvalidPageSize   = fmt.Errorf("%w: page size must be positive", ErrInvalidArgument)
	ErrInvalidLimit      = fmt.Errorf("%w: limit must not be negative", ErrInvalidArgument)
	ErrInvalidTurnKey    = fmt.Errorf("%w: turn key must be at most 128 characters", ErrInvalidArgument)
	ErrMissingIdentity   = fmt.Errorf("%w: user_id or channel_id is required", ErrInvalidArgument)
	ErrInvalidTimeWindow = fmt.Errorf("%w: from must be before to", ErrInvalidArgument)
)

// storeErr classifies an error returned by the repo layer. Not-found maps to
// notFound, duplicates map to ErrConflict, values the schema rejects as too
// long map to ErrInvalidArgument, errors that are already classified pass
// through, and anything else (including a cancelled or expired context)
// becomes ErrUnavailable with the cause kept in the chain.
func storeErr(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case repo.IsNotFound(err):
		if notFound == nil {
			notFound = ErrNotFound
		}
		return notFound
	case repo.IsDuplicate(err):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case repo.IsValueTooLong(err):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict), errors.Is(err, ErrUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}
