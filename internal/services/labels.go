package services

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Label limits match the column widths in the domain models.
const (
	maxAgentLen  = 64
	maxActionLen = 128
	maxUserIDLen = 64
)

// canonicalLabel trims and lowercases a short label such as an agent name
// or audit action so "Finance" and " finance " are stored identically.
// An empty result is returned as "" with no error.
func canonicalLabel(s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	s = cases.Lower(language.Und).String(s)
	if utf8.RuneCountInString(s) > max {
		return "", ErrLabelTooLong
	}
	return s, nil
}

// optionalLabel is canonicalLabel for nullable columns: blank becomes nil.
func optionalLabel(s *string, max int) (*string, error) {
	if s == nil {
		return nil, nil
	}
	v, err := canonicalLabel(*s, max)
	if err != nil || v == "" {
		return nil, err
	}
	return &v, nil
}

// optionalString trims s and returns nil when nothing is left.
func optionalString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// optionalUserID is optionalString bounded to the user_id column width.
func optionalUserID(s *string) (*string, error) {
	v := optionalString(s)
	if v != nil && utf8.RuneCountInString(*v) > maxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	return v, nil
}
