package services

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxThreadKeyLen bounds caller-supplied thread keys.
const MaxThreadKeyLen = 128

// NewID returns a random identifier for conversations, messages, audit
// entries and turn records.
func NewID() string { return uuid.NewString() }

// NewThreadKey returns a fresh thread key: a random UUID rendered as 32
// lowercase hex characters.
func NewThreadKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NormalizeThreadKey trims surrounding whitespace and validates what is
// left: 1 to MaxThreadKeyLen characters, none of them whitespace or control
// characters. Keys are otherwise opaque and case-sensitive.
func NormalizeThreadKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || utf8.RuneCountInString(key) > MaxThreadKeyLen || !utf8.ValidString(key) {
		return "", ErrInvalidThreadKey
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", ErrInvalidThreadKey
		}
	}
	return key, nil
}
