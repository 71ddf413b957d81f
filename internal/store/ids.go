package store

import (
	"github.com/google/uuid"
)

// NewID returns a new canonical lowercase-hyphenated UUID-v4 string.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id is a canonical lowercase-hyphenated UUID-v4.
// Non-canonical forms (uppercase, braces, urn prefix, missing hyphens) are
// rejected rather than normalized, so one UUID can never appear under two
// spellings in the store.
func ValidID(id string) bool {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.String() == id && parsed.Version() == 4
}
