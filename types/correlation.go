// Package types defines core domain types for the planlink core.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// correlationTimestampLayout is the embedded timestamp format (UTC).
const correlationTimestampLayout = "20060102150405"

// correlationIDPattern matches PREFIX_TIMESTAMP_HASH correlation ids:
// a 2-3 letter uppercase prefix, a 14-digit UTC timestamp, and a
// 32-character lowercase hex digest.
var correlationIDPattern = regexp.MustCompile(`^[A-Z]{2,3}_\d{14}_[a-f0-9]{32}$`)

// prefixPattern constrains the caller-supplied prefix.
var prefixPattern = regexp.MustCompile(`^[A-Z]{2,3}$`)

// ErrInvalidPrefix is returned when a correlation id prefix is not
// 2-3 uppercase letters. This is a programming-contract violation and
// the only hard failure NewCorrelationID can produce.
var ErrInvalidPrefix = fmt.Errorf("correlation id prefix must be 2-3 uppercase letters")

// NewCorrelationID generates a correlation id of the form
// PREFIX_TIMESTAMP_HASH. The hash is the first 32 hex characters of
// SHA-256(prefix || timestamp || fresh UUID), so ids are unguessable
// while remaining sortable by the embedded timestamp. No state is
// shared between calls.
func NewCorrelationID(prefix string) (string, error) {
	if !prefixPattern.MatchString(prefix) {
		return "", fmt.Errorf("%w: got %q", ErrInvalidPrefix, prefix)
	}

	timestamp := time.Now().UTC().Format(correlationTimestampLayout)

	digest := sha256.Sum256([]byte(prefix + timestamp + uuid.NewString()))
	hash := hex.EncodeToString(digest[:])[:32]

	return fmt.Sprintf("%s_%s_%s", prefix, timestamp, hash), nil
}

// IsValidCorrelationID reports whether id matches the correlation id
// pattern. Pure function, no side effects.
func IsValidCorrelationID(id string) bool {
	return correlationIDPattern.MatchString(id)
}

// CorrelationTimestamp extracts the embedded UTC timestamp from a valid
// correlation id. Returns the zero time for malformed ids.
func CorrelationTimestamp(id string) time.Time {
	if !IsValidCorrelationID(id) {
		return time.Time{}
	}
	// PREFIX_TIMESTAMP_HASH: the timestamp is the second segment.
	start := len(id) - 14 - 1 - 32
	ts, err := time.ParseInLocation(correlationTimestampLayout, id[start:start+14], time.UTC)
	if err != nil {
		return time.Time{}
	}
	return ts
}
