package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies core failures.
type ErrorKind int

const (
	// KindTransportUnavailable indicates the peer or backend was
	// unreachable or timed out. Retryable for remote calls; never
	// retried automatically for the local peer.
	KindTransportUnavailable ErrorKind = iota
	// KindProtocolMismatch indicates an unexpected message type or a
	// malformed frame. Fatal to that exchange, not retried.
	KindProtocolMismatch
	// KindPermissionDenied indicates the user declined consent.
	// Terminal for that sync call; a normal outcome, not a fault.
	KindPermissionDenied
	// KindProviderUnhealthy indicates the storage backend health check
	// failed; the orchestrator fails fast instead of transferring.
	KindProviderUnhealthy
	// KindIntegrityFailure indicates a hash or etag mismatch after a
	// transfer. Surfaced; the transfer is not silently accepted.
	KindIntegrityFailure
	// KindCorruptArchive indicates a decompression failure.
	KindCorruptArchive
)

// String returns the kind's stable name as used in logs and messages.
func (k ErrorKind) String() string {
	switch k {
	case KindTransportUnavailable:
		return "TransportUnavailable"
	case KindProtocolMismatch:
		return "ProtocolMismatch"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindProviderUnhealthy:
		return "ProviderUnhealthy"
	case KindIntegrityFailure:
		return "IntegrityFailure"
	case KindCorruptArchive:
		return "CorruptArchive"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a classified core failure. Transport and provider failures
// are captured into result values at public boundaries; Error carries
// the classification for callers that need to branch on it.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// WrapError creates a classified error wrapping an underlying cause.
func WrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// IsKind reports whether err is (or wraps) a core Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Kind == kind
	}
	return false
}
