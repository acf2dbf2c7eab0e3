package fetch

import (
	"errors"
	"fmt"
)

// Kind classifies a terminal fetch failure.
type Kind int

const (
	// KindAuthFailed means credentials were rejected; fatal for the
	// session until they are fixed, never retried.
	KindAuthFailed Kind = iota + 1
	// KindRateLimited means the provider returned 429 after the single
	// permitted retry.
	KindRateLimited
	// KindQuotaExceeded means the provider's usage quota is exhausted.
	KindQuotaExceeded
	// KindBadRequest means the request itself is malformed; a caller bug.
	KindBadRequest
	// KindUpstream means the provider failed (5xx or transport error)
	// after retries.
	KindUpstream
	// KindTimeout means the request deadline elapsed after retries.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindAuthFailed:
		return "auth_failed"
	case KindRateLimited:
		return "rate_limited"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindBadRequest:
		return "bad_request"
	case KindUpstream:
		return "upstream_error"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a classified fetch failure.
type Error struct {
	Kind    Kind
	Status  int // HTTP status if one was received, else 0
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a classified error. cause may be nil.
func NewError(kind Kind, status int, message string, cause error) *Error {
	return &Error{Kind: kind, Status: status, Message: message, cause: cause}
}

// KindOf returns the classification of err, or 0 if err is not a fetch
// error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// IsKind reports whether err is a fetch error of the given kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
