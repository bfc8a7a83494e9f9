package scrape

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a scraping or persistence failure. The queue and the
// tracking pipeline branch on the kind, never on error text.
type Kind int

const (
	// KindFatal is an unexpected failure; the pipeline aborts and the job
	// fails.
	KindFatal Kind = iota

	// KindRateLimited means the upstream asked us to back off. The queue
	// re-queues the job with backoff and the cookie pool advances.
	KindRateLimited

	// KindAuthFailed means the credential is bad independently of rate.
	KindAuthFailed

	// KindTransient covers I/O errors and 5xx responses. Retried inside the
	// scraper; surfaced on exhaustion.
	KindTransient

	// KindParse means the upstream payload shape changed. Never retried.
	KindParse

	// KindConflict is a uniqueness collision during insert.
	KindConflict

	// KindNotFound is read-side only.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindAuthFailed:
		return "auth_failed"
	case KindTransient:
		return "transient"
	case KindParse:
		return "parse"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "fatal"
	}
}

// Error is a classified failure, optionally carrying an upstream retry hint.
type Error struct {
	Kind       Kind
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %v (retry after %v)", e.Kind, e.Err, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind.
func NewError(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// RateLimitedError builds a rate-limit error carrying the upstream hint.
func RateLimitedError(err error, retryAfter time.Duration) error {
	return &Error{Kind: KindRateLimited, RetryAfter: retryAfter, Err: err}
}

// KindOf extracts the kind from err, defaulting to KindFatal for
// unclassified errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindFatal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}

// RetryAfterOf extracts the retry hint from a rate-limit error, zero
// otherwise.
func RetryAfterOf(err error) time.Duration {
	var se *Error
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}
