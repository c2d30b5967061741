package provider

import (
	"errors"
	"fmt"
	"time"
)

// Kind discriminates gateway failures. Retry policy reads this, never error
// strings.
type Kind int

const (
	KindTransport Kind = iota
	KindRateLimited
	KindUpstream5xx
	KindNotFound
	KindAuthRejected
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRateLimited:
		return "rate_limited"
	case KindUpstream5xx:
		return "upstream_5xx"
	case KindNotFound:
		return "not_found"
	case KindAuthRejected:
		return "auth_rejected"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Retryable reports whether the gateway retries this kind of failure.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransport, KindRateLimited, KindUpstream5xx:
		return true
	}
	return false
}

// FetchError is the terminal error for one gateway call, carrying the failure
// kind, the upstream status (when any), and the Retry-After hint if the
// upstream supplied one.
type FetchError struct {
	Kind       Kind
	Path       string
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: %s (status %d): %v", e.Path, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrorKind extracts the failure kind from err. The second return is false
// when err is not a gateway error.
func ErrorKind(err error) (Kind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// IsPermanent reports whether err is a gateway failure that will not succeed
// on retry (NotFound, AuthRejected, Decode).
func IsPermanent(err error) bool {
	kind, ok := ErrorKind(err)
	return ok && !kind.Retryable()
}
