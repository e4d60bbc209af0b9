// Package resilience provides the failure taxonomy, retry, and circuit
// breaking used around external fetches.
package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
)

// ErrSessionNotFound marks a session id unknown to the store. It is surfaced
// as a distinct "not found" result, never conflated with an internal error.
var ErrSessionNotFound = eris.New("session not found")

// TransientError wraps an error that is safe to retry with backoff
// (429, 5xx, network timeouts and resets).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// ChallengeError reports an anti-bot challenge that survived the single
// solve-and-retry attempt. It is never retried by the source client; the
// decision to stop belongs to the circuit breaker.
type ChallengeError struct {
	PageURL string
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("challenge page persisted after solve retry: %s", e.PageURL)
}

// ProviderError carries a captcha provider failure with the provider's code
// unmodified, so callers can distinguish balance exhaustion from
// configuration errors from transient failures. Never auto-retried.
type ProviderError struct {
	Code string
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("captcha provider error %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("captcha provider error %s", e.Code)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ParseError reports a page whose structure did not match expectations.
// SnapshotRef points at the saved page snapshot for debugging. Treated as
// not-found for the affected item.
type ParseError struct {
	PageURL     string
	SnapshotRef string
	Err         error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failure for %s (snapshot %s): %v", e.PageURL, e.SnapshotRef, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NotFoundError reports a resource the source legitimately does not have.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Resource)
}

// IsNotFound reports whether err is a NotFoundError or a ParseError
// (parse failures are treated as not-found for the affected item).
func IsNotFound(err error) bool {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsChallenge reports whether err is a ChallengeError.
func IsChallenge(err error) bool {
	var ce *ChallengeError
	return errors.As(err, &ce)
}

// IsProviderError reports whether err carries a captcha provider failure
// anywhere in its chain. Provider failures are systemic (bad key, exhausted
// balance) and count against the same breaker class as challenges.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsTransient reports whether the error is a TransientError or matches
// common transient network patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
