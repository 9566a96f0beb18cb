package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"
)

// Kind classifies a remote-call failure. The taxonomy decides retry behavior:
// timeout, connection, rate_limited and server are retryable; authentication
// and validation indicate misconfiguration and surface immediately.
type Kind string

const (
	KindTimeout        Kind = "timeout"
	KindConnection     Kind = "connection"
	KindRateLimited    Kind = "rate_limited"
	KindAuthentication Kind = "authentication"
	KindValidation     Kind = "validation"
	KindServer         Kind = "server"
	KindResponseFormat Kind = "response_format"
)

// APIError is a typed remote-service failure.
type APIError struct {
	Kind       Kind
	Service    string
	Op         string
	StatusCode int
	// RetryAfter carries the remote's backoff hint for rate_limited errors.
	RetryAfter *time.Duration
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Service + ": " + e.Op + ": " + string(e.Kind)
	if e.StatusCode != 0 {
		msg += " (status " + strconv.Itoa(e.StatusCode) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether this error class is safe to retry.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnection, KindRateLimited, KindServer:
		return true
	}
	return false
}

// NewAPIError builds an APIError for the given service operation.
func NewAPIError(kind Kind, service, op string, err error) *APIError {
	return &APIError{Kind: kind, Service: service, Op: op, Err: err}
}

// ErrorKind extracts the Kind from an error chain. Unclassified errors report
// ok = false.
func ErrorKind(err error) (Kind, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// IsRetryable reports whether an error is safe to retry. Classified errors
// follow the taxonomy; unclassified errors fall back to transport-level
// heuristics (network timeouts, connection resets).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED)
}

// FromHTTPStatus maps an HTTP response status to a Kind. Statuses outside the
// taxonomy (unexpected 3xx/4xx) are treated as validation failures since the
// request was understood and rejected.
func FromHTTPStatus(status int) Kind {
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthentication
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

// FromTransport maps a transport-level error (http.Client.Do failure) to a
// Kind: deadline expiry is a timeout, everything else a connection failure.
func FromTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindConnection
}

// ParseRetryAfter interprets a Retry-After header value as a delay. Only the
// delta-seconds form is supported; absolute dates are ignored.
func ParseRetryAfter(header string) *time.Duration {
	if header == "" {
		return nil
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return nil
	}
	d := time.Duration(secs) * time.Second
	return &d
}
