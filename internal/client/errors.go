package client

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every failure returned by Client.Get is an *Error whose Kind is one of these,
// so callers can use errors.Is to tell a network problem from an authentication problem.
var (
	// ErrTransport reports a network failure or a non-2xx response other than the handled 401.
	ErrTransport = errors.New("transport error")
	// ErrDecode reports a response body that does not match the expected shape.
	ErrDecode = errors.New("decode error")
	// ErrRefreshFailed reports that the token refresh after a 401 failed.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrRetryExhausted reports that the single retry after a successful refresh failed.
	ErrRetryExhausted = errors.New("request failed after token refresh")
	// ErrInvalidURL reports a path that cannot be turned into an absolute URL. Never retried.
	ErrInvalidURL = errors.New("invalid request URL")
)

// errUnauthorized is the cause attached to 401 responses.
var errUnauthorized = errors.New("unauthorized")

// Error is a tagged request failure.
type Error struct {
	Kind       error
	Method     string
	URL        string
	StatusCode int // zero if no response was received
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Method)
	sb.WriteString(" ")
	sb.WriteString(e.URL)
	sb.WriteString(": ")
	sb.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// StatusCode returns the HTTP status carried by err, or zero.
func StatusCode(err error) int {
	var reqErr *Error
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}
