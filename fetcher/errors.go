package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrSessionUnsupported is returned when a fetcher without browser sessions
// is asked to act on one.
var ErrSessionUnsupported = errors.New("fetcher does not support sessions")

// Kind classifies a failed fetch. Its value doubles as the metrics label.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindConnection  Kind = "connection"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindStatus      Kind = "http_status"
	KindRender      Kind = "render"
)

// Error is a classified fetch failure. Status is the HTTP status when the
// server answered, zero otherwise.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout wraps err as a timeout.
func Timeout(err error) error {
	return &Error{Kind: KindTimeout, Err: err}
}

// Render wraps err as a browser failure after the connection succeeded:
// navigation, script or content read.
func Render(err error) error {
	return &Error{Kind: KindRender, Err: err}
}

// ErrorLabel maps err to a short label for metrics and logs.
func ErrorLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var fe *Error
	if errors.As(err, &fe) {
		return string(fe.Kind)
	}
	if errors.Is(err, ErrSessionUnsupported) {
		return "session_unsupported"
	}
	return "other"
}

// Classify turns a transport error or an HTTP error status into an *Error.
// Errors that are already classified, and errors it does not recognise, are
// returned unchanged.
func Classify(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Timeout(err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: KindConnection, Err: err}
	}

	if statusCode < http.StatusBadRequest {
		return err
	}
	if err == nil {
		err = errors.New(http.StatusText(statusCode))
	}
	kind := KindStatus
	switch statusCode {
	case http.StatusForbidden:
		kind = KindForbidden
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	}
	return &Error{Kind: kind, Status: statusCode, Err: err}
}
