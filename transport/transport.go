// Package transport is the network collaborator of the checkout SDK. The core
// only depends on [Doer]; [Client] is the default implementation backed by
// resty with OpenTelemetry instrumentation.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Request is a single backend call. Body is sent verbatim when non-nil.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response carries the raw backend reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Doer executes requests against the checkout backend.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// DoerFunc lifts bare functions into [Doer].
type DoerFunc func(ctx context.Context, req Request) (*Response, error)

// Do delegates to the wrapped function.
func (f DoerFunc) Do(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// ErrorCode classifies transport failures.
type ErrorCode string

const (
	// CodeConnectionLost marks timeouts and dropped connections. It is the only
	// code the SDK core inspects: the resume engine retries sooner on it.
	CodeConnectionLost ErrorCode = "connection_lost"
	CodeHTTPStatus     ErrorCode = "http_status"
	CodeRequestFailed  ErrorCode = "request_failed"
)

// Error describes a failed backend call.
type Error struct {
	Code       ErrorCode
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("transport: %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("transport: %s: %v", e.Code, e.Err)
	default:
		return fmt.Sprintf("transport: %s: %s", e.Code, e.Message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsConnectionLost reports whether err was classified as [CodeConnectionLost].
func IsConnectionLost(err error) bool {
	var terr *Error
	return errors.As(err, &terr) && terr.Code == CodeConnectionLost
}

// classify wraps a low level client error. Caller cancellation is never
// reported as a lost connection.
func classify(ctx context.Context, err error) *Error {
	if ctx.Err() != nil {
		return &Error{Code: CodeRequestFailed, Message: "request cancelled", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Code: CodeConnectionLost, Message: "request timed out", Err: err}
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Code: CodeConnectionLost, Message: "connection dropped", Err: err}
	}
	return &Error{Code: CodeRequestFailed, Message: err.Error(), Err: err}
}
