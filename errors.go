package checkout

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/sumup/checkout/clienttoken"
	"github.com/sumup/checkout/resume"
	"github.com/sumup/checkout/transport"
)

// ErrorType groups failures by who can act on them.
type ErrorType string

const (
	InvalidRequest    ErrorType = "invalid_request"    // Caller supplied a bad token or instrument.
	ProcessingError   ErrorType = "processing_error"   // Backend or network failure.
	TimeoutError      ErrorType = "timeout"            // A resume attempt ran out of time.
	CancellationError ErrorType = "cancellation_error" // Work was cancelled or dismissed.
)

// ErrorCode is a machine-readable identifier for the specific failure.
type ErrorCode string

const (
	InvalidClientToken       ErrorCode = "invalid_client_token"
	ExpiredClientToken       ErrorCode = "expired_client_token"
	ConfigFetchFailed        ErrorCode = "config_fetch_failed"
	ActionDispatchFailed     ErrorCode = "action_dispatch_failed"
	ValidationFailed         ErrorCode = "validation_error"
	MissingConfigurationID   ErrorCode = "missing_configuration_id" // Validation sub-code.
	MissingRequiredField     ErrorCode = "missing_required_field"   // Validation sub-code.
	InvalidField             ErrorCode = "invalid_field"            // Validation sub-code.
	TokenizationFailed       ErrorCode = "tokenization_failed"
	PollFailed               ErrorCode = "poll_failed"
	PollTimedOut             ErrorCode = "poll_timeout"
	AttemptCancelled         ErrorCode = "cancelled"
	UnsupportedIntent        ErrorCode = "unsupported_intent"
	UnsupportedPaymentMethod ErrorCode = "unsupported_payment_method"
)

// Sentinels for errors.Is. Any *Error with the same code matches; every
// validation sub-code also matches ErrValidation.
var (
	ErrInvalidToken             = &Error{Type: InvalidRequest, Code: InvalidClientToken, Message: "invalid client token"}
	ErrExpiredToken             = &Error{Type: InvalidRequest, Code: ExpiredClientToken, Message: "expired client token"}
	ErrConfigFetchFailed        = &Error{Type: ProcessingError, Code: ConfigFetchFailed, Message: "configuration fetch failed"}
	ErrActionDispatchFailed     = &Error{Type: ProcessingError, Code: ActionDispatchFailed, Message: "client session action failed"}
	ErrValidation               = &Error{Type: InvalidRequest, Code: ValidationFailed, Message: "validation failed"}
	ErrTokenizationFailed       = &Error{Type: ProcessingError, Code: TokenizationFailed, Message: "tokenization failed"}
	ErrPollFailed               = &Error{Type: ProcessingError, Code: PollFailed, Message: "payment failed"}
	ErrPollTimeout              = &Error{Type: TimeoutError, Code: PollTimedOut, Message: "timed out waiting for payment"}
	ErrCancelled                = &Error{Type: CancellationError, Code: AttemptCancelled, Message: "cancelled"}
	ErrUnsupportedIntent        = &Error{Type: InvalidRequest, Code: UnsupportedIntent, Message: "unsupported intent"}
	ErrUnsupportedPaymentMethod = &Error{Type: InvalidRequest, Code: UnsupportedPaymentMethod, Message: "unsupported payment method"}
)

// Error is the single error type surfaced by the SDK.
type Error struct {
	Type    ErrorType `json:"type"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Param   *string   `json:"param,omitempty"`

	status int
	cause  error
}

// Error makes *Error satisfy the stdlib error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Param != nil {
		msg = fmt.Sprintf("%s (%s)", msg, *e.Param)
	}
	if e.cause != nil {
		msg = msg + ": " + e.cause.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if e.Code == t.Code {
		return true
	}
	return t.Code == ValidationFailed && e.IsValidation()
}

// IsValidation reports whether the error was raised before any network call
// because the input was rejected.
func (e *Error) IsValidation() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case ValidationFailed, MissingConfigurationID, MissingRequiredField, InvalidField:
		return true
	}
	return false
}

// StatusCode returns the backend HTTP status that caused the error, if any.
func (e *Error) StatusCode() int {
	if e == nil {
		return 0
	}
	return e.status
}

type errorOption func(*Error)

// WithOffendingParam sets the JSON path for the field that triggered the error.
func WithOffendingParam(jsonPath string) errorOption {
	return func(er *Error) {
		er.Param = &jsonPath
	}
}

// WithCause attaches the underlying error.
func WithCause(err error) errorOption {
	return func(er *Error) {
		er.cause = err
		var terr *transport.Error
		if errors.As(err, &terr) && terr.StatusCode != 0 {
			er.status = terr.StatusCode
		}
	}
}

// NewValidationError builds an input validation error with a sub-code.
func NewValidationError(code ErrorCode, message string, opts ...errorOption) *Error {
	return newError(InvalidRequest, code, message, opts...)
}

func newError(typ ErrorType, code ErrorCode, message string, opts ...errorOption) *Error {
	errPayload := &Error{
		Type:    typ,
		Code:    code,
		Message: message,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(errPayload)
	}
	return errPayload
}

// wrap derives a new error from a sentinel.
func wrap(sentinel *Error, cause error, opts ...errorOption) *Error {
	return newError(sentinel.Type, sentinel.Code, sentinel.Message, append([]errorOption{WithCause(cause)}, opts...)...)
}

// tokenError translates client token failures.
func tokenError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, clienttoken.ErrExpiredToken):
		return wrap(ErrExpiredToken, err)
	default:
		return wrap(ErrInvalidToken, err)
	}
}

// resumeError translates resume engine failures.
func resumeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, resume.ErrCancelled):
		return wrap(ErrCancelled, err)
	case errors.Is(err, resume.ErrPollTimeout):
		return wrap(ErrPollTimeout, err)
	default:
		return wrap(ErrPollFailed, err)
	}
}

// backendError extracts a readable message from a backend error body.
func backendError(sentinel *Error, err error, body []byte) *Error {
	out := wrap(sentinel, err)
	if msg := decodeBackendMessage(body); msg != "" {
		out.Message = out.Message + ": " + strconv.Quote(msg)
	}
	return out
}
