package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies gateway errors for HTTP mapping and retry decisions.
type ErrorCode string

const (
	ErrValidation       ErrorCode = "GATE_VALIDATION"        // request shape or parameter ranges
	ErrUnknownProvider  ErrorCode = "GATE_UNKNOWN_PROVIDER"  // registry miss
	ErrUnsupportedModel ErrorCode = "GATE_UNSUPPORTED_MODEL" // catalog miss
	ErrRateLimited      ErrorCode = "GATE_RATE_LIMITED"      // upstream throttling, retry eligible
	ErrUpstream         ErrorCode = "GATE_UPSTREAM_ERROR"    // auth, network, 5xx
	ErrProtocol         ErrorCode = "GATE_PROTOCOL_ERROR"    // malformed upstream payload
	ErrCancelled        ErrorCode = "GATE_CANCELLED"         // caller abandoned the call
)

type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// AsError extracts the typed gateway error, wrapping unknown errors as
// upstream failures so callers always see a single error shape.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return &Error{Code: ErrUpstream, Message: err.Error(), HTTPStatus: http.StatusInternalServerError}
}

// IsCode reports whether err carries the given gateway error code.
func IsCode(err error, code ErrorCode) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Code == code
}

// IsRateLimited reports whether err is an upstream throttling signal.
func IsRateLimited(err error) bool { return IsCode(err, ErrRateLimited) }

func validationErr(format string, args ...any) *Error {
	return &Error{
		Code:       ErrValidation,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

func protocolErr(provider, format string, args ...any) *Error {
	return &Error{
		Code:       ErrProtocol,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusInternalServerError,
		Provider:   provider,
	}
}

func cancelledErr(provider string, cause error) *Error {
	return &Error{
		Code:       ErrCancelled,
		Message:    fmt.Sprintf("call cancelled: %v", cause),
		HTTPStatus: 499,
		Provider:   provider,
	}
}
