package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode classifies pipeline failures. The reconnect policy keys off the
// code: transport and negotiation failures are retried, permission failures
// never are.
type ErrorCode string

const (
	ErrCodePermission  ErrorCode = "PERMISSION_DENIED"
	ErrCodeNegotiation ErrorCode = "NEGOTIATION_FAILED"
	ErrCodeTransport   ErrorCode = "TRANSPORT_FAILED"
	ErrCodeChannel     ErrorCode = "CHANNEL_FAILED"
	ErrCodeParse       ErrorCode = "MESSAGE_PARSE"
	ErrCodeStats       ErrorCode = "STATS_UNAVAILABLE"

	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError carries a classified error through the pipeline and out to the
// HTTP layer.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Recoverable reports whether the reconnect supervisor may retry after this
// error. Permission failures are terminal until the operator intervenes.
func (e *AppError) Recoverable() bool {
	switch e.Code {
	case ErrCodeNegotiation, ErrCodeTransport, ErrCodeChannel:
		return true
	default:
		return false
	}
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

// Pipeline error constructors

func NewPermissionError(message string) *AppError {
	return NewAppError(ErrCodePermission, message, http.StatusForbidden)
}

func NewNegotiationError(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeNegotiation, message, http.StatusBadGateway)
}

func NewTransportError(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeTransport, message, http.StatusBadGateway)
}

func NewChannelError(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeChannel, message, http.StatusBadGateway)
}

func NewParseError(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeParse, message, http.StatusUnprocessableEntity)
}

func NewStatsError(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeStats, message, http.StatusInternalServerError)
}

// HTTP-facing constructors

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewConflictError(message string) *AppError {
	return NewAppError(ErrCodeConflict, message, http.StatusConflict)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// IsRecoverable reports whether err classifies as retryable. Unclassified
// errors are treated as recoverable so an unknown transport failure still
// gets a reconnect attempt.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Recoverable()
	}
	return true
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr
	}

	type unwrapper interface {
		Unwrap() error
	}

	if u, ok := err.(unwrapper); ok {
		return GetAppError(u.Unwrap())
	}

	return nil
}
