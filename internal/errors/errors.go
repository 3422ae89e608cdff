package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Pairing codes
	ErrCodeInvalidCode   ErrorCode = "INVALID_CODE"
	ErrCodeExpiredCode   ErrorCode = "EXPIRED_CODE"
	ErrCodeDuplicateCode ErrorCode = "DUPLICATE_CODE"

	// Connection
	ErrCodeTransportUnavailable ErrorCode = "TRANSPORT_UNAVAILABLE"
	ErrCodeConnectionTimeout    ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeUnsupportedMode      ErrorCode = "UNSUPPORTED_MODE"
	ErrCodeAlreadyConnected     ErrorCode = "ALREADY_CONNECTED"
	ErrCodeQRPending            ErrorCode = "QR_PENDING"
	ErrCodeQRUnavailable        ErrorCode = "QR_UNAVAILABLE"

	// Delivery
	ErrCodeDeliveryFailed ErrorCode = "DELIVERY_FAILED"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s required", field))
}

// InvalidCode covers both a code that never existed and one already
// consumed; the store has already forgotten either, so the message does
// not distinguish them.
func InvalidCode() *AppError {
	return New(ErrCodeInvalidCode, "Invalid or expired code")
}

func ExpiredCode() *AppError {
	return New(ErrCodeExpiredCode, "Code expired")
}

func DuplicateCode(code string) *AppError {
	return New(ErrCodeDuplicateCode, fmt.Sprintf("pairing code %q already live", code))
}

func TransportUnavailable() *AppError {
	return New(ErrCodeTransportUnavailable, "Socket not ready")
}

func ConnectionTimeout() *AppError {
	return New(ErrCodeConnectionTimeout, "Timed out waiting for connection")
}

func UnsupportedMode(mode string) *AppError {
	return New(ErrCodeUnsupportedMode, fmt.Sprintf("Mode %q not supported by transport", mode))
}

func AlreadyConnected() *AppError {
	return New(ErrCodeAlreadyConnected, "Connection already active")
}

func QRPending() *AppError {
	return New(ErrCodeQRPending, "QR not generated yet")
}

func QRUnavailable() *AppError {
	return New(ErrCodeQRUnavailable, "Socket not ready")
}

func DeliveryFailed(cause error) *AppError {
	return Wrap(ErrCodeDeliveryFailed, "Failed to deliver message to owner", cause)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
