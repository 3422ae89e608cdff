package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeInvalidCode, "Invalid or expired code")
		assert.Equal(t, "INVALID_CODE: Invalid or expired code", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("write credentials: disk full")
		err := Wrap(ErrCodeDatabase, "Database error", cause)
		assert.Contains(t, err.Error(), "DATABASE_ERROR")
		assert.Contains(t, err.Error(), "disk full")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"field": "number", "reason": "not a phone number"}
		err := New(ErrCodeValidation, "Validation failed").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"ValidationError", func() *AppError { return ValidationError("test") }, ErrCodeValidation},
		{"MissingRequired", func() *AppError { return MissingRequired("Phone number") }, ErrCodeMissingRequired},
		{"InvalidCode", InvalidCode, ErrCodeInvalidCode},
		{"ExpiredCode", ExpiredCode, ErrCodeExpiredCode},
		{"DuplicateCode", func() *AppError { return DuplicateCode("123456") }, ErrCodeDuplicateCode},
		{"TransportUnavailable", TransportUnavailable, ErrCodeTransportUnavailable},
		{"ConnectionTimeout", ConnectionTimeout, ErrCodeConnectionTimeout},
		{"UnsupportedMode", func() *AppError { return UnsupportedMode("pair") }, ErrCodeUnsupportedMode},
		{"AlreadyConnected", AlreadyConnected, ErrCodeAlreadyConnected},
		{"QRPending", QRPending, ErrCodeQRPending},
		{"QRUnavailable", QRUnavailable, ErrCodeQRUnavailable},
		{"DeliveryFailed", func() *AppError { return DeliveryFailed(errors.New("send failed")) }, ErrCodeDeliveryFailed},
		{"RateLimitExceeded", RateLimitExceeded, ErrCodeRateLimitExceeded},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor()
			assert.Equal(t, tt.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestObservedMessages(t *testing.T) {
	// These strings are part of the public contract; clients match on them.
	assert.Equal(t, "Invalid or expired code", InvalidCode().Message)
	assert.Equal(t, "Code expired", ExpiredCode().Message)
	assert.Equal(t, "Socket not ready", QRUnavailable().Message)
	assert.Equal(t, "Socket not ready", TransportUnavailable().Message)
}

func TestAsAppError(t *testing.T) {
	t.Run("extracts wrapped AppError", func(t *testing.T) {
		inner := InvalidCode()
		wrapped := New(ErrCodeInternal, "outer").WithCause(inner)

		appErr, ok := AsAppError(wrapped)
		assert.True(t, ok)
		assert.Equal(t, ErrCodeInternal, appErr.Code)
	})

	t.Run("plain error is not an AppError", func(t *testing.T) {
		_, ok := AsAppError(errors.New("plain"))
		assert.False(t, ok)
		assert.False(t, IsAppError(errors.New("plain")))
	})

	t.Run("GetCode falls back to internal", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("plain")))
		assert.Equal(t, ErrCodeExpiredCode, GetCode(ExpiredCode()))
	})
}
