package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/rahlquantum/pairing-server-go/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteOK writes the success envelope: {"ok":true, ...fields}.
func WriteOK(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	WriteJSON(w, http.StatusOK, body)
}

// ErrorResponse is the standard error envelope
type ErrorResponse struct {
	OK    bool                `json:"ok"`
	Error string              `json:"error"`
	Code  apperrors.ErrorCode `json:"code"`
}

// WriteError writes an AppError as {"ok":false,"error":...,"code":...} with
// a status derived from the error kind
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	WriteJSON(w, statusFromCode(appErr.Code), ErrorResponse{
		OK:    false,
		Error: appErr.Message,
		Code:  appErr.Code,
	})
}

// statusFromCode maps ErrorCode to HTTP status code
func statusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeMissingRequired,
		apperrors.ErrCodeInvalidCode,
		apperrors.ErrCodeExpiredCode:
		return http.StatusBadRequest

	// 404 Not Found
	case apperrors.ErrCodeQRPending:
		return http.StatusNotFound

	// 409 Conflict
	case apperrors.ErrCodeAlreadyConnected,
		apperrors.ErrCodeDuplicateCode:
		return http.StatusConflict

	// 429 Too Many Requests
	case apperrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	// 501 Not Implemented
	case apperrors.ErrCodeUnsupportedMode:
		return http.StatusNotImplemented

	// 503 Service Unavailable
	case apperrors.ErrCodeTransportUnavailable,
		apperrors.ErrCodeQRUnavailable:
		return http.StatusServiceUnavailable

	// 504 Gateway Timeout
	case apperrors.ErrCodeConnectionTimeout:
		return http.StatusGatewayTimeout

	// 502 Bad Gateway
	case apperrors.ErrCodeDeliveryFailed:
		return http.StatusBadGateway

	// 500 Internal Server Error
	case apperrors.ErrCodeInternal,
		apperrors.ErrCodeDatabase:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
