package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/wanpark/access-server-go/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error     string              `json:"error"`
	Code      apperrors.ErrorCode `json:"code"`
	Category  apperrors.Category  `json:"category"`
	Retryable bool                `json:"retryable"`
	Details   any                 `json:"details,omitempty"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		// Wrap unknown errors as internal errors
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	WriteErrorWithStatus(w, StatusFromCode(appErr.Code), appErr)
}

// WriteErrorWithStatus writes an error with a specific HTTP status code
func WriteErrorWithStatus(w http.ResponseWriter, status int, err *apperrors.AppError) {
	response := ErrorResponse{
		Error:     err.Message,
		Code:      err.Code,
		Category:  apperrors.CategoryOf(err.Code),
		Retryable: apperrors.Retryable(err.Code),
		Details:   err.Details,
	}
	WriteJSON(w, status, response)
}

// StatusFromCode maps ErrorCode to HTTP status code
func StatusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeMissingRequired:
		return http.StatusBadRequest

	// 401 Unauthorized
	case apperrors.ErrCodeUnauthorized,
		apperrors.ErrCodeInvalidCode:
		return http.StatusUnauthorized

	// 402 Payment Required
	case apperrors.ErrCodePaymentRequired:
		return http.StatusPaymentRequired

	// 403 Forbidden
	case apperrors.ErrCodeForbidden,
		apperrors.ErrCodeVaccinationRequired,
		apperrors.ErrCodeOutsideWindow,
		apperrors.ErrCodeNotReservationHold,
		apperrors.ErrCodeNotOwner,
		apperrors.ErrCodePINDisabled:
		return http.StatusForbidden

	// 404 Not Found
	case apperrors.ErrCodeNotFound,
		apperrors.ErrCodeLockNotFound,
		apperrors.ErrCodeReservationMissing:
		return http.StatusNotFound

	// 409 Conflict
	case apperrors.ErrCodeAlreadyUsed,
		apperrors.ErrCodeUseLimitReached:
		return http.StatusConflict

	// 410 Gone
	case apperrors.ErrCodeReservationExpired,
		apperrors.ErrCodeCredentialExpired,
		apperrors.ErrCodeInviteRevoked:
		return http.StatusGone

	// 422 Unprocessable Entity
	case apperrors.ErrCodeNotRental,
		apperrors.ErrCodeFacilityMismatch:
		return http.StatusUnprocessableEntity

	// 429 Too Many Requests
	case apperrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	// 502 Bad Gateway
	case apperrors.ErrCodeLockActuation:
		return http.StatusBadGateway

	// 503 Service Unavailable
	case apperrors.ErrCodeEntitlementCheck:
		return http.StatusServiceUnavailable

	// 500 Internal Server Error
	case apperrors.ErrCodeInternal,
		apperrors.ErrCodeDatabase:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
