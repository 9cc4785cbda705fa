package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Request
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired    ErrorCode = "MISSING_REQUIRED"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeLockNotFound       ErrorCode = "LOCK_NOT_FOUND"
	ErrCodeReservationMissing ErrorCode = "RESERVATION_NOT_FOUND"
	ErrCodeRateLimitExceeded  ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Entitlement
	ErrCodePaymentRequired     ErrorCode = "PAYMENT_REQUIRED"
	ErrCodeVaccinationRequired ErrorCode = "VACCINATION_REQUIRED"

	// Temporal
	ErrCodeReservationExpired ErrorCode = "RESERVATION_EXPIRED"
	ErrCodeCredentialExpired  ErrorCode = "CREDENTIAL_EXPIRED"
	ErrCodeOutsideWindow      ErrorCode = "OUTSIDE_WINDOW"

	// Integrity
	ErrCodeInvalidCode        ErrorCode = "INVALID_CODE"
	ErrCodeAlreadyUsed        ErrorCode = "ALREADY_USED"
	ErrCodeInviteRevoked      ErrorCode = "INVITE_REVOKED"
	ErrCodeUseLimitReached    ErrorCode = "USE_LIMIT_REACHED"
	ErrCodeNotReservationHold ErrorCode = "NOT_RESERVATION_HOLDER"
	ErrCodeNotRental          ErrorCode = "RESERVATION_NOT_RENTAL"
	ErrCodeFacilityMismatch   ErrorCode = "RESERVATION_FACILITY_MISMATCH"
	ErrCodeNotOwner           ErrorCode = "NOT_OWNER"
	ErrCodePINDisabled        ErrorCode = "PIN_DISABLED"

	// Infrastructure
	ErrCodeEntitlementCheck ErrorCode = "ENTITLEMENT_CHECK_FAILED"
	ErrCodeLockActuation    ErrorCode = "LOCK_ACTUATION_FAILED"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase         ErrorCode = "DATABASE_ERROR"
)

// Category groups codes by the corrective action available to the caller.
type Category string

const (
	CategoryRequest        Category = "request"
	CategoryEntitlement    Category = "entitlement"
	CategoryTemporal       Category = "temporal"
	CategoryIntegrity      Category = "integrity"
	CategoryInfrastructure Category = "infrastructure"
)

// CategoryOf returns the category for a code. Unknown codes are treated as
// infrastructure failures.
func CategoryOf(code ErrorCode) Category {
	switch code {
	case ErrCodeUnauthorized, ErrCodeForbidden, ErrCodeValidation, ErrCodeInvalidInput,
		ErrCodeMissingRequired, ErrCodeNotFound, ErrCodeLockNotFound,
		ErrCodeReservationMissing, ErrCodeRateLimitExceeded:
		return CategoryRequest
	case ErrCodePaymentRequired, ErrCodeVaccinationRequired:
		return CategoryEntitlement
	case ErrCodeReservationExpired, ErrCodeCredentialExpired, ErrCodeOutsideWindow:
		return CategoryTemporal
	case ErrCodeInvalidCode, ErrCodeAlreadyUsed, ErrCodeInviteRevoked, ErrCodeUseLimitReached,
		ErrCodeNotReservationHold, ErrCodeNotRental, ErrCodeFacilityMismatch, ErrCodeNotOwner,
		ErrCodePINDisabled:
		return CategoryIntegrity
	default:
		return CategoryInfrastructure
	}
}

// Retryable reports whether retrying the same request may succeed.
func Retryable(code ErrorCode) bool {
	return CategoryOf(code) == CategoryInfrastructure || code == ErrCodeRateLimitExceeded
}

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

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func LockNotFound(lockID string) *AppError {
	return New(ErrCodeLockNotFound, fmt.Sprintf("Lock %s is not registered", lockID))
}

func ReservationNotFound() *AppError {
	return New(ErrCodeReservationMissing, "Reservation not found")
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

// PaymentRequired carries the gate's reason so the client can tell "buy a
// pass" apart from "your pass is for another facility".
func PaymentRequired(reason string) *AppError {
	return New(ErrCodePaymentRequired, reason)
}

func VaccinationRequired() *AppError {
	return New(ErrCodeVaccinationRequired, "An approved vaccination certificate is required for entry")
}

func ReservationExpired() *AppError {
	return New(ErrCodeReservationExpired, "The reservation has already ended")
}

func CredentialExpired() *AppError {
	return New(ErrCodeCredentialExpired, "This code has expired, request a new one")
}

func OutsideWindow() *AppError {
	return New(ErrCodeOutsideWindow, "This invite is not valid at this time")
}

func InvalidCode() *AppError {
	return New(ErrCodeInvalidCode, "Invalid code")
}

func AlreadyUsed() *AppError {
	return New(ErrCodeAlreadyUsed, "This code has already been used")
}

func InviteRevoked() *AppError {
	return New(ErrCodeInviteRevoked, "This invite has been revoked by the host")
}

func UseLimitReached() *AppError {
	return New(ErrCodeUseLimitReached, "This invite has no uses left")
}

func NotReservationHolder() *AppError {
	return New(ErrCodeNotReservationHold, "Only the reservation holder can do this")
}

func ReservationNotRental() *AppError {
	return New(ErrCodeNotRental, "Only whole-facility reservations can be shared")
}

func ReservationFacilityMismatch() *AppError {
	return New(ErrCodeFacilityMismatch, "The reservation is for a different facility")
}

func NotOwner() *AppError {
	return New(ErrCodeNotOwner, "Only the host can revoke this invite")
}

func PINDisabled(lockID string) *AppError {
	return New(ErrCodePINDisabled, fmt.Sprintf("PIN access is not enabled for lock %s", lockID))
}

func EntitlementCheckFailed(cause error) *AppError {
	return Wrap(ErrCodeEntitlementCheck, "Could not confirm your membership, try again", cause)
}

func LockActuationFailed(cause error) *AppError {
	return Wrap(ErrCodeLockActuation, "The lock did not respond, try again", cause)
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
