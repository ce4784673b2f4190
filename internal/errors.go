package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeState        ErrorType = "STATE_ERROR"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidDateRange ErrorCode = "INVALID_DATE_RANGE"
	ErrCodeInvalidGuests    ErrorCode = "INVALID_GUESTS"

	ErrCodeBookingNotFound    ErrorCode = "BOOKING_NOT_FOUND"
	ErrCodePaymentNotFound    ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeUnauthorizedAccess ErrorCode = "UNAUTHORIZED_ACCESS"
	ErrCodeInvalidTransition  ErrorCode = "INVALID_STATE_TRANSITION"
	ErrCodeDateRangeTaken     ErrorCode = "DATE_RANGE_UNAVAILABLE"
	ErrCodeDeadlinePassed     ErrorCode = "PAYMENT_DEADLINE_PASSED"
	ErrCodePaymentDeclined    ErrorCode = "PAYMENT_DECLINED"
	ErrCodePaymentInProgress  ErrorCode = "PAYMENT_IN_PROGRESS"
	ErrCodePaymentUnknown     ErrorCode = "PAYMENT_OUTCOME_UNKNOWN"
	ErrCodeChargeIDConflict   ErrorCode = "CHARGE_ID_CONFLICT"
	ErrCodeAlreadySettled     ErrorCode = "PAYMENT_ALREADY_SETTLED"
	ErrCodeIdentityUnverified ErrorCode = "IDENTITY_UNVERIFIED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause returns a copy carrying the cause. The receiver is untouched so
// the package-level sentinels stay immutable under concurrent callers.
func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

// WithDetails returns a copy carrying the details, for the same reason.
func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// NewStateError reports a booking state machine violation. 422 rather than 400:
// the request was well formed, the aggregate just does not permit it.
func NewStateError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeState,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewExternalError wraps a failure of an external collaborator (charge
// provider, notification gateway) with the HTTP status the caller should see.
func NewExternalError(message string, code ErrorCode, status int) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: status,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrBookingNotFound       = NewNotFoundError("booking not found", ErrCodeBookingNotFound)
	ErrPaymentNotFound       = NewNotFoundError("payment not found", ErrCodePaymentNotFound)
	ErrUnauthorizedAccess    = NewForbiddenError("unauthorized access to booking", ErrCodeUnauthorizedAccess)
	ErrInvalidTransition     = NewStateError("booking state does not permit this operation", ErrCodeInvalidTransition)
	ErrDateRangeUnavailable  = NewConflictError("requested dates are not available for this listing", ErrCodeDateRangeTaken)
	ErrPaymentDeadlinePassed = NewStateError("payment deadline has passed", ErrCodeDeadlinePassed)

	// ErrPaymentDeclined: the provider rejected the charge. The booking is
	// unchanged and the guest may retry with a new idempotency key.
	ErrPaymentDeclined = NewExternalError("payment was declined by the provider", ErrCodePaymentDeclined, http.StatusPaymentRequired)

	// ErrPaymentInProgress: another request holding the same idempotency key is
	// still talking to the provider. Retry with the SAME key.
	ErrPaymentInProgress = NewConflictError("a payment with this idempotency key is already in progress", ErrCodePaymentInProgress)

	// ErrPaymentOutcomeUnknown: the provider call timed out. The charge may or
	// may not have happened; the only safe retry is with the SAME key.
	ErrPaymentOutcomeUnknown = NewExternalError("payment outcome unknown, retry with the same idempotency key", ErrCodePaymentUnknown, http.StatusGatewayTimeout)

	// ErrChargeIDConflict: two internal payments claimed one provider charge id.
	// Suspected double submission; never merged silently.
	ErrChargeIDConflict = NewConflictError("external charge id already recorded for another payment", ErrCodeChargeIDConflict)

	// ErrPaymentAlreadySettled: the settlement found the row out of processing,
	// meaning another path (a concurrent caller or the provider callback)
	// resolved this attempt first.
	ErrPaymentAlreadySettled = NewConflictError("payment attempt is no longer awaiting settlement", ErrCodeAlreadySettled)

	ErrIdentityUnverified = NewUnauthorizedError("user identity could not be verified", ErrCodeIdentityUnverified)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
