package errors

import (
	"errors"
	"fmt"
)

// Error types for the monitoring domain
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeBusiness     ErrorType = "business"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeTimeout      ErrorType = "timeout"
)

// Error codes surfaced to API clients
const (
	CodeValidation              = "VALIDATION_ERROR"
	CodeInvalidTransition       = "INVALID_TRANSITION"
	CodeUserNotFound            = "USER_NOT_FOUND"
	CodeIncidentNotFound        = "INCIDENT_NOT_FOUND"
	CodeAnomalyNotFound         = "ANOMALY_NOT_FOUND"
	CodeNotificationNotFound    = "NOTIFICATION_NOT_FOUND"
	CodeRemediationNotFound     = "REMEDIATION_NOT_FOUND"
	CodeAlreadyEscalated        = "ALREADY_ESCALATED"
	CodeNotificationAlreadySent = "NOTIFICATION_ALREADY_SENT"
	CodeCalculationTimeout      = "CALCULATION_TIMEOUT"
	CodeDeliveryFailure         = "DELIVERY_FAILURE"
	CodeConcurrentModification  = "CONCURRENT_MODIFICATION"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: 400,
	}
}

func NewBusinessError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeBusiness,
		Code:       code,
		Message:    message,
		StatusCode: 422,
	}
}

// NewNotFoundError builds a lookup miss for resource. The code is derived
// from the resource name, e.g. "incident" -> INCIDENT_NOT_FOUND.
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       notFoundCode(resource),
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: 401,
	}
}

func NewConflictError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: 409,
	}
}

func NewTimeoutError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Code:       code,
		Message:    message,
		StatusCode: 504,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

func NewExternalError(service, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       "EXTERNAL_SERVICE_ERROR",
		Message:    fmt.Sprintf("%s service error: %s", service, message),
		Retryable:  true,
		StatusCode: 502,
		Details:    map[string]interface{}{"service": service},
	}
}

func NewRateLimitError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    message,
		Retryable:  true,
		StatusCode: 429,
	}
}

// Domain errors. These are constructors rather than shared values because
// AppError is mutable through WithDetails/WithCause.

func ErrUserNotFound() *AppError         { return NewNotFoundError("user") }
func ErrIncidentNotFound() *AppError     { return NewNotFoundError("incident") }
func ErrAnomalyNotFound() *AppError      { return NewNotFoundError("anomaly") }
func ErrNotificationNotFound() *AppError { return NewNotFoundError("notification") }
func ErrRemediationNotFound() *AppError  { return NewNotFoundError("remediation") }

func ErrAlreadyEscalated() *AppError {
	return NewConflictError(CodeAlreadyEscalated, "anomaly has already been escalated to an incident")
}

func ErrNotificationAlreadySent() *AppError {
	return NewConflictError(CodeNotificationAlreadySent, "notification is no longer pending; create a new notification to resend")
}

// ErrConcurrentModification reports a lost optimistic update on resource
func ErrConcurrentModification(resource string) *AppError {
	return NewConflictError(CodeConcurrentModification,
		fmt.Sprintf("%s was modified concurrently; reload and retry", resource))
}

func ErrCalculationTimeout() *AppError {
	return NewTimeoutError(CodeCalculationTimeout, "baseline calculation exceeded its time limit")
}

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsNotFound reports whether err is any lookup miss
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// HasCode reports whether err carries the given error code
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}

func notFoundCode(resource string) string {
	code := make([]byte, 0, len(resource)+10)
	for i := 0; i < len(resource); i++ {
		c := resource[i]
		switch {
		case c >= 'a' && c <= 'z':
			code = append(code, c-'a'+'A')
		case c == ' ' || c == '-':
			code = append(code, '_')
		default:
			code = append(code, c)
		}
	}
	return string(code) + "_NOT_FOUND"
}
