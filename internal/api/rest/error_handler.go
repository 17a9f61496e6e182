package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	domainErrors "github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

// ErrorHandler maps errors and recovered panics to HTTP responses
type ErrorHandler interface {
	HandleError(err error) (int, *ErrorResponse)
	HandlePanic(recovered interface{}) (int, *ErrorResponse)
}

// DefaultErrorHandler implements ErrorHandler for domain, validation, context and JSON errors
type DefaultErrorHandler struct {
	debugMode bool
}

// NewErrorHandler creates a new error handler. debugMode exposes internal error text.
func NewErrorHandler(debugMode bool) ErrorHandler {
	return &DefaultErrorHandler{debugMode: debugMode}
}

// HandleError converts various error types to HTTP responses
func (h *DefaultErrorHandler) HandleError(err error) (int, *ErrorResponse) {
	if err == nil {
		return http.StatusOK, nil
	}

	var appErr *domainErrors.AppError
	if errors.As(err, &appErr) {
		return h.handleDomainError(appErr)
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, &ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: validationErr.Message,
			Fields:  validationErr.Fields,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, &ErrorResponse{Code: "REQUEST_TIMEOUT", Message: "request timed out"}
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusRequestTimeout, &ErrorResponse{Code: "REQUEST_CANCELED", Message: "request was canceled"}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return http.StatusBadRequest, &ErrorResponse{
			Code:    "INVALID_JSON",
			Message: fmt.Sprintf("invalid JSON syntax at position %d", syntaxErr.Offset),
		}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return http.StatusBadRequest, &ErrorResponse{
			Code:    "TYPE_MISMATCH",
			Message: fmt.Sprintf("invalid type for field '%s': expected %s", typeErr.Field, typeErr.Type),
		}
	}
	// unknown fields, trailing garbage and similar decoder failures
	if strings.HasPrefix(err.Error(), "json:") {
		return http.StatusBadRequest, &ErrorResponse{Code: "INVALID_JSON", Message: err.Error()}
	}

	resp := &ErrorResponse{Code: "INTERNAL_ERROR", Message: "an internal error occurred"}
	if h.debugMode {
		resp.Metadata = map[string]interface{}{"error": err.Error()}
	}
	return http.StatusInternalServerError, resp
}

func (h *DefaultErrorHandler) handleDomainError(err *domainErrors.AppError) (int, *ErrorResponse) {
	status := err.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	resp := &ErrorResponse{Code: err.Code, Message: err.Message}
	if len(err.Details) > 0 {
		resp.Metadata = make(map[string]interface{}, len(err.Details)+1)
		for k, v := range err.Details {
			resp.Metadata[k] = v
		}
	}
	if status >= http.StatusInternalServerError && err.Type == domainErrors.ErrorTypeInternal && !h.debugMode {
		resp.Message = "an internal error occurred"
		resp.Metadata = nil
	}
	if err.Retryable {
		if resp.Metadata == nil {
			resp.Metadata = map[string]interface{}{}
		}
		resp.Metadata["retryable"] = true
	}
	return status, resp
}

// HandlePanic converts panic recovery to error response
func (h *DefaultErrorHandler) HandlePanic(recovered interface{}) (int, *ErrorResponse) {
	resp := &ErrorResponse{Code: "INTERNAL_ERROR", Message: "an unexpected error occurred"}
	if h.debugMode {
		resp.Metadata = map[string]interface{}{"panic": fmt.Sprint(recovered)}
	}
	return http.StatusInternalServerError, resp
}
