package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domainErrors "github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

// ResponseEnvelope wraps all API responses
type ResponseEnvelope struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Meta    ResponseMeta   `json:"meta"`
}

// ResponseMeta contains response metadata
type ResponseMeta struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version"`
	ResponseTime string    `json:"response_time,omitempty"`
}

// ErrorResponse provides detailed error information
type ErrorResponse struct {
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Fields   map[string][]string    `json:"fields,omitempty"`
	TraceID  string                 `json:"trace_id,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	validator    *validator.Validate
	tracer       trace.Tracer
	errorHandler ErrorHandler
	apiVersion   string
	maxBodySize  int64
}

// NewBaseHandler creates a base handler. maxBodySize <= 0 uses 1MB.
func NewBaseHandler(apiVersion string, maxBodySize int64, errorHandler ErrorHandler) *BaseHandler {
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}
	if errorHandler == nil {
		errorHandler = NewErrorHandler(false)
	}
	return &BaseHandler{
		validator:    newValidator(),
		tracer:       otel.Tracer("api.rest"),
		errorHandler: errorHandler,
		apiVersion:   apiVersion,
		maxBodySize:  maxBodySize,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names in field errors
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type handlerConfig struct {
	status int
}

// HandlerOption customizes a wrapped handler
type HandlerOption func(*handlerConfig)

// WithStatus sets the success status code
func WithStatus(status int) HandlerOption {
	return func(c *handlerConfig) { c.status = status }
}

// HandlerFunc is the signature of typed endpoint handlers
type HandlerFunc func(ctx context.Context, r *http.Request) (interface{}, error)

// WrapHandler adapts a typed handler to net/http with tracing and the response envelope
func (h *BaseHandler) WrapHandler(name string, handler HandlerFunc, opts ...HandlerOption) http.HandlerFunc {
	cfg := &handlerConfig{status: http.StatusOK}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := h.tracer.Start(r.Context(), name,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", r.Pattern),
			),
		)
		defer span.End()

		r = r.WithContext(ctx)
		res, err := handler(ctx, r)
		if err != nil {
			span.RecordError(err)
			h.writeError(w, r, err, start)
			return
		}
		h.writeSuccess(w, r, cfg.status, res, start)
	}
}

// ParseJSON decodes a bounded JSON body into dst and validates it
func (h *BaseHandler) ParseJSON(r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(nil, r.Body, h.maxBodySize)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domainErrors.NewValidationError("EMPTY_BODY", "request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domainErrors.NewValidationError("BODY_TOO_LARGE",
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		}
		return err
	}
	return h.Validate(dst)
}

// Validate runs struct validation and converts failures to a ValidationError
func (h *BaseHandler) Validate(v interface{}) error {
	if err := h.validator.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationError(verrs)
		}
		return err
	}
	return nil
}

// PathUUID parses a uuid path parameter
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domainErrors.NewValidationError("INVALID_ID",
			fmt.Sprintf("%s must be a valid UUID", name))
	}
	return id, nil
}

// QueryUUID parses an optional uuid query parameter
func QueryUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domainErrors.NewValidationError("INVALID_ID",
			fmt.Sprintf("%s must be a valid UUID", name))
	}
	return id, nil
}

// QueryInt parses an optional integer query parameter
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domainErrors.NewValidationError("INVALID_PARAMETER",
			fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return n, nil
}

// QueryTime parses an optional RFC 3339 timestamp or YYYY-MM-DD date
func QueryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, domainErrors.NewValidationError("INVALID_PARAMETER",
		fmt.Sprintf("%s must be an RFC 3339 timestamp or a date", name))
}

// QueryBool parses an optional boolean query parameter
func QueryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, domainErrors.NewValidationError("INVALID_PARAMETER",
			fmt.Sprintf("%s must be true or false", name))
	}
	return &b, nil
}

func (h *BaseHandler) writeSuccess(w http.ResponseWriter, r *http.Request, status int, data interface{}, start time.Time) {
	writeJSON(w, status, ResponseEnvelope{
		Success: true,
		Data:    data,
		Meta:    h.meta(r, start),
	})
}

func (h *BaseHandler) writeError(w http.ResponseWriter, r *http.Request, err error, start time.Time) {
	status, resp := h.errorHandler.HandleError(err)
	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		resp.TraceID = sc.TraceID().String()
	}
	writeJSON(w, status, ResponseEnvelope{
		Success: false,
		Error:   resp,
		Meta:    h.meta(r, start),
	})
}

func (h *BaseHandler) meta(r *http.Request, start time.Time) ResponseMeta {
	return ResponseMeta{
		RequestID:    RequestIDFromContext(r.Context()),
		Timestamp:    time.Now().UTC(),
		Version:      h.apiVersion,
		ResponseTime: time.Since(start).String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ValidationError carries per-field validation failures
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func formatValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string][]string, len(errs))
	for _, fe := range errs {
		name := fe.Field()
		fields[name] = append(fields[name], validationMessage(fe))
	}
	return &ValidationError{Message: "request validation failed", Fields: fields}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "required_without":
		return "is required when " + fe.Param() + " is not set"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
