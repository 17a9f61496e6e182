package rest

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml
var openAPIDocument []byte

// OpenAPIDocument returns the embedded API description
func OpenAPIDocument() []byte {
	return openAPIDocument
}

// ContractValidator validates HTTP requests against the embedded OpenAPI document
type ContractValidator struct {
	doc    *openapi3.T
	router routers.Router
}

// NewContractValidator loads and validates the embedded document
func NewContractValidator() (*ContractValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document: %w", err)
	}
	if err := doc.Validate(loader.Context, openapi3.DisableSchemaFormatValidation()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}
	return &ContractValidator{doc: doc, router: router}, nil
}

// ValidateRequest validates an HTTP request against the document. Paths
// the document does not describe are not validated.
func (cv *ContractValidator) ValidateRequest(ctx context.Context, req *http.Request) error {
	route, pathParams, err := cv.router.FindRoute(req)
	if err != nil {
		if errors.Is(err, routers.ErrPathNotFound) || errors.Is(err, routers.ErrMethodNotAllowed) {
			return nil
		}
		return err
	}
	input := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			MultiError:         true,
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}
	return openapi3filter.ValidateRequest(ctx, input)
}

// Middleware rejects requests that violate the contract with a 400 envelope
func (cv *ContractValidator) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := cv.ValidateRequest(r.Context(), r); err != nil {
				writeJSON(w, http.StatusBadRequest, ResponseEnvelope{
					Success: false,
					Error: &ErrorResponse{
						Code:    "CONTRACT_VIOLATION",
						Message: "request does not match the API contract",
						Metadata: map[string]interface{}{
							"detail": err.Error(),
						},
					},
					Meta: ResponseMeta{RequestID: RequestIDFromContext(r.Context()), Timestamp: time.Now().UTC()},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ServeOpenAPI serves the embedded document
func ServeOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openAPIDocument)
}
