package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
)

// OperatorHeader names the operator when authentication is disabled
const OperatorHeader = "X-Operator"

// AnonymousOperator is recorded when no operator is known
const AnonymousOperator = "anonymous"

// AuthConfig holds operator authentication settings
type AuthConfig struct {
	Enabled bool
	Secret  []byte
	Issuer  string
	// PublicPaths bypass authentication
	PublicPaths []string
}

// Claims are the operator token claims
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Operator returns the identity recorded on audited changes
func (c *Claims) Operator() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}

// AuthMiddleware authenticates operators with HS256 bearer tokens
type AuthMiddleware struct {
	config *AuthConfig
	parser *jwt.Parser
	tracer trace.Tracer
	public map[string]struct{}
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(config *AuthConfig) *AuthMiddleware {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	public := make(map[string]struct{}, len(config.PublicPaths))
	for _, p := range config.PublicPaths {
		public[p] = struct{}{}
	}
	return &AuthMiddleware{
		config: config,
		parser: jwt.NewParser(opts...),
		tracer: otel.Tracer("api.rest.auth"),
		public: public,
	}
}

// Middleware returns the authentication middleware function
func (a *AuthMiddleware) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := a.public[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			if !a.config.Enabled {
				operator := strings.TrimSpace(r.Header.Get(OperatorHeader))
				if operator == "" {
					operator = AnonymousOperator
				}
				if !validOperator(operator) {
					writeUnauthorized(w, r, "operator identity too long")
					return
				}
				next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), operator)))
				return
			}

			ctx, span := a.tracer.Start(r.Context(), "auth.middleware")
			defer span.End()

			token, err := extractToken(r)
			if err != nil {
				span.RecordError(err)
				writeUnauthorized(w, r, "invalid authorization header")
				return
			}
			claims, err := a.validateToken(token)
			if err != nil {
				span.RecordError(err)
				writeUnauthorized(w, r, "invalid or expired token")
				return
			}

			operator := claims.Operator()
			span.SetAttributes(attribute.String("auth.operator", operator))
			next.ServeHTTP(w, r.WithContext(WithOperator(ctx, operator)))
		})
	}
}

func (a *AuthMiddleware) validateToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims.Operator() == "" {
		return nil, errors.New("token has no subject")
	}
	if !validOperator(claims.Operator()) {
		return nil, errors.New("operator identity too long")
	}
	return claims, nil
}

// operators are stored in 254 character audit columns
func validOperator(operator string) bool {
	return utf8.RuneCountInString(operator) <= breach.MaxOperatorLength
}

func extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("unsupported authorization scheme %q", scheme)
	}
	return strings.TrimSpace(token), nil
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	writeJSON(w, http.StatusUnauthorized, ResponseEnvelope{
		Success: false,
		Error:   &ErrorResponse{Code: "UNAUTHORIZED", Message: message},
		Meta:    ResponseMeta{RequestID: RequestIDFromContext(r.Context()), Timestamp: time.Now().UTC()},
	})
}

// WithOperator stores the authenticated operator on ctx
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, contextKeyOperator, operator)
}

// OperatorFromContext returns the authenticated operator or ""
func OperatorFromContext(ctx context.Context) string {
	op, _ := ctx.Value(contextKeyOperator).(string)
	return op
}
