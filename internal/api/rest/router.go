package rest

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/cache"
	"github.com/davidleathers/clinic-security-monitor/internal/service/anomaly"
	"github.com/davidleathers/clinic-security-monitor/internal/service/baseline"
	"github.com/davidleathers/clinic-security-monitor/internal/service/incident"
	"github.com/davidleathers/clinic-security-monitor/internal/service/ingest"
	"github.com/davidleathers/clinic-security-monitor/internal/service/notification"
	"github.com/davidleathers/clinic-security-monitor/internal/service/remediation"
)

// Services are the application services behind the API
type Services struct {
	Baselines     baseline.Service
	Anomalies     anomaly.Service
	Ingest        ingest.Service
	Incidents     incident.Service
	Notifications notification.Service
	Remediations  remediation.Service
}

// Config holds API configuration
type Config struct {
	Version        string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	Debug          bool

	ContractValidation bool
	Auth               AuthConfig

	// RequestsPerSecond and Burst bound each client ip in process; zero disables
	RequestsPerSecond int
	Burst             int
	// DistributedLimiter, when set, applies a per-operator limit shared by all instances
	DistributedLimiter cache.RateLimiter
	DistributedLimit   int
	DistributedWindow  time.Duration

	Logger     *slog.Logger
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Health     *HealthService
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Version:           "v1",
		MaxBodyBytes:      1 << 20,
		RequestTimeout:    30 * time.Second,
		RequestsPerSecond: 50,
		Burst:             100,
		DistributedLimit:  600,
		DistributedWindow: time.Minute,
		Logger:            slog.Default(),
		Registerer:        prometheus.DefaultRegisterer,
		Gatherer:          prometheus.DefaultGatherer,
	}
}

// Handlers binds the endpoints to the application services
type Handlers struct {
	*BaseHandler
	services Services
}

func NewHandlers(base *BaseHandler, services Services) *Handlers {
	return &Handlers{BaseHandler: base, services: services}
}

// RegisterRoutes registers every API endpoint on mux
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	created := WithStatus(http.StatusCreated)

	mux.HandleFunc("GET /behavioral-analytics/baselines", h.WrapHandler("GetBaselines", h.getBaselines))
	mux.HandleFunc("POST /behavioral-analytics/baselines/calculate", h.WrapHandler("CalculateBaseline", h.calculateBaseline))
	mux.HandleFunc("GET /behavioral-analytics/anomalies", h.WrapHandler("ListAnomalies", h.listAnomalies))
	mux.HandleFunc("GET /behavioral-analytics/anomalies/{id}", h.WrapHandler("GetAnomaly", h.getAnomaly))
	mux.HandleFunc("PUT /behavioral-analytics/anomalies/{id}", h.WrapHandler("UpdateAnomaly", h.updateAnomaly))
	mux.HandleFunc("GET /behavioral-analytics/statistics", h.WrapHandler("AnomalyStatistics", h.anomalyStatistics))
	mux.HandleFunc("POST /behavioral-analytics/events", h.WrapHandler("IngestEvent", h.ingestEvent, WithStatus(http.StatusAccepted)))

	mux.HandleFunc("POST /breach-incidents", h.WrapHandler("CreateIncident", h.createIncident, created))
	mux.HandleFunc("GET /breach-incidents", h.WrapHandler("ListIncidents", h.listIncidents))
	mux.HandleFunc("GET /breach-incidents/{id}", h.WrapHandler("GetIncident", h.getIncident))
	mux.HandleFunc("PUT /breach-incidents/{id}/status", h.WrapHandler("UpdateIncidentStatus", h.updateIncidentStatus))
	mux.HandleFunc("GET /breach-incidents/{id}/deadlines", h.WrapHandler("IncidentDeadlines", h.incidentDeadlines))
	mux.HandleFunc("POST /breach-incidents/{id}/notifications", h.WrapHandler("CreateNotification", h.createNotification, created))
	mux.HandleFunc("GET /breach-incidents/{id}/notifications", h.WrapHandler("ListNotifications", h.listNotifications))
	mux.HandleFunc("POST /breach-incidents/{id}/notify-authority", h.WrapHandler("NotifyAuthority", h.notifyAuthority, created))
	mux.HandleFunc("POST /breach-notifications/{id}/send", h.WrapHandler("SendNotification", h.sendNotification))
	mux.HandleFunc("POST /breach-incidents/{id}/remediations", h.WrapHandler("AddRemediation", h.addRemediation, created))
	mux.HandleFunc("GET /breach-incidents/{id}/remediations", h.WrapHandler("ListRemediations", h.listRemediations))
	mux.HandleFunc("PUT /breach-remediations/{id}", h.WrapHandler("UpdateRemediation", h.updateRemediation))
}

// PublicPaths never require authentication
var PublicPaths = []string{"/health", "/ready", "/metrics", "/openapi.yaml"}

// NewRouter assembles routes and the middleware chain
func NewRouter(config Config, services Services) (http.Handler, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.Health == nil {
		config.Health = NewHealthService(config.Version, 0)
	}
	if config.Auth.Enabled && len(config.Auth.Secret) == 0 {
		return nil, fmt.Errorf("authentication enabled without a signing secret")
	}

	errorHandler := NewErrorHandler(config.Debug)
	base := NewBaseHandler(config.Version, config.MaxBodyBytes, errorHandler)

	mux := http.NewServeMux()
	NewHandlers(base, services).RegisterRoutes(mux)
	mux.HandleFunc("GET /health", config.Health.Liveness)
	mux.HandleFunc("GET /ready", config.Health.Readiness)
	mux.HandleFunc("GET /openapi.yaml", ServeOpenAPI)
	mux.Handle("GET /metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))

	auth := config.Auth
	auth.PublicPaths = append(append([]string{}, PublicPaths...), auth.PublicPaths...)

	middlewares := []Middleware{
		SecurityHeadersMiddleware(),
		RequestIDMiddleware(),
		RequestLoggingMiddleware(config.Logger),
		RecoveryMiddleware(config.Logger, errorHandler),
		TracingMiddleware(otel.Tracer("api.rest"), otel.GetTextMapPropagator()),
		MetricsMiddleware(NewHTTPMetrics(config.Registerer), mux),
		BodyLimitMiddleware(config.MaxBodyBytes),
		TimeoutMiddleware(config.RequestTimeout),
	}
	if config.RequestsPerSecond > 0 {
		middlewares = append(middlewares, NewRateLimiter(config.RequestsPerSecond, config.Burst).Middleware())
	}
	middlewares = append(middlewares, NewAuthMiddleware(&auth).Middleware())
	if config.DistributedLimiter != nil && config.DistributedLimit > 0 {
		middlewares = append(middlewares, DistributedRateLimitMiddleware(
			config.DistributedLimiter, config.DistributedLimit, config.DistributedWindow, config.Logger))
	}
	if config.ContractValidation {
		validator, err := NewContractValidator()
		if err != nil {
			return nil, err
		}
		middlewares = append(middlewares, validator.Middleware())
	}

	return NewMiddlewareChain(middlewares...).Then(mux), nil
}
