package instrumentation

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/telemetry"
	"github.com/davidleathers/clinic-security-monitor/internal/service/incident"
	"github.com/davidleathers/clinic-security-monitor/internal/service/notification"
)

const tracerName = "clinic-security-monitor/breach"

// IncidentTracedService wraps the incident service with OpenTelemetry spans
type IncidentTracedService struct {
	service incident.Service
	tracer  trace.Tracer
}

func NewIncidentTracedService(service incident.Service) *IncidentTracedService {
	return &IncidentTracedService{service: service, tracer: telemetry.Tracer(tracerName)}
}

func (s *IncidentTracedService) CreateIncident(ctx context.Context, req *incident.CreateRequest) (*breach.Incident, error) {
	attrs := []attribute.KeyValue{attribute.Bool("incident.escalation", req.AnomalyID != nil)}
	if req.AnomalyID != nil {
		attrs = append(attrs, attribute.String("anomaly.id", req.AnomalyID.String()))
	}
	ctx, span := s.tracer.Start(ctx, "incident.CreateIncident", trace.WithAttributes(attrs...))
	defer span.End()

	inc, err := s.service.CreateIncident(ctx, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("incident.id", inc.ID.String()),
		attribute.String("incident.severity", string(inc.Severity)),
	)
	span.AddEvent("incident_opened")
	return inc, nil
}

func (s *IncidentTracedService) GetIncident(ctx context.Context, id uuid.UUID) (*incident.Detail, error) {
	ctx, span := s.tracer.Start(ctx, "incident.GetIncident",
		trace.WithAttributes(attribute.String("incident.id", id.String())))
	defer span.End()

	detail, err := s.service.GetIncident(ctx, id)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("incident.notifications", len(detail.Notifications)),
		attribute.Int("incident.remediations", len(detail.Remediations)),
	)
	return detail, nil
}

func (s *IncidentTracedService) ListIncidents(ctx context.Context, q *incident.ListQuery) ([]*breach.Incident, error) {
	ctx, span := s.tracer.Start(ctx, "incident.ListIncidents")
	defer span.End()

	incidents, err := s.service.ListIncidents(ctx, q)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("incidents.count", len(incidents)))
	return incidents, nil
}

func (s *IncidentTracedService) UpdateStatus(ctx context.Context, id uuid.UUID, req *incident.StatusUpdate) (*breach.Incident, error) {
	ctx, span := s.tracer.Start(ctx, "incident.UpdateStatus", trace.WithAttributes(
		attribute.String("incident.id", id.String()),
		attribute.String("incident.status.requested", req.Status),
	))
	defer span.End()

	inc, err := s.service.UpdateStatus(ctx, id, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.AddEvent("status_changed", trace.WithAttributes(attribute.String("incident.status", string(inc.Status))))
	return inc, nil
}

func (s *IncidentTracedService) Deadlines(ctx context.Context, id uuid.UUID) ([]breach.Deadline, error) {
	ctx, span := s.tracer.Start(ctx, "incident.Deadlines",
		trace.WithAttributes(attribute.String("incident.id", id.String())))
	defer span.End()

	deadlines, err := s.service.Deadlines(ctx, id)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	overdue := 0
	for _, d := range deadlines {
		if d.Overdue {
			overdue++
		}
	}
	span.SetAttributes(attribute.Int("deadlines.overdue", overdue))
	return deadlines, nil
}

// NotificationTracedService wraps the notification dispatcher with spans.
// A failed delivery is a successful call, so it is recorded as an event.
type NotificationTracedService struct {
	service notification.Service
	tracer  trace.Tracer
}

func NewNotificationTracedService(service notification.Service) *NotificationTracedService {
	return &NotificationTracedService{service: service, tracer: telemetry.Tracer(tracerName)}
}

func (s *NotificationTracedService) CreateNotification(ctx context.Context, incidentID uuid.UUID, req *notification.CreateRequest) (*breach.Notification, error) {
	ctx, span := s.tracer.Start(ctx, "notification.CreateNotification", trace.WithAttributes(
		attribute.String("incident.id", incidentID.String()),
		attribute.String("notification.type", req.NotificationType),
	))
	defer span.End()

	n, err := s.service.CreateNotification(ctx, incidentID, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("notification.id", n.ID.String()))
	return n, nil
}

func (s *NotificationTracedService) SendNotification(ctx context.Context, id uuid.UUID) (*breach.Notification, error) {
	ctx, span := s.tracer.Start(ctx, "notification.SendNotification",
		trace.WithAttributes(attribute.String("notification.id", id.String())))
	defer span.End()

	n, err := s.service.SendNotification(ctx, id)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	recordDelivery(span, n)
	return n, nil
}

func (s *NotificationTracedService) NotifyAuthority(ctx context.Context, incidentID uuid.UUID, req *notification.CreateRequest) (*breach.Notification, error) {
	ctx, span := s.tracer.Start(ctx, "notification.NotifyAuthority", trace.WithAttributes(
		attribute.String("incident.id", incidentID.String()),
		attribute.String("notification.type", req.NotificationType),
	))
	defer span.End()

	n, err := s.service.NotifyAuthority(ctx, incidentID, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	recordDelivery(span, n)
	return n, nil
}

func (s *NotificationTracedService) ListNotifications(ctx context.Context, incidentID uuid.UUID) ([]*breach.Notification, error) {
	ctx, span := s.tracer.Start(ctx, "notification.ListNotifications",
		trace.WithAttributes(attribute.String("incident.id", incidentID.String())))
	defer span.End()

	list, err := s.service.ListNotifications(ctx, incidentID)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("notifications.count", len(list)))
	return list, nil
}

func recordDelivery(span trace.Span, n *breach.Notification) {
	span.SetAttributes(
		attribute.String("notification.id", n.ID.String()),
		attribute.String("notification.status", string(n.Status)),
	)
	if n.Status == breach.NotificationFailed {
		span.AddEvent("delivery_failed", trace.WithAttributes(attribute.String("error.message", n.ErrorMessage)))
	}
}

func recordError(span trace.Span, err error) {
	span.SetAttributes(attribute.String("error.type", errorType(err)))
	telemetry.RecordError(span, err)
}

// errorType categorizes errors by their application code
func errorType(err error) string {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unknown"
}
