package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/service/incident"
	"github.com/davidleathers/clinic-security-monitor/internal/service/notification"
	"github.com/davidleathers/clinic-security-monitor/internal/service/remediation"
)

// CreateIncidentRequest opens an incident directly or from an anomaly
type CreateIncidentRequest struct {
	IncidentType      string     `json:"incidentType,omitempty" validate:"max=64"`
	Severity          string     `json:"severity,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Description       string     `json:"description,omitempty" validate:"max=4000"`
	AffectedUsers     []string   `json:"affectedUsers,omitempty" validate:"max=1000,dive,max=255"`
	AffectedDataTypes []string   `json:"affectedDataTypes,omitempty" validate:"max=100,dive,max=100"`
	DetectedAt        *time.Time `json:"detectedAt,omitempty"`
	AnomalyID         *uuid.UUID `json:"anomalyId,omitempty"`
}

// IncidentStatusRequest moves an incident to another status
type IncidentStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handlers) createIncident(ctx context.Context, r *http.Request) (interface{}, error) {
	var req CreateIncidentRequest
	if err := h.ParseJSON(r, &req); err != nil {
		return nil, err
	}
	return h.services.Incidents.CreateIncident(ctx, &incident.CreateRequest{
		IncidentType:      req.IncidentType,
		Severity:          req.Severity,
		Description:       req.Description,
		AffectedUsers:     req.AffectedUsers,
		AffectedDataTypes: req.AffectedDataTypes,
		DetectedAt:        req.DetectedAt,
		AnomalyID:         req.AnomalyID,
		Operator:          OperatorFromContext(ctx),
	})
}

func (h *Handlers) listIncidents(ctx context.Context, r *http.Request) (interface{}, error) {
	q := &incident.ListQuery{
		Status:   r.URL.Query().Get("status"),
		Severity: r.URL.Query().Get("severity"),
	}
	var err error
	if q.StartDate, err = QueryTime(r, "startDate"); err != nil {
		return nil, err
	}
	if q.EndDate, err = QueryTime(r, "endDate"); err != nil {
		return nil, err
	}
	if q.Notified, err = QueryBool(r, "notified"); err != nil {
		return nil, err
	}
	if q.Limit, err = QueryInt(r, "limit", incident.DefaultLimit); err != nil {
		return nil, err
	}
	if q.Offset, err = QueryInt(r, "offset", 0); err != nil {
		return nil, err
	}
	return h.services.Incidents.ListIncidents(ctx, q)
}

func (h *Handlers) getIncident(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := PathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	return h.services.Incidents.GetIncident(ctx, id)
}

func (h *Handlers) updateIncidentStatus(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := PathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	var req IncidentStatusRequest
	if err := h.ParseJSON(r, &req); err != nil {
		return nil, err
	}
	return h.services.Incidents.UpdateStatus(ctx, id, &incident.StatusUpdate{
		Status:   req.Status,
		Operator: OperatorFromContext(ctx),
	})
}

func (h *Handlers) incidentDeadlines(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := PathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	return h.services.Incidents.Deadlines(ctx, id)
}

func (h *Handlers) createNotification(ctx context.Context, r *http.Request) (interface{}, error) {
	id, req, err := h.notificationRequest(r)
	if err != nil {
		return nil, err
	}
	return h.services.Notifications.CreateNotification(ctx, id, req)
}

func (h *Handlers) notifyAuthority(ctx context.Context, r *http.Request) (interface{}, error) {
	id, req, err := h.notificationRequest(r)
	if err != nil {
		return nil, err
	}
	return h.services.Notifications.NotifyAuthority(ctx, id, req)
}

func (h *Handlers) notificationRequest(r *http.Request) (uuid.UUID, *notification.CreateRequest, error) {
	id, err := PathUUID(r, "id")
	if err != nil {
		return uuid.Nil, nil, err
	}
	var req notification.CreateRequest
	if err := h.ParseJSON(r, &req); err != nil {
		return uuid.Nil, nil, err
	}
	req.Operator = OperatorFromContext(r.Context())
	return id, &req, nil
}

func (h *Handlers) sendNotification(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := PathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	return h.services.Notifications.SendNotification(ctx, id)
}

func (h *Handlers) listNotifications(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := PathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	return h.services.Notifications.ListNotifications(ctx, id)
}

func (h *Handlers) addRemediation(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := PathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	var req remediation.AddRequest
	if err := h.ParseJSON(r, &req); err != nil {
		return nil, err
	}
	req.Operator = OperatorFromContext(ctx)
	return h.services.Remediations.AddRemediation(ctx, id, &req)
}

func (h *Handlers) updateRemediation(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := PathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	var req remediation.UpdateRequest
	if err := h.ParseJSON(r, &req); err != nil {
		return nil, err
	}
	req.Operator = OperatorFromContext(ctx)
	return h.services.Remediations.UpdateRemediation(ctx, id, &req)
}

func (h *Handlers) listRemediations(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := PathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	return h.services.Remediations.ListRemediations(ctx, id)
}
