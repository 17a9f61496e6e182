package rest

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/service/anomaly"
	"github.com/davidleathers/clinic-security-monitor/internal/service/baseline"
	"github.com/davidleathers/clinic-security-monitor/internal/service/ingest"
)

// CalculateBaselineRequest asks for a baseline recalculation of one user
type CalculateBaselineRequest struct {
	UserID       *uuid.UUID `json:"userId,omitempty"`
	Email        string     `json:"email,omitempty" validate:"required_without=UserID,omitempty,email"`
	BaselineType string     `json:"baselineType" validate:"required,oneof=location time access_pattern all"`
}

func (r *CalculateBaselineRequest) userRef() baseline.UserRef {
	ref := baseline.UserRef{Email: r.Email}
	if r.UserID != nil {
		ref.UserID = *r.UserID
	}
	return ref
}

// UpdateAnomalyRequest is an operator review of an anomaly
type UpdateAnomalyRequest struct {
	Status     string `json:"status" validate:"required"`
	ReviewedBy string `json:"reviewedBy,omitempty" validate:"max=254"`
}

func (h *Handlers) getBaselines(ctx context.Context, r *http.Request) (interface{}, error) {
	userID, err := QueryUUID(r, "userId")
	if err != nil {
		return nil, err
	}
	return h.services.Baselines.GetBaselines(ctx, baseline.UserRef{
		UserID: userID,
		Email:  r.URL.Query().Get("email"),
	})
}

func (h *Handlers) calculateBaseline(ctx context.Context, r *http.Request) (interface{}, error) {
	var req CalculateBaselineRequest
	if err := h.ParseJSON(r, &req); err != nil {
		return nil, err
	}
	baselines, err := h.services.Baselines.Calculate(ctx, &baseline.CalculateRequest{
		User:         req.userRef(),
		BaselineType: req.BaselineType,
	})
	if err != nil {
		return nil, err
	}
	if req.BaselineType != baseline.TypeAll && len(baselines) == 1 {
		return baselines[0], nil
	}
	return baselines, nil
}

func (h *Handlers) listAnomalies(ctx context.Context, r *http.Request) (interface{}, error) {
	q := &anomaly.ListQuery{
		Status:   r.URL.Query().Get("status"),
		Severity: r.URL.Query().Get("severity"),
	}
	var err error
	if q.UserID, err = QueryUUID(r, "userId"); err != nil {
		return nil, err
	}
	if q.StartDate, err = QueryTime(r, "startDate"); err != nil {
		return nil, err
	}
	if q.EndDate, err = QueryTime(r, "endDate"); err != nil {
		return nil, err
	}
	if q.Limit, err = QueryInt(r, "limit", anomaly.DefaultLimit); err != nil {
		return nil, err
	}
	if q.Offset, err = QueryInt(r, "offset", 0); err != nil {
		return nil, err
	}
	return h.services.Anomalies.ListAnomalies(ctx, q)
}

func (h *Handlers) getAnomaly(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := PathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	return h.services.Anomalies.GetAnomaly(ctx, id)
}

func (h *Handlers) updateAnomaly(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := PathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	var req UpdateAnomalyRequest
	if err := h.ParseJSON(r, &req); err != nil {
		return nil, err
	}
	operator := OperatorFromContext(ctx)
	// a named reviewer is only accepted from unauthenticated callers
	if req.ReviewedBy != "" && (operator == "" || operator == AnonymousOperator) {
		operator = req.ReviewedBy
	}
	return h.services.Anomalies.UpdateStatus(ctx, id, &anomaly.StatusUpdate{
		Status:   req.Status,
		Operator: operator,
	})
}

func (h *Handlers) anomalyStatistics(ctx context.Context, _ *http.Request) (interface{}, error) {
	return h.services.Anomalies.Statistics(ctx)
}

func (h *Handlers) ingestEvent(ctx context.Context, r *http.Request) (interface{}, error) {
	var req ingest.EventRequest
	if err := h.ParseJSON(r, &req); err != nil {
		return nil, err
	}
	return h.services.Ingest.Ingest(ctx, &req, ingest.SourceHTTP)
}
