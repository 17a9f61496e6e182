package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

var _ Service = (*service)(nil)

type service struct {
	anomalies behavior.AnomalyRepository
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates the anomaly lifecycle manager
func NewService(logger *zap.Logger, anomalies behavior.AnomalyRepository) Service {
	return &service{
		anomalies: anomalies,
		logger:    logger.With(zap.String("component", "anomaly_lifecycle")),
		now:       time.Now,
	}
}

func (s *service) ListAnomalies(ctx context.Context, q *ListQuery) (*ListResult, error) {
	filter, err := buildFilter(q)
	if err != nil {
		return nil, err
	}

	anomalies, total, err := s.anomalies.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if anomalies == nil {
		anomalies = []*behavior.Anomaly{}
	}

	return &ListResult{
		Anomalies: anomalies,
		Pagination: Pagination{
			Total:   total,
			Limit:   filter.Limit,
			Offset:  filter.Offset,
			HasMore: filter.Offset+len(anomalies) < total,
		},
	}, nil
}

func (s *service) GetAnomaly(ctx context.Context, id uuid.UUID) (*behavior.Anomaly, error) {
	return s.anomalies.Get(ctx, id)
}

func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, req *StatusUpdate) (*behavior.Anomaly, error) {
	a, err := s.anomalies.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := a.Status
	if err := a.TransitionTo(behavior.Status(req.Status), req.Operator, s.now()); err != nil {
		return nil, err
	}
	if err := s.anomalies.UpdateStatus(ctx, a, from); err != nil {
		return nil, err
	}

	s.logger.Info("anomaly status changed",
		zap.String("anomaly_id", a.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(a.Status)),
		zap.String("operator", req.Operator))
	return a, nil
}

// Statistics are computed on every call
func (s *service) Statistics(ctx context.Context) (*behavior.AnomalyStatistics, error) {
	return s.anomalies.Statistics(ctx, s.now().Add(-RecentWindow))
}

func buildFilter(q *ListQuery) (behavior.AnomalyFilter, error) {
	f := behavior.AnomalyFilter{
		UserID: q.UserID,
		From:   q.StartDate,
		To:     q.EndDate,
		Limit:  q.Limit,
		Offset: q.Offset,
	}

	if q.Status != "" {
		f.Status = behavior.Status(q.Status)
		if !f.Status.Valid() {
			return f, errors.NewValidationError(errors.CodeValidation,
				fmt.Sprintf("status must be one of new, reviewed, dismissed, escalated; got %q", q.Status))
		}
	}
	if q.Severity != "" {
		f.Severity = behavior.Severity(q.Severity)
		if !f.Severity.Valid() {
			return f, errors.NewValidationError(errors.CodeValidation,
				fmt.Sprintf("severity must be one of low, medium, high; got %q", q.Severity))
		}
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return f, errors.NewValidationError(errors.CodeValidation, "startDate must not be after endDate")
	}
	if f.Offset < 0 {
		return f, errors.NewValidationError(errors.CodeValidation, "offset must not be negative")
	}

	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	return f, nil
}
