package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/archive"
)

const (
	originDirect     = "direct"
	originEscalation = "escalation"
	archiveTimeout   = 30 * time.Second
)

var _ Service = (*service)(nil)

type service struct {
	incidents     breach.IncidentRepository
	notifications breach.NotificationRepository
	remediations  breach.RemediationRepository
	archiver      Archiver
	metrics       MetricsRecorder
	logger        *zap.Logger
	now           func() time.Time
}

// NewService creates the incident manager. archiver may be nil.
func NewService(
	logger *zap.Logger,
	incidents breach.IncidentRepository,
	notifications breach.NotificationRepository,
	remediations breach.RemediationRepository,
	archiver Archiver,
	metrics MetricsRecorder,
) Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &service{
		incidents:     incidents,
		notifications: notifications,
		remediations:  remediations,
		archiver:      archiver,
		metrics:       metrics,
		logger:        logger.With(zap.String("component", "incident_manager")),
		now:           time.Now,
	}
}

func (s *service) CreateIncident(ctx context.Context, req *CreateRequest) (*breach.Incident, error) {
	if req.AnomalyID != nil {
		return s.escalate(ctx, *req.AnomalyID, req)
	}

	params := breach.IncidentParams{
		IncidentType:      req.IncidentType,
		Severity:          breach.Severity(req.Severity),
		Description:       req.Description,
		AffectedUsers:     req.AffectedUsers,
		AffectedDataTypes: req.AffectedDataTypes,
		CreatedBy:         req.Operator,
	}
	if req.DetectedAt != nil {
		params.DetectedAt = *req.DetectedAt
	}

	inc, err := breach.NewIncident(params, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.incidents.Create(ctx, inc); err != nil {
		return nil, err
	}

	s.metrics.RecordIncidentCreated(ctx, originDirect, string(inc.Severity))
	s.logger.Info("incident created",
		zap.String("incident_id", inc.ID.String()),
		zap.String("severity", string(inc.Severity)),
		zap.String("operator", req.Operator))
	return inc, nil
}

// escalate builds the incident inside the repository transaction that holds
// the anomaly row lock, so concurrent escalations of one anomaly serialize
// and all but the first fail with AlreadyEscalated.
func (s *service) escalate(ctx context.Context, anomalyID uuid.UUID, req *CreateRequest) (*breach.Incident, error) {
	overrides := breach.IncidentParams{
		IncidentType:      req.IncidentType,
		Description:       req.Description,
		AffectedUsers:     req.AffectedUsers,
		AffectedDataTypes: req.AffectedDataTypes,
		CreatedBy:         req.Operator,
	}

	inc, err := s.incidents.Escalate(ctx, anomalyID, func(a *behavior.Anomaly) (*breach.Incident, error) {
		if a.IncidentID != nil {
			return nil, errors.ErrAlreadyEscalated().WithDetails(map[string]interface{}{
				"anomalyId":  a.ID,
				"incidentId": *a.IncidentID,
			})
		}
		now := s.now()
		inc, err := breach.FromAnomaly(a, overrides, now)
		if err != nil {
			return nil, err
		}
		if err := a.MarkEscalated(inc.ID, req.Operator, now); err != nil {
			return nil, err
		}
		return inc, nil
	})
	if err != nil {
		if errors.HasCode(err, errors.CodeAlreadyEscalated) {
			s.metrics.RecordEscalationConflict(ctx)
			s.logger.Warn("duplicate escalation rejected", zap.String("anomaly_id", anomalyID.String()))
		}
		return nil, err
	}

	s.metrics.RecordIncidentCreated(ctx, originEscalation, string(inc.Severity))
	s.logger.Info("anomaly escalated",
		zap.String("anomaly_id", anomalyID.String()),
		zap.String("incident_id", inc.ID.String()),
		zap.String("severity", string(inc.Severity)),
		zap.String("operator", req.Operator))
	return inc, nil
}

func (s *service) GetIncident(ctx context.Context, id uuid.UUID) (*Detail, error) {
	inc, err := s.incidents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, inc)
}

func (s *service) detail(ctx context.Context, inc *breach.Incident) (*Detail, error) {
	notifications, err := s.notifications.ListByIncident(ctx, inc.ID)
	if err != nil {
		return nil, err
	}
	remediations, err := s.remediations.ListByIncident(ctx, inc.ID)
	if err != nil {
		return nil, err
	}
	history, err := s.incidents.ListStatusChanges(ctx, inc.ID)
	if err != nil {
		return nil, err
	}

	return &Detail{
		Incident:      inc,
		Notifications: nonNil(notifications),
		Remediations:  nonNil(remediations),
		Deadlines:     breach.ComputeDeadlines(inc, notifications, s.now()),
		StatusHistory: nonNil(history),
	}, nil
}

func (s *service) ListIncidents(ctx context.Context, q *ListQuery) ([]*breach.Incident, error) {
	filter, err := buildFilter(q)
	if err != nil {
		return nil, err
	}
	incidents, err := s.incidents.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return nonNil(incidents), nil
}

func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, req *StatusUpdate) (*breach.Incident, error) {
	var change *breach.StatusChange
	inc, err := s.incidents.ChangeStatus(ctx, id, func(inc *breach.Incident) (*breach.StatusChange, error) {
		c, err := inc.ChangeStatus(breach.Status(req.Status), req.Operator, s.now())
		change = c
		return c, err
	})
	if err != nil {
		return nil, err
	}
	if change == nil {
		return inc, nil
	}

	s.logger.Info("incident status changed",
		zap.String("incident_id", inc.ID.String()),
		zap.String("from", string(change.FromStatus)),
		zap.String("to", string(change.ToStatus)),
		zap.String("operator", req.Operator))

	if inc.Status == breach.StatusResolved {
		s.archive(ctx, inc)
	}
	return inc, nil
}

// archive exports the resolved incident. Failures are logged and do not
// undo the status change.
func (s *service) archive(ctx context.Context, inc *breach.Incident) {
	if s.archiver == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	d, err := s.detail(ctx, inc)
	if err != nil {
		s.logger.Error("failed to assemble incident dossier", zap.String("incident_id", inc.ID.String()), zap.Error(err))
		return
	}

	res, err := s.archiver.ArchiveIncident(ctx, &archive.Dossier{
		Incident:      d.Incident,
		StatusHistory: d.StatusHistory,
		Notifications: d.Notifications,
		Remediations:  d.Remediations,
		Deadlines:     d.Deadlines,
		ArchivedAt:    s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("failed to archive resolved incident", zap.String("incident_id", inc.ID.String()), zap.Error(err))
		return
	}
	if res != nil {
		s.logger.Info("resolved incident archived",
			zap.String("incident_id", inc.ID.String()),
			zap.String("location", res.Location))
	}
}

func (s *service) Deadlines(ctx context.Context, id uuid.UUID) ([]breach.Deadline, error) {
	inc, err := s.incidents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	notifications, err := s.notifications.ListByIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	return breach.ComputeDeadlines(inc, notifications, s.now()), nil
}

func buildFilter(q *ListQuery) (breach.IncidentFilter, error) {
	f := breach.IncidentFilter{
		From:     q.StartDate,
		To:       q.EndDate,
		Notified: q.Notified,
		Limit:    q.Limit,
		Offset:   q.Offset,
	}
	if q.Status != "" {
		f.Status = breach.Status(q.Status)
		if !f.Status.Valid() {
			return f, errors.NewValidationError(errors.CodeValidation,
				fmt.Sprintf("status must be one of draft, confirmed, under_investigation, contained, resolved; got %q", q.Status))
		}
	}
	if q.Severity != "" {
		f.Severity = breach.Severity(q.Severity)
		if !f.Severity.Valid() {
			return f, errors.NewValidationError(errors.CodeValidation,
				fmt.Sprintf("severity must be one of low, medium, high, critical; got %q", q.Severity))
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

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
