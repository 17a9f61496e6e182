package remediation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
)

var _ Service = (*service)(nil)

type service struct {
	incidents    breach.IncidentRepository
	remediations breach.RemediationRepository
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates the remediation tracker
func NewService(logger *zap.Logger, incidents breach.IncidentRepository, remediations breach.RemediationRepository) Service {
	return &service{
		incidents:    incidents,
		remediations: remediations,
		logger:       logger.With(zap.String("component", "remediation_tracker")),
		now:          time.Now,
	}
}

func (s *service) AddRemediation(ctx context.Context, incidentID uuid.UUID, req *AddRequest) (*breach.Remediation, error) {
	if _, err := s.incidents.Get(ctx, incidentID); err != nil {
		return nil, err
	}

	r, err := breach.NewRemediation(incidentID, req.ActionTaken, breach.Effectiveness(req.Effectiveness),
		req.Notes, req.Operator, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.remediations.Create(ctx, r); err != nil {
		return nil, err
	}

	s.logger.Info("remediation recorded",
		zap.String("remediation_id", r.ID.String()),
		zap.String("incident_id", incidentID.String()),
		zap.String("effectiveness", string(r.Effectiveness)),
		zap.String("operator", req.Operator))
	return r, nil
}

func (s *service) UpdateRemediation(ctx context.Context, id uuid.UUID, req *UpdateRequest) (*breach.Remediation, error) {
	r, err := s.remediations.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	u := breach.RemediationUpdate{ActionTaken: req.ActionTaken, Notes: req.Notes}
	if req.Effectiveness != nil {
		e := breach.Effectiveness(*req.Effectiveness)
		u.Effectiveness = &e
	}
	if err := r.Apply(u, s.now()); err != nil {
		return nil, err
	}
	if err := s.remediations.Update(ctx, r); err != nil {
		return nil, err
	}

	s.logger.Info("remediation updated",
		zap.String("remediation_id", r.ID.String()),
		zap.String("effectiveness", string(r.Effectiveness)),
		zap.String("operator", req.Operator))
	return r, nil
}

func (s *service) ListRemediations(ctx context.Context, incidentID uuid.UUID) ([]*breach.Remediation, error) {
	if _, err := s.incidents.Get(ctx, incidentID); err != nil {
		return nil, err
	}
	out, err := s.remediations.ListByIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*breach.Remediation{}
	}
	return out, nil
}
