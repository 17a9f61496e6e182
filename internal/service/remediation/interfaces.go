package remediation

import (
	"context"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
)

// Service logs corrective actions against incidents
type Service interface {
	AddRemediation(ctx context.Context, incidentID uuid.UUID, req *AddRequest) (*breach.Remediation, error)
	UpdateRemediation(ctx context.Context, id uuid.UUID, req *UpdateRequest) (*breach.Remediation, error)
	// ListRemediations returns the incident's remediations newest first
	ListRemediations(ctx context.Context, incidentID uuid.UUID) ([]*breach.Remediation, error)
}

type AddRequest struct {
	ActionTaken   string `json:"actionTaken" validate:"required,max=2000"`
	Effectiveness string `json:"effectiveness,omitempty" validate:"omitempty,oneof=pending effective partial ineffective"`
	Notes         string `json:"notes,omitempty" validate:"max=4000"`
	Operator      string `json:"-"`
}

type UpdateRequest struct {
	ActionTaken   *string `json:"actionTaken,omitempty" validate:"omitempty,max=2000"`
	Effectiveness *string `json:"effectiveness,omitempty" validate:"omitempty,oneof=pending effective partial ineffective"`
	Notes         *string `json:"notes,omitempty" validate:"omitempty,max=4000"`
	Operator      string  `json:"-"`
}
