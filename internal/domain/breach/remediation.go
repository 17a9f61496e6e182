package breach

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

type Effectiveness string

const (
	EffectivenessPending     Effectiveness = "pending"
	EffectivenessEffective   Effectiveness = "effective"
	EffectivenessPartial     Effectiveness = "partial"
	EffectivenessIneffective Effectiveness = "ineffective"
)

func (e Effectiveness) Valid() bool {
	switch e {
	case EffectivenessPending, EffectivenessEffective, EffectivenessPartial, EffectivenessIneffective:
		return true
	}
	return false
}

// Remediation is a logged corrective action. TakenAt, TakenBy and
// IncidentID never change after creation and the record is never deleted.
type Remediation struct {
	ID            uuid.UUID     `json:"id"`
	IncidentID    uuid.UUID     `json:"incidentId"`
	ActionTaken   string        `json:"actionTaken"`
	Effectiveness Effectiveness `json:"effectiveness"`
	Notes         string        `json:"notes,omitempty"`
	TakenAt       time.Time     `json:"takenAt"`
	TakenBy       string        `json:"takenBy"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// RemediationUpdate carries the editable fields; nil means unchanged
type RemediationUpdate struct {
	ActionTaken   *string
	Effectiveness *Effectiveness
	Notes         *string
}

func NewRemediation(incidentID uuid.UUID, actionTaken string, effectiveness Effectiveness, notes, takenBy string, now time.Time) (*Remediation, error) {
	if incidentID == uuid.Nil {
		return nil, errors.NewValidationError(errors.CodeValidation, "incidentId is required")
	}
	if takenBy == "" {
		return nil, errors.NewValidationError(errors.CodeValidation, "takenBy is required")
	}
	if effectiveness == "" {
		effectiveness = EffectivenessPending
	}

	now = now.UTC()
	r := &Remediation{
		ID:            uuid.New(),
		IncidentID:    incidentID,
		ActionTaken:   strings.TrimSpace(actionTaken),
		Effectiveness: effectiveness,
		Notes:         strings.TrimSpace(notes),
		TakenAt:       now,
		TakenBy:       takenBy,
		UpdatedAt:     now,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Apply edits the mutable fields. An empty update is rejected.
func (r *Remediation) Apply(u RemediationUpdate, now time.Time) error {
	if u.ActionTaken == nil && u.Effectiveness == nil && u.Notes == nil {
		return errors.NewValidationError(errors.CodeValidation,
			"at least one of actionTaken, effectiveness, notes must be provided")
	}

	updated := *r
	if u.ActionTaken != nil {
		updated.ActionTaken = strings.TrimSpace(*u.ActionTaken)
	}
	if u.Effectiveness != nil {
		updated.Effectiveness = *u.Effectiveness
	}
	if u.Notes != nil {
		updated.Notes = strings.TrimSpace(*u.Notes)
	}
	if err := updated.validate(); err != nil {
		return err
	}

	updated.UpdatedAt = now.UTC()
	*r = updated
	return nil
}

func (r *Remediation) validate() error {
	if r.ActionTaken == "" {
		return errors.NewValidationError(errors.CodeValidation, "actionTaken is required")
	}
	if !r.Effectiveness.Valid() {
		return errors.NewValidationError(errors.CodeValidation,
			fmt.Sprintf("effectiveness must be one of pending, effective, partial, ineffective; got %q", r.Effectiveness))
	}
	return nil
}
