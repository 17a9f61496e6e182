package behavior

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

// AnomalyType names the baseline dimension an anomaly deviates from
type AnomalyType string

const (
	AnomalyUnusualLocation      AnomalyType = "unusual_location"
	AnomalyUnusualTime          AnomalyType = "unusual_time"
	AnomalyUnusualAccessPattern AnomalyType = "unusual_access_pattern"
)

// AnomalyTypeFor maps a baseline dimension to the anomaly it produces
func AnomalyTypeFor(t BaselineType) AnomalyType {
	switch t {
	case BaselineLocation:
		return AnomalyUnusualLocation
	case BaselineTime:
		return AnomalyUnusualTime
	default:
		return AnomalyUnusualAccessPattern
	}
}

func (t AnomalyType) Valid() bool {
	switch t {
	case AnomalyUnusualLocation, AnomalyUnusualTime, AnomalyUnusualAccessPattern:
		return true
	}
	return false
}

// Label is the human readable name used in incident descriptions
func (t AnomalyType) Label() string {
	return strings.ReplaceAll(string(t), "_", " ")
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

type Status string

const (
	StatusNew       Status = "new"
	StatusReviewed  Status = "reviewed"
	StatusDismissed Status = "dismissed"
	StatusEscalated Status = "escalated"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusReviewed, StatusDismissed, StatusEscalated:
		return true
	}
	return false
}

// Anomaly is a single scored deviation of an event from a user's baseline.
// Details, DetectedAt and Severity are evidence and never change after creation.
type Anomaly struct {
	ID         uuid.UUID   `json:"id"`
	UserID     uuid.UUID   `json:"userId"`
	UserEmail  string      `json:"userEmail"`
	EventID    uuid.UUID   `json:"eventId"`
	Type       AnomalyType `json:"anomalyType"`
	Severity   Severity    `json:"severity"`
	Status     Status      `json:"status"`
	Details    Details     `json:"details"`
	DetectedAt time.Time   `json:"detectedAt"`
	ReviewedBy string      `json:"reviewedBy,omitempty"`
	ReviewedAt *time.Time  `json:"reviewedAt,omitempty"`
	IncidentID *uuid.UUID  `json:"incidentId,omitempty"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// NewAnomaly builds a freshly detected anomaly in status new.
func NewAnomaly(userID uuid.UUID, userEmail string, eventID uuid.UUID, severity Severity, details Details, detectedAt time.Time) (*Anomaly, error) {
	if details == nil {
		return nil, errors.NewValidationError(errors.CodeValidation, "anomaly details are required")
	}
	a := &Anomaly{
		ID:         uuid.New(),
		UserID:     userID,
		UserEmail:  userEmail,
		EventID:    eventID,
		Type:       details.AnomalyType(),
		Severity:   severity,
		Status:     StatusNew,
		Details:    details,
		DetectedAt: detectedAt.UTC(),
		UpdatedAt:  detectedAt.UTC(),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Anomaly) Validate() error {
	if a.UserID == uuid.Nil {
		return errors.NewValidationError(errors.CodeValidation, "anomaly userId is required")
	}
	if !a.Type.Valid() {
		return errors.NewValidationError(errors.CodeValidation, fmt.Sprintf("unknown anomaly type %q", a.Type))
	}
	if !a.Severity.Valid() {
		return errors.NewValidationError(errors.CodeValidation, fmt.Sprintf("unknown severity %q", a.Severity))
	}
	if !a.Status.Valid() {
		return errors.NewValidationError(errors.CodeValidation, fmt.Sprintf("unknown status %q", a.Status))
	}
	if a.Details == nil || a.Details.AnomalyType() != a.Type {
		return errors.NewValidationError(errors.CodeValidation, "anomaly details do not match anomaly type")
	}
	return a.Details.Validate()
}

// TransitionTo applies an operator-driven status change. Escalation is not
// reachable here; it only happens through incident creation.
func (a *Anomaly) TransitionTo(target Status, operator string, now time.Time) error {
	if !target.Valid() {
		return errors.NewValidationError(errors.CodeValidation, fmt.Sprintf("unknown status %q", target))
	}

	allowed := false
	switch target {
	case StatusReviewed:
		allowed = a.Status == StatusNew
	case StatusDismissed:
		allowed = a.Status == StatusNew || a.Status == StatusReviewed || a.Status == StatusEscalated
	case StatusNew:
		allowed = a.Status == StatusDismissed
	case StatusEscalated:
		return errors.NewValidationError(errors.CodeInvalidTransition,
			"anomalies are escalated by creating an incident from them")
	}
	if !allowed {
		return errors.NewValidationError(errors.CodeInvalidTransition,
			fmt.Sprintf("cannot move anomaly from %s to %s", a.Status, target)).
			WithDetails(map[string]interface{}{"from": a.Status, "to": target})
	}

	a.Status = target
	a.touch(operator, now)
	return nil
}

// MarkEscalated links the anomaly to its incident. The link is set once.
func (a *Anomaly) MarkEscalated(incidentID uuid.UUID, operator string, now time.Time) error {
	if a.IncidentID != nil {
		return errors.ErrAlreadyEscalated().WithDetails(map[string]interface{}{
			"anomalyId":  a.ID,
			"incidentId": *a.IncidentID,
		})
	}
	if a.Status == StatusDismissed {
		return errors.NewValidationError(errors.CodeInvalidTransition,
			"dismissed anomalies must be reopened before escalation")
	}

	a.IncidentID = &incidentID
	a.Status = StatusEscalated
	a.touch(operator, now)
	return nil
}

func (a *Anomaly) touch(operator string, now time.Time) {
	now = now.UTC()
	if operator != "" {
		a.ReviewedBy = operator
		a.ReviewedAt = &now
	}
	a.UpdatedAt = now
}

// UnmarshalJSON decodes details according to anomalyType
func (a *Anomaly) UnmarshalJSON(raw []byte) error {
	type alias Anomaly
	var env struct {
		alias
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	details, err := DecodeDetails(env.Type, env.Details)
	if err != nil {
		return err
	}
	*a = Anomaly(env.alias)
	a.Details = details
	return nil
}
