package breach

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type Status string

const (
	StatusDraft              Status = "draft"
	StatusConfirmed          Status = "confirmed"
	StatusUnderInvestigation Status = "under_investigation"
	StatusContained          Status = "contained"
	StatusResolved           Status = "resolved"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusConfirmed, StatusUnderInvestigation, StatusContained, StatusResolved:
		return true
	}
	return false
}

// Stored field widths for incidents
const (
	MaxIncidentTypeLength = 64
	MaxOperatorLength     = 254
)

// BehavioralIncidentType is used for incidents escalated from anomalies
const BehavioralIncidentType = "behavioral_anomaly"

// DefaultBehavioralDataTypes are the data categories presumed exposed when
// a behavioral anomaly is escalated.
var DefaultBehavioralDataTypes = []string{"authentication_logs", "access_logs", "patient_records"}

// Incident is a formally tracked breach or security event
type Incident struct {
	ID                uuid.UUID  `json:"id"`
	IncidentType      string     `json:"incidentType"`
	Severity          Severity   `json:"severity"`
	Status            Status     `json:"status"`
	Description       string     `json:"description"`
	AffectedUsers     []string   `json:"affectedUsers"`
	AffectedDataTypes []string   `json:"affectedDataTypes"`
	DetectedAt        time.Time  `json:"detectedAt"`
	SourceAnomalyID   *uuid.UUID `json:"sourceAnomalyId,omitempty"`
	CreatedBy         string     `json:"createdBy"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// IncidentParams are the operator-supplied fields for a new incident
type IncidentParams struct {
	IncidentType      string
	Severity          Severity
	Description       string
	AffectedUsers     []string
	AffectedDataTypes []string
	DetectedAt        time.Time
	CreatedBy         string
}

// NewIncident creates an incident in draft status.
func NewIncident(p IncidentParams, now time.Time) (*Incident, error) {
	now = now.UTC()
	detectedAt := p.DetectedAt.UTC()
	if p.DetectedAt.IsZero() {
		detectedAt = now
	}

	inc := &Incident{
		ID:                uuid.New(),
		IncidentType:      strings.TrimSpace(p.IncidentType),
		Severity:          p.Severity,
		Status:            StatusDraft,
		Description:       strings.TrimSpace(p.Description),
		AffectedUsers:     compact(p.AffectedUsers),
		AffectedDataTypes: compact(p.AffectedDataTypes),
		DetectedAt:        detectedAt,
		CreatedBy:         p.CreatedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := inc.Validate(now); err != nil {
		return nil, err
	}
	return inc, nil
}

// FromAnomaly builds the incident for an anomaly escalation. Severity and
// detection time come from the anomaly; the description is synthesized from
// its evidence. Optional overrides may set type, users and data types, and
// an operator note is appended to the description.
func FromAnomaly(a *behavior.Anomaly, overrides IncidentParams, now time.Time) (*Incident, error) {
	p := IncidentParams{
		IncidentType:      BehavioralIncidentType,
		Severity:          Severity(a.Severity),
		Description:       DescribeAnomaly(a),
		AffectedUsers:     []string{a.UserEmail},
		AffectedDataTypes: DefaultBehavioralDataTypes,
		DetectedAt:        a.DetectedAt,
		CreatedBy:         overrides.CreatedBy,
	}
	if t := strings.TrimSpace(overrides.IncidentType); t != "" {
		p.IncidentType = t
	}
	if len(compact(overrides.AffectedUsers)) > 0 {
		p.AffectedUsers = overrides.AffectedUsers
	}
	if len(compact(overrides.AffectedDataTypes)) > 0 {
		p.AffectedDataTypes = overrides.AffectedDataTypes
	}
	if note := strings.TrimSpace(overrides.Description); note != "" {
		p.Description = p.Description + "\nOperator notes: " + note
	}

	inc, err := NewIncident(p, now)
	if err != nil {
		return nil, err
	}
	id := a.ID
	inc.SourceAnomalyID = &id
	return inc, nil
}

// DescribeAnomaly renders a deterministic, human readable incident description.
func DescribeAnomaly(a *behavior.Anomaly) string {
	user := a.UserEmail
	if user == "" {
		user = a.UserID.String()
	}
	return fmt.Sprintf("Behavioral anomaly escalated: %s (%s severity) for user %s detected at %s. Evidence: %s",
		a.Type.Label(), a.Severity, user, a.DetectedAt.UTC().Format(time.RFC3339), a.Details.Summary())
}

func (i *Incident) Validate(now time.Time) error {
	if i.IncidentType == "" {
		return errors.NewValidationError(errors.CodeValidation, "incidentType is required")
	}
	if utf8.RuneCountInString(i.IncidentType) > MaxIncidentTypeLength {
		return errors.NewValidationError(errors.CodeValidation,
			fmt.Sprintf("incidentType must be at most %d characters", MaxIncidentTypeLength))
	}
	if utf8.RuneCountInString(i.CreatedBy) > MaxOperatorLength {
		return errors.NewValidationError(errors.CodeValidation,
			fmt.Sprintf("createdBy must be at most %d characters", MaxOperatorLength))
	}
	if !i.Severity.Valid() {
		return errors.NewValidationError(errors.CodeValidation,
			fmt.Sprintf("severity must be one of low, medium, high, critical; got %q", i.Severity))
	}
	if !i.Status.Valid() {
		return errors.NewValidationError(errors.CodeValidation, fmt.Sprintf("unknown incident status %q", i.Status))
	}
	if i.Description == "" {
		return errors.NewValidationError(errors.CodeValidation, "description is required")
	}
	if i.DetectedAt.After(now.Add(5 * time.Minute)) {
		return errors.NewValidationError(errors.CodeValidation, "detectedAt cannot be in the future")
	}
	return nil
}

// StatusChange is one audited incident status transition
type StatusChange struct {
	ID         uuid.UUID `json:"id"`
	IncidentID uuid.UUID `json:"incidentId"`
	FromStatus Status    `json:"fromStatus"`
	ToStatus   Status    `json:"toStatus"`
	ChangedBy  string    `json:"changedBy"`
	ChangedAt  time.Time `json:"changedAt"`
}

// ChangeStatus moves the incident to any other status. Setting the current
// status again is a no-op and returns nil.
func (i *Incident) ChangeStatus(to Status, changedBy string, now time.Time) (*StatusChange, error) {
	if !to.Valid() {
		return nil, errors.NewValidationError(errors.CodeValidation,
			fmt.Sprintf("status must be one of draft, confirmed, under_investigation, contained, resolved; got %q", to))
	}
	if to == i.Status {
		return nil, nil
	}

	now = now.UTC()
	change := &StatusChange{
		ID:         uuid.New(),
		IncidentID: i.ID,
		FromStatus: i.Status,
		ToStatus:   to,
		ChangedBy:  changedBy,
		ChangedAt:  now,
	}
	i.Status = to
	i.UpdatedAt = now
	return change, nil
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
