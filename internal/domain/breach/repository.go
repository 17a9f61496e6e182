package breach

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
)

// IncidentFilter narrows incident listings. Zero values match everything.
type IncidentFilter struct {
	Status   Status
	Severity Severity
	From     *time.Time
	To       *time.Time
	// Notified restricts to incidents with (true) or without (false) a sent notification
	Notified *bool
	Limit    int
	Offset   int
}

// EscalateFunc builds the incident for a locked anomaly and links the anomaly to it
type EscalateFunc func(anomaly *behavior.Anomaly) (*Incident, error)

// IncidentRepository persists incidents and their status audit trail
type IncidentRepository interface {
	Create(ctx context.Context, incident *Incident) error
	// Escalate runs fn against the row-locked anomaly and stores the
	// resulting incident and anomaly link in one transaction.
	Escalate(ctx context.Context, anomalyID uuid.UUID, fn EscalateFunc) (*Incident, error)
	Get(ctx context.Context, id uuid.UUID) (*Incident, error)
	List(ctx context.Context, filter IncidentFilter) ([]*Incident, error)
	// ChangeStatus applies fn to the locked incident and records the returned change
	ChangeStatus(ctx context.Context, id uuid.UUID, fn func(*Incident) (*StatusChange, error)) (*Incident, error)
	ListStatusChanges(ctx context.Context, incidentID uuid.UUID) ([]*StatusChange, error)
}

// NotificationRepository persists notification attempts
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id uuid.UUID) (*Notification, error)
	ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]*Notification, error)
	// ClaimDelivery marks a pending notification as being sent and reports
	// whether this caller won it. A claim taken before staleBefore that never
	// completed can be taken again.
	ClaimDelivery(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (bool, error)
	// CompleteDelivery stores the terminal outcome if the row is still
	// pending and reports whether it did.
	CompleteDelivery(ctx context.Context, n *Notification) (bool, error)
}

// RemediationRepository persists remediation actions; rows are never deleted
type RemediationRepository interface {
	Create(ctx context.Context, r *Remediation) error
	Get(ctx context.Context, id uuid.UUID) (*Remediation, error)
	Update(ctx context.Context, r *Remediation) error
	// ListByIncident returns remediations newest first
	ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]*Remediation, error)
}
