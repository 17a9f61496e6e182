package incident

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/archive"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Service manages breach incidents and their status workflow
type Service interface {
	// CreateIncident creates an incident directly or, when AnomalyID is set,
	// escalates that anomaly. An anomaly is escalated at most once.
	CreateIncident(ctx context.Context, req *CreateRequest) (*breach.Incident, error)
	// GetIncident returns the incident with its notifications, remediations,
	// regulatory deadlines and status history
	GetIncident(ctx context.Context, id uuid.UUID) (*Detail, error)
	ListIncidents(ctx context.Context, q *ListQuery) ([]*breach.Incident, error)
	// UpdateStatus moves the incident to any status and audits the change
	UpdateStatus(ctx context.Context, id uuid.UUID, req *StatusUpdate) (*breach.Incident, error)
	Deadlines(ctx context.Context, id uuid.UUID) ([]breach.Deadline, error)
}

// CreateRequest carries operator input. For escalations the severity and
// detection time come from the anomaly and Description is kept as an
// operator note.
type CreateRequest struct {
	IncidentType      string
	Severity          string
	Description       string
	AffectedUsers     []string
	AffectedDataTypes []string
	DetectedAt        *time.Time
	AnomalyID         *uuid.UUID
	Operator          string
}

type ListQuery struct {
	Status    string
	Severity  string
	StartDate *time.Time
	EndDate   *time.Time
	// Notified keeps only incidents with (true) or without (false) a sent notification
	Notified *bool
	Limit    int
	Offset   int
}

type StatusUpdate struct {
	Status   string
	Operator string
}

// Detail is the per-incident operator view
type Detail struct {
	Incident      *breach.Incident       `json:"incident"`
	Notifications []*breach.Notification `json:"notifications"`
	Remediations  []*breach.Remediation  `json:"remediations"`
	Deadlines     []breach.Deadline      `json:"deadlines"`
	StatusHistory []*breach.StatusChange `json:"statusHistory"`
}

// MetricsRecorder receives incident measurements
type MetricsRecorder interface {
	RecordIncidentCreated(ctx context.Context, origin, severity string)
	RecordEscalationConflict(ctx context.Context)
}

// Archiver exports resolved incidents
type Archiver interface {
	ArchiveIncident(ctx context.Context, d *archive.Dossier) (*archive.Result, error)
}

type noopMetrics struct{}

func (noopMetrics) RecordIncidentCreated(context.Context, string, string) {}
func (noopMetrics) RecordEscalationConflict(context.Context)              {}
