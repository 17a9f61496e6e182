package anomaly

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
	// RecentWindow is the trailing window counted as recent in statistics
	RecentWindow = 7 * 24 * time.Hour
)

// Service manages the operator-facing anomaly lifecycle
type Service interface {
	ListAnomalies(ctx context.Context, q *ListQuery) (*ListResult, error)
	GetAnomaly(ctx context.Context, id uuid.UUID) (*behavior.Anomaly, error)
	// UpdateStatus applies an operator transition. Escalation is rejected
	// here; it happens by creating an incident from the anomaly.
	UpdateStatus(ctx context.Context, id uuid.UUID, req *StatusUpdate) (*behavior.Anomaly, error)
	Statistics(ctx context.Context) (*behavior.AnomalyStatistics, error)
}

// ListQuery filters anomalies. Empty fields match everything.
type ListQuery struct {
	Status    string
	Severity  string
	UserID    uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

type ListResult struct {
	Anomalies  []*behavior.Anomaly `json:"anomalies"`
	Pagination Pagination          `json:"pagination"`
}

type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// StatusUpdate is an operator transition request
type StatusUpdate struct {
	Status   string
	Operator string
}
