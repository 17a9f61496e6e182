package behavior

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is the slice of an account the monitor needs: identity and timezone
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Timezone string    `json:"timezone"`
}

// Location returns the account timezone, falling back to fallback when unset or unknown
func (u *User) Location(fallback *time.Location) *time.Location {
	if u.Timezone != "" {
		if loc, err := time.LoadLocation(u.Timezone); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

// UserDirectory resolves accounts owned by the authentication subsystem
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	FindUsersByEmail(ctx context.Context, email string) ([]*User, error)
}

// EventRepository persists raw behavioral events
type EventRepository interface {
	Save(ctx context.Context, event *Event) error
	ListForBaseline(ctx context.Context, userID uuid.UUID, types []EventType, since time.Time, limit int) ([]*Event, error)
	ListUnscored(ctx context.Context, receivedBefore time.Time, limit int) ([]*Event, error)
	MarkScored(ctx context.Context, eventID uuid.UUID, at time.Time) error
}

// BaselineRepository stores at most one baseline per user and type
type BaselineRepository interface {
	// Upsert replaces the baselines for their (user, type) pairs atomically
	Upsert(ctx context.Context, baselines ...*Baseline) error
	Get(ctx context.Context, userID uuid.UUID, t BaselineType) (*Baseline, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Baseline, error)
}

// AnomalyFilter narrows anomaly listings. Zero values match everything.
type AnomalyFilter struct {
	Status   Status
	Severity Severity
	UserID   uuid.UUID
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// AnomalyStatistics is computed on demand, never cached
type AnomalyStatistics struct {
	Total      int              `json:"total"`
	ByStatus   map[Status]int   `json:"byStatus"`
	BySeverity map[Severity]int `json:"bySeverity"`
	Recent     int              `json:"recent"`
}

// NewAnomalyStatistics returns statistics with every status and severity present
func NewAnomalyStatistics() *AnomalyStatistics {
	return &AnomalyStatistics{
		ByStatus: map[Status]int{
			StatusNew: 0, StatusReviewed: 0, StatusDismissed: 0, StatusEscalated: 0,
		},
		BySeverity: map[Severity]int{
			SeverityLow: 0, SeverityMedium: 0, SeverityHigh: 0,
		},
	}
}

// AnomalyRepository persists anomalies
type AnomalyRepository interface {
	// Create stores a new anomaly. It reports false when an anomaly of the
	// same type already exists for the triggering event.
	Create(ctx context.Context, anomaly *Anomaly) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*Anomaly, error)
	// UpdateStatus writes the lifecycle fields if the stored status still equals expected
	UpdateStatus(ctx context.Context, anomaly *Anomaly, expected Status) error
	List(ctx context.Context, filter AnomalyFilter) ([]*Anomaly, int, error)
	Statistics(ctx context.Context, recentSince time.Time) (*AnomalyStatistics, error)
}
