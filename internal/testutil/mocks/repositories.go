package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
)

// UserDirectory mock
type UserDirectory struct {
	mock.Mock
}

func (m *UserDirectory) GetUser(ctx context.Context, id uuid.UUID) (*behavior.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*behavior.User), args.Error(1)
}

func (m *UserDirectory) FindUsersByEmail(ctx context.Context, email string) ([]*behavior.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*behavior.User), args.Error(1)
}

// EventRepository mock
type EventRepository struct {
	mock.Mock
}

func (m *EventRepository) Save(ctx context.Context, e *behavior.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *EventRepository) ListForBaseline(ctx context.Context, userID uuid.UUID, types []behavior.EventType, since time.Time, limit int) ([]*behavior.Event, error) {
	args := m.Called(ctx, userID, types, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*behavior.Event), args.Error(1)
}

func (m *EventRepository) ListUnscored(ctx context.Context, receivedBefore time.Time, limit int) ([]*behavior.Event, error) {
	args := m.Called(ctx, receivedBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*behavior.Event), args.Error(1)
}

func (m *EventRepository) MarkScored(ctx context.Context, eventID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, eventID, at)
	return args.Error(0)
}

// BaselineRepository mock. Upsert receives the variadic baselines as one slice.
type BaselineRepository struct {
	mock.Mock
}

func (m *BaselineRepository) Upsert(ctx context.Context, baselines ...*behavior.Baseline) error {
	args := m.Called(ctx, baselines)
	return args.Error(0)
}

func (m *BaselineRepository) Get(ctx context.Context, userID uuid.UUID, t behavior.BaselineType) (*behavior.Baseline, error) {
	args := m.Called(ctx, userID, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*behavior.Baseline), args.Error(1)
}

func (m *BaselineRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*behavior.Baseline, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*behavior.Baseline), args.Error(1)
}

// AnomalyRepository mock
type AnomalyRepository struct {
	mock.Mock
}

func (m *AnomalyRepository) Create(ctx context.Context, a *behavior.Anomaly) (bool, error) {
	args := m.Called(ctx, a)
	return args.Bool(0), args.Error(1)
}

func (m *AnomalyRepository) Get(ctx context.Context, id uuid.UUID) (*behavior.Anomaly, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*behavior.Anomaly), args.Error(1)
}

func (m *AnomalyRepository) UpdateStatus(ctx context.Context, a *behavior.Anomaly, expected behavior.Status) error {
	args := m.Called(ctx, a, expected)
	return args.Error(0)
}

func (m *AnomalyRepository) List(ctx context.Context, filter behavior.AnomalyFilter) ([]*behavior.Anomaly, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*behavior.Anomaly), args.Int(1), args.Error(2)
}

func (m *AnomalyRepository) Statistics(ctx context.Context, recentSince time.Time) (*behavior.AnomalyStatistics, error) {
	args := m.Called(ctx, recentSince)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*behavior.AnomalyStatistics), args.Error(1)
}

// IncidentRepository mock. Escalate and ChangeStatus accept a function as
// the first return value to run the callback against test data.
type IncidentRepository struct {
	mock.Mock
}

func (m *IncidentRepository) Create(ctx context.Context, inc *breach.Incident) error {
	args := m.Called(ctx, inc)
	return args.Error(0)
}

func (m *IncidentRepository) Escalate(ctx context.Context, anomalyID uuid.UUID, fn breach.EscalateFunc) (*breach.Incident, error) {
	args := m.Called(ctx, anomalyID, fn)
	if rf, ok := args.Get(0).(func(context.Context, uuid.UUID, breach.EscalateFunc) (*breach.Incident, error)); ok {
		return rf(ctx, anomalyID, fn)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breach.Incident), args.Error(1)
}

func (m *IncidentRepository) Get(ctx context.Context, id uuid.UUID) (*breach.Incident, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breach.Incident), args.Error(1)
}

func (m *IncidentRepository) List(ctx context.Context, filter breach.IncidentFilter) ([]*breach.Incident, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*breach.Incident), args.Error(1)
}

func (m *IncidentRepository) ChangeStatus(ctx context.Context, id uuid.UUID, fn func(*breach.Incident) (*breach.StatusChange, error)) (*breach.Incident, error) {
	args := m.Called(ctx, id, fn)
	if rf, ok := args.Get(0).(func(context.Context, uuid.UUID, func(*breach.Incident) (*breach.StatusChange, error)) (*breach.Incident, error)); ok {
		return rf(ctx, id, fn)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breach.Incident), args.Error(1)
}

func (m *IncidentRepository) ListStatusChanges(ctx context.Context, incidentID uuid.UUID) ([]*breach.StatusChange, error) {
	args := m.Called(ctx, incidentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*breach.StatusChange), args.Error(1)
}

// NotificationRepository mock
type NotificationRepository struct {
	mock.Mock
}

func (m *NotificationRepository) Create(ctx context.Context, n *breach.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *NotificationRepository) Get(ctx context.Context, id uuid.UUID) (*breach.Notification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breach.Notification), args.Error(1)
}

func (m *NotificationRepository) ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]*breach.Notification, error) {
	args := m.Called(ctx, incidentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*breach.Notification), args.Error(1)
}

func (m *NotificationRepository) ClaimDelivery(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (bool, error) {
	args := m.Called(ctx, id, now, staleBefore)
	return args.Bool(0), args.Error(1)
}

func (m *NotificationRepository) CompleteDelivery(ctx context.Context, n *breach.Notification) (bool, error) {
	args := m.Called(ctx, n)
	return args.Bool(0), args.Error(1)
}

// RemediationRepository mock
type RemediationRepository struct {
	mock.Mock
}

func (m *RemediationRepository) Create(ctx context.Context, r *breach.Remediation) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *RemediationRepository) Get(ctx context.Context, id uuid.UUID) (*breach.Remediation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breach.Remediation), args.Error(1)
}

func (m *RemediationRepository) Update(ctx context.Context, r *breach.Remediation) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *RemediationRepository) ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]*breach.Remediation, error) {
	args := m.Called(ctx, incidentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*breach.Remediation), args.Error(1)
}

var (
	_ behavior.UserDirectory        = (*UserDirectory)(nil)
	_ behavior.EventRepository      = (*EventRepository)(nil)
	_ behavior.BaselineRepository   = (*BaselineRepository)(nil)
	_ behavior.AnomalyRepository    = (*AnomalyRepository)(nil)
	_ breach.IncidentRepository     = (*IncidentRepository)(nil)
	_ breach.NotificationRepository = (*NotificationRepository)(nil)
	_ breach.RemediationRepository  = (*RemediationRepository)(nil)
)
