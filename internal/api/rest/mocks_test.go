package rest

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
	"github.com/davidleathers/clinic-security-monitor/internal/service/anomaly"
	"github.com/davidleathers/clinic-security-monitor/internal/service/baseline"
	"github.com/davidleathers/clinic-security-monitor/internal/service/incident"
	"github.com/davidleathers/clinic-security-monitor/internal/service/ingest"
	"github.com/davidleathers/clinic-security-monitor/internal/service/notification"
	"github.com/davidleathers/clinic-security-monitor/internal/service/remediation"
)

var (
	_ baseline.Service     = (*MockBaselineService)(nil)
	_ anomaly.Service      = (*MockAnomalyService)(nil)
	_ ingest.Service       = (*MockIngestService)(nil)
	_ incident.Service     = (*MockIncidentService)(nil)
	_ notification.Service = (*MockNotificationService)(nil)
	_ remediation.Service  = (*MockRemediationService)(nil)
)

type MockBaselineService struct{ mock.Mock }

func (m *MockBaselineService) GetBaselines(ctx context.Context, ref baseline.UserRef) ([]*behavior.Baseline, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*behavior.Baseline), args.Error(1)
}

func (m *MockBaselineService) Calculate(ctx context.Context, req *baseline.CalculateRequest) ([]*behavior.Baseline, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*behavior.Baseline), args.Error(1)
}

func (m *MockBaselineService) ResolveUser(ctx context.Context, ref baseline.UserRef) (*behavior.User, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*behavior.User), args.Error(1)
}

type MockAnomalyService struct{ mock.Mock }

func (m *MockAnomalyService) ListAnomalies(ctx context.Context, q *anomaly.ListQuery) (*anomaly.ListResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anomaly.ListResult), args.Error(1)
}

func (m *MockAnomalyService) GetAnomaly(ctx context.Context, id uuid.UUID) (*behavior.Anomaly, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*behavior.Anomaly), args.Error(1)
}

func (m *MockAnomalyService) UpdateStatus(ctx context.Context, id uuid.UUID, req *anomaly.StatusUpdate) (*behavior.Anomaly, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*behavior.Anomaly), args.Error(1)
}

func (m *MockAnomalyService) Statistics(ctx context.Context) (*behavior.AnomalyStatistics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*behavior.AnomalyStatistics), args.Error(1)
}

type MockIngestService struct{ mock.Mock }

func (m *MockIngestService) Ingest(ctx context.Context, req *ingest.EventRequest, source string) (*ingest.Result, error) {
	args := m.Called(ctx, req, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.Result), args.Error(1)
}

func (m *MockIngestService) Accept(ctx context.Context, e *behavior.Event, source string) (*ingest.Result, error) {
	args := m.Called(ctx, e, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.Result), args.Error(1)
}

type MockIncidentService struct{ mock.Mock }

func (m *MockIncidentService) CreateIncident(ctx context.Context, req *incident.CreateRequest) (*breach.Incident, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breach.Incident), args.Error(1)
}

func (m *MockIncidentService) GetIncident(ctx context.Context, id uuid.UUID) (*incident.Detail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*incident.Detail), args.Error(1)
}

func (m *MockIncidentService) ListIncidents(ctx context.Context, q *incident.ListQuery) ([]*breach.Incident, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*breach.Incident), args.Error(1)
}

func (m *MockIncidentService) UpdateStatus(ctx context.Context, id uuid.UUID, req *incident.StatusUpdate) (*breach.Incident, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breach.Incident), args.Error(1)
}

func (m *MockIncidentService) Deadlines(ctx context.Context, id uuid.UUID) ([]breach.Deadline, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]breach.Deadline), args.Error(1)
}

type MockNotificationService struct{ mock.Mock }

func (m *MockNotificationService) CreateNotification(ctx context.Context, incidentID uuid.UUID, req *notification.CreateRequest) (*breach.Notification, error) {
	args := m.Called(ctx, incidentID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breach.Notification), args.Error(1)
}

func (m *MockNotificationService) SendNotification(ctx context.Context, id uuid.UUID) (*breach.Notification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breach.Notification), args.Error(1)
}

func (m *MockNotificationService) NotifyAuthority(ctx context.Context, incidentID uuid.UUID, req *notification.CreateRequest) (*breach.Notification, error) {
	args := m.Called(ctx, incidentID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breach.Notification), args.Error(1)
}

func (m *MockNotificationService) ListNotifications(ctx context.Context, incidentID uuid.UUID) ([]*breach.Notification, error) {
	args := m.Called(ctx, incidentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*breach.Notification), args.Error(1)
}

type MockRemediationService struct{ mock.Mock }

func (m *MockRemediationService) AddRemediation(ctx context.Context, incidentID uuid.UUID, req *remediation.AddRequest) (*breach.Remediation, error) {
	args := m.Called(ctx, incidentID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breach.Remediation), args.Error(1)
}

func (m *MockRemediationService) UpdateRemediation(ctx context.Context, id uuid.UUID, req *remediation.UpdateRequest) (*breach.Remediation, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breach.Remediation), args.Error(1)
}

func (m *MockRemediationService) ListRemediations(ctx context.Context, incidentID uuid.UUID) ([]*breach.Remediation, error) {
	args := m.Called(ctx, incidentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*breach.Remediation), args.Error(1)
}
