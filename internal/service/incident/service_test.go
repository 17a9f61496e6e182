package incident

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/archive"
	"github.com/davidleathers/clinic-security-monitor/internal/testutil"
	"github.com/davidleathers/clinic-security-monitor/internal/testutil/fixtures"
	"github.com/davidleathers/clinic-security-monitor/internal/testutil/mocks"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

const operator = "security.officer@clinic.example.com"

type incidentMocks struct {
	incidents     *mocks.IncidentRepository
	notifications *mocks.NotificationRepository
	remediations  *mocks.RemediationRepository
	archiver      *MockArchiver
	metrics       *MockMetricsRecorder
}

func newTestService(t *testing.T) (*service, *incidentMocks) {
	t.Helper()
	m := &incidentMocks{
		incidents:     &mocks.IncidentRepository{},
		notifications: &mocks.NotificationRepository{},
		remediations:  &mocks.RemediationRepository{},
		archiver:      &MockArchiver{},
		metrics:       &MockMetricsRecorder{},
	}
	svc := NewService(zaptest.NewLogger(t), m.incidents, m.notifications, m.remediations, m.archiver, m.metrics).(*service)
	svc.now = func() time.Time { return testNow }
	return svc, m
}

// escalateWith runs the escalation callback against a, the way the
// repository does inside its transaction
func escalateWith(a *behavior.Anomaly) func(context.Context, uuid.UUID, breach.EscalateFunc) (*breach.Incident, error) {
	return func(_ context.Context, _ uuid.UUID, fn breach.EscalateFunc) (*breach.Incident, error) {
		return fn(a)
	}
}

func timeAnomaly(t *testing.T) *behavior.Anomaly {
	t.Helper()
	user := fixtures.User("UTC")
	e := fixtures.Login(t, user.ID, time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC), "Main Clinic")
	return fixtures.TimeAnomaly(t, user, e)
}

func TestService_CreateIncident_Direct(t *testing.T) {
	ctx := context.Background()
	detectedAt := testNow.Add(-6 * time.Hour)

	tests := []struct {
		name     string
		req      *CreateRequest
		wantCode string
	}{
		{
			name: "valid",
			req: &CreateRequest{
				IncidentType: "lost_device", Severity: "critical",
				Description:       "Unencrypted laptop stolen from reception",
				AffectedUsers:     []string{"reception@clinic.example.com"},
				AffectedDataTypes: []string{"patient_records", "patient_records"},
				DetectedAt:        &detectedAt,
				Operator:          operator,
			},
		},
		{
			name:     "bad severity",
			req:      &CreateRequest{IncidentType: "lost_device", Severity: "severe", Description: "x", Operator: operator},
			wantCode: errors.CodeValidation,
		},
		{
			name:     "missing description",
			req:      &CreateRequest{IncidentType: "lost_device", Severity: "low", Operator: operator},
			wantCode: errors.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newTestService(t)
			if tt.wantCode == "" {
				m.incidents.On("Create", ctx, mock.AnythingOfType("*breach.Incident")).Return(nil)
				m.metrics.On("RecordIncidentCreated", ctx, "direct", "critical").Return()
			}

			inc, err := svc.CreateIncident(ctx, tt.req)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, tt.wantCode))
				m.incidents.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, breach.StatusDraft, inc.Status)
			assert.True(t, inc.DetectedAt.Equal(detectedAt))
			assert.Equal(t, []string{"patient_records"}, inc.AffectedDataTypes)
			assert.Nil(t, inc.SourceAnomalyID)
			m.incidents.AssertExpectations(t)
			m.metrics.AssertExpectations(t)
		})
	}
}

func TestService_CreateIncident_Escalation(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService(t)
	a := timeAnomaly(t)

	m.incidents.On("Escalate", ctx, a.ID, mock.Anything).Return(escalateWith(a), nil)
	m.metrics.On("RecordIncidentCreated", ctx, "escalation", "high").Return()

	inc, err := svc.CreateIncident(ctx, &CreateRequest{AnomalyID: &a.ID, Severity: "low", Operator: operator})
	require.NoError(t, err)

	assert.Equal(t, breach.SeverityHigh, inc.Severity, "severity is carried over from the anomaly")
	assert.Equal(t, breach.BehavioralIncidentType, inc.IncidentType)
	assert.Equal(t, []string{a.UserEmail}, inc.AffectedUsers)
	assert.Equal(t, breach.DefaultBehavioralDataTypes, inc.AffectedDataTypes)
	assert.Contains(t, inc.Description, a.Details.Summary())
	assert.True(t, inc.DetectedAt.Equal(a.DetectedAt))
	require.NotNil(t, inc.SourceAnomalyID)
	assert.Equal(t, a.ID, *inc.SourceAnomalyID)

	assert.Equal(t, behavior.StatusEscalated, a.Status)
	require.NotNil(t, a.IncidentID)
	assert.Equal(t, inc.ID, *a.IncidentID)
	assert.Equal(t, operator, a.ReviewedBy)
}

func TestService_CreateIncident_EscalationRejected(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		prepare  func(a *behavior.Anomaly)
		wantCode string
		conflict bool
	}{
		{
			name: "already escalated",
			prepare: func(a *behavior.Anomaly) {
				id := uuid.New()
				a.IncidentID = &id
				a.Status = behavior.StatusEscalated
			},
			wantCode: errors.CodeAlreadyEscalated,
			conflict: true,
		},
		{
			name:     "dismissed anomaly",
			prepare:  func(a *behavior.Anomaly) { a.Status = behavior.StatusDismissed },
			wantCode: errors.CodeInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newTestService(t)
			a := timeAnomaly(t)
			tt.prepare(a)

			m.incidents.On("Escalate", ctx, a.ID, mock.Anything).Return(escalateWith(a), nil)
			if tt.conflict {
				m.metrics.On("RecordEscalationConflict", ctx).Return()
			}

			_, err := svc.CreateIncident(ctx, &CreateRequest{AnomalyID: &a.ID, Operator: operator})
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.wantCode), "got %v", err)
			m.metrics.AssertExpectations(t)
			m.metrics.AssertNotCalled(t, "RecordIncidentCreated", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestService_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("resolving archives the dossier", func(t *testing.T) {
		svc, m := newTestService(t)
		inc := fixtures.Incident(t, testNow.Add(-24*time.Hour))
		inc.Status = breach.StatusContained

		m.incidents.On("ChangeStatus", ctx, inc.ID, mock.Anything).Return(
			func(_ context.Context, _ uuid.UUID, fn func(*breach.Incident) (*breach.StatusChange, error)) (*breach.Incident, error) {
				change, err := fn(inc)
				require.NoError(t, err)
				require.NotNil(t, change)
				assert.Equal(t, breach.StatusContained, change.FromStatus)
				return inc, nil
			}, nil)
		m.notifications.On("ListByIncident", mock.Anything, inc.ID).Return(nil, nil)
		m.remediations.On("ListByIncident", mock.Anything, inc.ID).Return(nil, nil)
		m.incidents.On("ListStatusChanges", mock.Anything, inc.ID).Return([]*breach.StatusChange{}, nil)
		m.archiver.On("ArchiveIncident", mock.Anything, mock.MatchedBy(func(d *archive.Dossier) bool {
			return d.Incident.ID == inc.ID && len(d.Deadlines) == 3 && d.ArchivedAt.Equal(testNow)
		})).Return(&archive.Result{Location: "s3://bucket/key"}, nil)

		got, err := svc.UpdateStatus(ctx, inc.ID, &StatusUpdate{Status: "resolved", Operator: operator})
		require.NoError(t, err)
		assert.Equal(t, breach.StatusResolved, got.Status)
		m.archiver.AssertExpectations(t)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		svc, m := newTestService(t)
		inc := fixtures.Incident(t, testNow)
		inc.Status = breach.StatusResolved

		m.incidents.On("ChangeStatus", ctx, inc.ID, mock.Anything).Return(
			func(_ context.Context, _ uuid.UUID, fn func(*breach.Incident) (*breach.StatusChange, error)) (*breach.Incident, error) {
				change, err := fn(inc)
				assert.Nil(t, change)
				return inc, err
			}, nil)

		_, err := svc.UpdateStatus(ctx, inc.ID, &StatusUpdate{Status: "resolved", Operator: operator})
		require.NoError(t, err)
		m.archiver.AssertNotCalled(t, "ArchiveIncident", mock.Anything, mock.Anything)
	})

	t.Run("archive failure does not fail the update", func(t *testing.T) {
		svc, m := newTestService(t)
		inc := fixtures.Incident(t, testNow)

		m.incidents.On("ChangeStatus", ctx, inc.ID, mock.Anything).Return(
			func(_ context.Context, _ uuid.UUID, fn func(*breach.Incident) (*breach.StatusChange, error)) (*breach.Incident, error) {
				_, err := fn(inc)
				return inc, err
			}, nil)
		m.notifications.On("ListByIncident", mock.Anything, inc.ID).Return(nil, nil)
		m.remediations.On("ListByIncident", mock.Anything, inc.ID).Return(nil, nil)
		m.incidents.On("ListStatusChanges", mock.Anything, inc.ID).Return(nil, nil)
		m.archiver.On("ArchiveIncident", mock.Anything, mock.Anything).Return(nil, errors.NewExternalError("s3", "down"))

		got, err := svc.UpdateStatus(ctx, inc.ID, &StatusUpdate{Status: "resolved", Operator: operator})
		require.NoError(t, err)
		assert.Equal(t, breach.StatusResolved, got.Status)
	})

	t.Run("unknown status", func(t *testing.T) {
		svc, m := newTestService(t)
		inc := fixtures.Incident(t, testNow)
		m.incidents.On("ChangeStatus", ctx, inc.ID, mock.Anything).Return(
			func(_ context.Context, _ uuid.UUID, fn func(*breach.Incident) (*breach.StatusChange, error)) (*breach.Incident, error) {
				_, err := fn(inc)
				return nil, err
			}, nil)

		_, err := svc.UpdateStatus(ctx, inc.ID, &StatusUpdate{Status: "closed", Operator: operator})
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeValidation))
	})
}

func TestService_GetIncident(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService(t)
	inc := fixtures.Incident(t, testNow.Add(-24*time.Hour))

	gdpr, err := breach.NewNotification(inc.ID, breach.NotificationGDPRSupervisory, "dpa@authority.example.eu", "", operator, testNow)
	require.NoError(t, err)
	require.NoError(t, gdpr.MarkSent(testNow.Add(-time.Hour)))

	m.incidents.On("Get", ctx, inc.ID).Return(inc, nil)
	m.notifications.On("ListByIncident", ctx, inc.ID).Return([]*breach.Notification{gdpr}, nil)
	m.remediations.On("ListByIncident", ctx, inc.ID).Return(nil, nil)
	m.incidents.On("ListStatusChanges", ctx, inc.ID).Return(nil, nil)

	detail, err := svc.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Notifications, 1)
	assert.NotNil(t, detail.Remediations)
	assert.NotNil(t, detail.StatusHistory)
	require.Len(t, detail.Deadlines, 3)

	byType := map[breach.NotificationType]breach.Deadline{}
	for _, d := range detail.Deadlines {
		byType[d.NotificationType] = d
	}
	gdprDeadline := byType[breach.NotificationGDPRSupervisory]
	assert.True(t, gdprDeadline.Satisfied)
	testutil.AssertTimeWithin(t, gdprDeadline.Deadline, inc.DetectedAt.Add(72*time.Hour), time.Second)

	hipaa := byType[breach.NotificationHIPAAHHS]
	assert.False(t, hipaa.Satisfied)
	assert.False(t, hipaa.Overdue)
	testutil.AssertTimeWithin(t, hipaa.Deadline, inc.DetectedAt.Add(60*24*time.Hour), time.Second)
}

func TestService_GetIncident_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService(t)
	id := uuid.New()
	m.incidents.On("Get", ctx, id).Return(nil, errors.ErrIncidentNotFound())

	_, err := svc.GetIncident(ctx, id)
	assert.True(t, errors.HasCode(err, errors.CodeIncidentNotFound))

	_, err = svc.Deadlines(ctx, id)
	assert.True(t, errors.IsNotFound(err))
}

func TestService_ListIncidents(t *testing.T) {
	ctx := context.Background()
	notified := true

	tests := []struct {
		name       string
		query      *ListQuery
		wantFilter breach.IncidentFilter
		wantCode   string
	}{
		{
			name:       "notified view",
			query:      &ListQuery{Status: "under_investigation", Notified: &notified},
			wantFilter: breach.IncidentFilter{Status: breach.StatusUnderInvestigation, Notified: &notified, Limit: DefaultLimit},
		},
		{
			name:       "critical only",
			query:      &ListQuery{Severity: "critical", Limit: 900},
			wantFilter: breach.IncidentFilter{Severity: breach.SeverityCritical, Limit: MaxLimit},
		},
		{name: "bad status", query: &ListQuery{Status: "open"}, wantCode: errors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newTestService(t)
			if tt.wantCode == "" {
				m.incidents.On("List", ctx, tt.wantFilter).Return(nil, nil)
			}
			got, err := svc.ListIncidents(ctx, tt.query)
			if tt.wantCode != "" {
				assert.True(t, errors.HasCode(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)
			m.incidents.AssertExpectations(t)
		})
	}
}
