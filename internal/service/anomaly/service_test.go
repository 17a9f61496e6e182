package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
	"github.com/davidleathers/clinic-security-monitor/internal/testutil/fixtures"
	"github.com/davidleathers/clinic-security-monitor/internal/testutil/mocks"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*service, *mocks.AnomalyRepository) {
	t.Helper()
	repo := &mocks.AnomalyRepository{}
	svc := NewService(zaptest.NewLogger(t), repo).(*service)
	svc.now = func() time.Time { return testNow }
	return svc, repo
}

func newAnomaly(t *testing.T, status behavior.Status) *behavior.Anomaly {
	t.Helper()
	user := fixtures.User("UTC")
	e := fixtures.Login(t, user.ID, testNow.Add(-2*time.Hour), "Main Clinic")
	a := fixtures.TimeAnomaly(t, user, e)
	a.Status = status
	return a
}

func TestService_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		from     behavior.Status
		to       string
		wantCode string
	}{
		{name: "new to reviewed", from: behavior.StatusNew, to: "reviewed"},
		{name: "new to dismissed", from: behavior.StatusNew, to: "dismissed"},
		{name: "reviewed to dismissed", from: behavior.StatusReviewed, to: "dismissed"},
		{name: "escalated to dismissed", from: behavior.StatusEscalated, to: "dismissed"},
		{name: "dismissed reopened", from: behavior.StatusDismissed, to: "new"},
		{name: "escalation needs an incident", from: behavior.StatusReviewed, to: "escalated", wantCode: errors.CodeInvalidTransition},
		{name: "reviewed cannot go back to new", from: behavior.StatusReviewed, to: "new", wantCode: errors.CodeInvalidTransition},
		{name: "dismissed cannot be reviewed", from: behavior.StatusDismissed, to: "reviewed", wantCode: errors.CodeInvalidTransition},
		{name: "unknown status", from: behavior.StatusNew, to: "archived", wantCode: errors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService(t)
			a := newAnomaly(t, tt.from)
			repo.On("Get", ctx, a.ID).Return(a, nil)
			if tt.wantCode == "" {
				repo.On("UpdateStatus", ctx, a, tt.from).Return(nil)
			}

			got, err := svc.UpdateStatus(ctx, a.ID, &StatusUpdate{Status: tt.to, Operator: "officer@clinic.example.com"})
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, tt.wantCode), "got %v", err)
				repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, behavior.Status(tt.to), got.Status)
			assert.Equal(t, "officer@clinic.example.com", got.ReviewedBy)
			repo.AssertExpectations(t)
		})
	}
}

func TestService_DismissAndReopenPreservesEvidence(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	a := newAnomaly(t, behavior.StatusNew)
	details, detectedAt, severity := a.Details, a.DetectedAt, a.Severity

	repo.On("Get", ctx, a.ID).Return(a, nil)
	repo.On("UpdateStatus", ctx, a, mock.Anything).Return(nil)

	_, err := svc.UpdateStatus(ctx, a.ID, &StatusUpdate{Status: "dismissed", Operator: "officer"})
	require.NoError(t, err)
	got, err := svc.UpdateStatus(ctx, a.ID, &StatusUpdate{Status: "new", Operator: "officer"})
	require.NoError(t, err)

	assert.Equal(t, behavior.StatusNew, got.Status)
	assert.Equal(t, details, got.Details)
	assert.True(t, detectedAt.Equal(got.DetectedAt))
	assert.Equal(t, severity, got.Severity)
}

func TestService_UpdateStatusConflict(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	a := newAnomaly(t, behavior.StatusNew)

	repo.On("Get", ctx, a.ID).Return(a, nil)
	repo.On("UpdateStatus", ctx, a, behavior.StatusNew).Return(errors.ErrConcurrentModification("anomaly"))

	_, err := svc.UpdateStatus(ctx, a.ID, &StatusUpdate{Status: "reviewed", Operator: "officer"})
	require.Error(t, err)
	assert.Equal(t, 409, errors.GetStatusCode(err))
}

func TestService_ListAnomalies(t *testing.T) {
	ctx := context.Background()
	start := testNow.Add(-48 * time.Hour)
	end := testNow

	tests := []struct {
		name        string
		query       *ListQuery
		wantFilter  behavior.AnomalyFilter
		returned    int
		total       int
		wantHasMore bool
		wantCode    string
	}{
		{
			name:        "defaults",
			query:       &ListQuery{},
			wantFilter:  behavior.AnomalyFilter{Limit: 50},
			returned:    50,
			total:       120,
			wantHasMore: true,
		},
		{
			name:       "limit is capped",
			query:      &ListQuery{Limit: 1000, Offset: 100, Status: "new", Severity: "high"},
			wantFilter: behavior.AnomalyFilter{Limit: 200, Offset: 100, Status: behavior.StatusNew, Severity: behavior.SeverityHigh},
			returned:   20,
			total:      120,
		},
		{
			name:       "date range",
			query:      &ListQuery{StartDate: &start, EndDate: &end, Limit: 10},
			wantFilter: behavior.AnomalyFilter{From: &start, To: &end, Limit: 10},
			returned:   0,
			total:      0,
		},
		{name: "bad severity", query: &ListQuery{Severity: "critical"}, wantCode: errors.CodeValidation},
		{name: "inverted range", query: &ListQuery{StartDate: &end, EndDate: &start}, wantCode: errors.CodeValidation},
		{name: "negative offset", query: &ListQuery{Offset: -1}, wantCode: errors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService(t)
			if tt.wantCode == "" {
				page := make([]*behavior.Anomaly, tt.returned)
				repo.On("List", ctx, tt.wantFilter).Return(page, tt.total, nil)
			}

			res, err := svc.ListAnomalies(ctx, tt.query)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.Len(t, res.Anomalies, tt.returned)
			assert.Equal(t, tt.total, res.Pagination.Total)
			assert.Equal(t, tt.wantFilter.Limit, res.Pagination.Limit)
			assert.Equal(t, tt.wantHasMore, res.Pagination.HasMore)
			repo.AssertExpectations(t)
		})
	}
}

func TestService_StatisticsUsesTrailingWeek(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	stats := behavior.NewAnomalyStatistics()
	stats.Total = 3
	stats.Recent = 2

	repo.On("Statistics", ctx, testNow.Add(-7*24*time.Hour)).Return(stats, nil)

	got, err := svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Recent)
	assert.Len(t, got.ByStatus, 4)
	assert.Len(t, got.BySeverity, 3)
}
