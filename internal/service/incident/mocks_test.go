package incident

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/archive"
)

// MockArchiver for tests
type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) ArchiveIncident(ctx context.Context, d *archive.Dossier) (*archive.Result, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*archive.Result), args.Error(1)
}

// MockMetricsRecorder for tests
type MockMetricsRecorder struct {
	mock.Mock
}

func (m *MockMetricsRecorder) RecordIncidentCreated(ctx context.Context, origin, severity string) {
	m.Called(ctx, origin, severity)
}

func (m *MockMetricsRecorder) RecordEscalationConflict(ctx context.Context) {
	m.Called(ctx)
}
