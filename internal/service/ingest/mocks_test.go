package ingest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
)

// MockScorer for tests
type MockScorer struct {
	mock.Mock
}

func (m *MockScorer) Submit(e *behavior.Event) bool {
	args := m.Called(e)
	return args.Bool(0)
}

// MockMetricsRecorder for tests
type MockMetricsRecorder struct {
	mock.Mock
}

func (m *MockMetricsRecorder) RecordEventIngested(ctx context.Context, eventType, source string) {
	m.Called(ctx, eventType, source)
}
