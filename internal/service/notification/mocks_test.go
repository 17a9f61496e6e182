package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/mail"
)

// MockSender for tests
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg mail.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockMetricsRecorder for tests
type MockMetricsRecorder struct {
	mock.Mock
}

func (m *MockMetricsRecorder) RecordNotificationOutcome(ctx context.Context, notificationType, status string) {
	m.Called(ctx, notificationType, status)
}

// memNotifications keeps notifications in memory with the same conditional
// completion semantics as the Postgres repository.
type memNotifications struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]breach.Notification
	claims map[uuid.UUID]time.Time
	ids    []uuid.UUID
}

func newMemNotifications() *memNotifications {
	return &memNotifications{
		rows:   make(map[uuid.UUID]breach.Notification),
		claims: make(map[uuid.UUID]time.Time),
	}
}

func (r *memNotifications) Create(_ context.Context, n *breach.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[n.ID] = *n
	r.ids = append(r.ids, n.ID)
	return nil
}

func (r *memNotifications) Get(_ context.Context, id uuid.UUID) (*breach.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok {
		return nil, errors.ErrNotificationNotFound()
	}
	return &n, nil
}

func (r *memNotifications) ListByIncident(_ context.Context, incidentID uuid.UUID) ([]*breach.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*breach.Notification
	for _, id := range r.ids {
		if n := r.rows[id]; n.IncidentID == incidentID {
			out = append(out, &n)
		}
	}
	return out, nil
}

func (r *memNotifications) ClaimDelivery(_ context.Context, id uuid.UUID, now, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows[id].Status != breach.NotificationPending {
		return false, nil
	}
	if started, ok := r.claims[id]; ok && !started.Before(staleBefore) {
		return false, nil
	}
	r.claims[id] = now
	return true, nil
}

func (r *memNotifications) CompleteDelivery(_ context.Context, n *breach.Notification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows[n.ID].Status != breach.NotificationPending {
		return false, nil
	}
	r.rows[n.ID] = *n
	return true, nil
}
