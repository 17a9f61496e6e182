package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
)

// Service dispatches regulatory and individual breach notices
type Service interface {
	// CreateNotification records a pending notice for an incident
	CreateNotification(ctx context.Context, incidentID uuid.UUID, req *CreateRequest) (*breach.Notification, error)
	// SendNotification delivers a pending notice once. A delivery failure is
	// recorded on the notification and returned without an error.
	SendNotification(ctx context.Context, id uuid.UUID) (*breach.Notification, error)
	// NotifyAuthority creates and immediately sends a notice
	NotifyAuthority(ctx context.Context, incidentID uuid.UUID, req *CreateRequest) (*breach.Notification, error)
	ListNotifications(ctx context.Context, incidentID uuid.UUID) ([]*breach.Notification, error)
}

type CreateRequest struct {
	NotificationType string `json:"notificationType" validate:"required,oneof=gdpr_supervisory hipaa_hhs individual_patient"`
	RecipientEmail   string `json:"recipientEmail" validate:"required,email"`
	RecipientName    string `json:"recipientName,omitempty" validate:"omitempty,max=200"`
	Operator         string `json:"-"`
}

type Config struct {
	SendTimeout time.Duration
}

// MetricsRecorder defines the interface for recording metrics
type MetricsRecorder interface {
	RecordNotificationOutcome(ctx context.Context, notificationType, status string)
}

type noopMetrics struct{}

func (noopMetrics) RecordNotificationOutcome(context.Context, string, string) {}
