package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
)

// Event sources recorded on the ingest metric
const (
	SourceHTTP = "http"
	SourceNATS = "nats"
)

// Service accepts raw behavioral events and hands them to the detector
type Service interface {
	// Ingest validates a request, persists the event and queues it for scoring
	Ingest(ctx context.Context, req *EventRequest, source string) (*Result, error)
	// Accept persists an already validated event and queues it for scoring
	Accept(ctx context.Context, e *behavior.Event, source string) (*Result, error)
}

// EventRequest is the wire shape of a behavioral event
type EventRequest struct {
	UserID        uuid.UUID `json:"userId" validate:"required"`
	EventType     string    `json:"eventType" validate:"required,oneof=login record_access admin_action"`
	Timestamp     time.Time `json:"timestamp" validate:"required"`
	SourceAddress string    `json:"sourceAddress" validate:"max=64"`
	LocationLabel string    `json:"locationLabel,omitempty" validate:"max=255"`
	Action        string    `json:"action,omitempty" validate:"max=255"`
}

// Result reports the stored event and whether scoring was queued. An event
// that could not be queued is scored later by reconciliation.
type Result struct {
	EventID uuid.UUID `json:"eventId"`
	Queued  bool      `json:"queued"`
}

// Scorer queues events for anomaly detection
type Scorer interface {
	Submit(e *behavior.Event) bool
}

// MetricsRecorder receives ingest measurements
type MetricsRecorder interface {
	RecordEventIngested(ctx context.Context, eventType, source string)
}

type noopMetrics struct{}

func (noopMetrics) RecordEventIngested(context.Context, string, string) {}
