package detection

import (
	"context"
	"time"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
)

// Service scores behavioral events against the current baselines
type Service interface {
	// Detect scores one event synchronously and returns the anomalies it created
	Detect(ctx context.Context, e *behavior.Event) ([]*behavior.Anomaly, error)
	// Submit queues an event for asynchronous scoring. It never blocks; a
	// rejected event stays unscored until the reconciler picks it up.
	Submit(e *behavior.Event) bool
	// Reconcile re-submits events that were persisted but never scored
	Reconcile(ctx context.Context) (int, error)
	// Start launches the worker pool and the reconcile loop
	Start(ctx context.Context)
	// Stop drains the worker pool
	Stop(ctx context.Context)
	Status() *WorkerPoolStatus
}

// MetricsRecorder receives detection measurements
type MetricsRecorder interface {
	RecordDetection(ctx context.Context, elapsed time.Duration, anomalies int)
	RecordAnomaly(ctx context.Context, anomalyType, severity string)
	RecordDetectionDeferred(ctx context.Context)
	SetQueueDepth(depth int)
}

// Config tunes the detector and its worker pool
type Config struct {
	Policy            behavior.Policy
	Workers           int
	QueueSize         int
	DetectionTimeout  time.Duration
	ReconcileInterval time.Duration
	ReconcileAfter    time.Duration
	ReconcileBatch    int
}

type noopMetrics struct{}

func (noopMetrics) RecordDetection(context.Context, time.Duration, int) {}
func (noopMetrics) RecordAnomaly(context.Context, string, string)       {}
func (noopMetrics) RecordDetectionDeferred(context.Context)             {}
func (noopMetrics) SetQueueDepth(int)                                   {}
