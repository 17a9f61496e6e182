package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds the domain metrics of the monitoring service
type Registry struct {
	meter metric.Meter

	// Baseline metrics
	BaselineCalculationDuration metric.Float64Histogram
	BaselineCalculations        metric.Int64Counter

	// Detection metrics
	EventsIngested     metric.Int64Counter
	DetectionDuration  metric.Float64Histogram
	AnomaliesDetected  metric.Int64Counter
	DetectionDropped   metric.Int64Counter
	DetectionQueueSize metric.Int64ObservableGauge

	// Breach workflow metrics
	IncidentsCreated     metric.Int64Counter
	EscalationConflicts  metric.Int64Counter
	NotificationOutcomes metric.Int64Counter

	queueDepth atomic.Int64
}

// NewRegistry creates the registry on the global meter provider
func NewRegistry(meterName string) (*Registry, error) {
	return NewRegistryWithMeter(otel.Meter(meterName))
}

// NewRegistryWithMeter creates the registry on an explicit meter
func NewRegistryWithMeter(meter metric.Meter) (*Registry, error) {
	r := &Registry{meter: meter}

	if err := r.initBaselineMetrics(); err != nil {
		return nil, err
	}
	if err := r.initDetectionMetrics(); err != nil {
		return nil, err
	}
	if err := r.initBreachMetrics(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) initBaselineMetrics() error {
	var err error

	r.BaselineCalculationDuration, err = r.meter.Float64Histogram(
		"csm.baseline.calculation_duration",
		metric.WithDescription("Duration of baseline recalculation in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000, 5000, 10000),
	)
	if err != nil {
		return err
	}

	r.BaselineCalculations, err = r.meter.Int64Counter(
		"csm.baseline.calculations_total",
		metric.WithDescription("Baseline recalculations by type and outcome"),
	)
	return err
}

func (r *Registry) initDetectionMetrics() error {
	var err error

	r.EventsIngested, err = r.meter.Int64Counter(
		"csm.events.ingested_total",
		metric.WithDescription("Behavioral events accepted by type and source"),
	)
	if err != nil {
		return err
	}

	r.DetectionDuration, err = r.meter.Float64Histogram(
		"csm.detection.duration",
		metric.WithDescription("Time to score one event against its baselines in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 5, 10, 50, 100, 500, 1000, 5000),
	)
	if err != nil {
		return err
	}

	r.AnomaliesDetected, err = r.meter.Int64Counter(
		"csm.anomalies.detected_total",
		metric.WithDescription("Anomalies emitted by type and severity"),
	)
	if err != nil {
		return err
	}

	r.DetectionDropped, err = r.meter.Int64Counter(
		"csm.detection.deferred_total",
		metric.WithDescription("Detection jobs deferred to reconciliation because the queue was full"),
	)
	if err != nil {
		return err
	}

	r.DetectionQueueSize, err = r.meter.Int64ObservableGauge(
		"csm.detection.queue_depth",
		metric.WithDescription("Detection jobs waiting for a worker"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.queueDepth.Load())
			return nil
		}),
	)
	return err
}

func (r *Registry) initBreachMetrics() error {
	var err error

	r.IncidentsCreated, err = r.meter.Int64Counter(
		"csm.incidents.created_total",
		metric.WithDescription("Incidents created by origin and severity"),
	)
	if err != nil {
		return err
	}

	r.EscalationConflicts, err = r.meter.Int64Counter(
		"csm.incidents.escalation_conflicts_total",
		metric.WithDescription("Escalation attempts rejected because the anomaly was already linked"),
	)
	if err != nil {
		return err
	}

	r.NotificationOutcomes, err = r.meter.Int64Counter(
		"csm.notifications.outcomes_total",
		metric.WithDescription("Notification delivery attempts by type and final status"),
	)
	return err
}

// RecordBaselineCalculation records one recalculation
func (r *Registry) RecordBaselineCalculation(ctx context.Context, baselineType, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("baseline_type", baselineType),
		attribute.String("outcome", outcome),
	)
	r.BaselineCalculationDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	r.BaselineCalculations.Add(ctx, 1, attrs)
}

// RecordEventIngested counts an accepted event
func (r *Registry) RecordEventIngested(ctx context.Context, eventType, source string) {
	if r == nil {
		return
	}
	r.EventsIngested.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("source", source),
	))
}

// RecordDetection records the scoring latency of one event
func (r *Registry) RecordDetection(ctx context.Context, elapsed time.Duration, anomalies int) {
	if r == nil {
		return
	}
	r.DetectionDuration.Record(ctx, float64(elapsed.Microseconds())/1000,
		metric.WithAttributes(attribute.Bool("anomalous", anomalies > 0)))
}

// RecordAnomaly counts an emitted anomaly
func (r *Registry) RecordAnomaly(ctx context.Context, anomalyType, severity string) {
	if r == nil {
		return
	}
	r.AnomaliesDetected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("anomaly_type", anomalyType),
		attribute.String("severity", severity),
	))
}

// RecordDetectionDeferred counts a job left for reconciliation
func (r *Registry) RecordDetectionDeferred(ctx context.Context) {
	if r == nil {
		return
	}
	r.DetectionDropped.Add(ctx, 1)
}

// SetQueueDepth updates the observed detection backlog
func (r *Registry) SetQueueDepth(depth int) {
	if r == nil {
		return
	}
	r.queueDepth.Store(int64(depth))
}

// RecordIncidentCreated counts a new incident
func (r *Registry) RecordIncidentCreated(ctx context.Context, origin, severity string) {
	if r == nil {
		return
	}
	r.IncidentsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("origin", origin),
		attribute.String("severity", severity),
	))
}

// RecordEscalationConflict counts a rejected duplicate escalation
func (r *Registry) RecordEscalationConflict(ctx context.Context) {
	if r == nil {
		return
	}
	r.EscalationConflicts.Add(ctx, 1)
}

// RecordNotificationOutcome counts a finished delivery attempt
func (r *Registry) RecordNotificationOutcome(ctx context.Context, notificationType, status string) {
	if r == nil {
		return
	}
	r.NotificationOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("notification_type", notificationType),
		attribute.String("status", status),
	))
}
