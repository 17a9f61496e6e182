package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRegistry_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	r, err := NewRegistryWithMeter(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	r.RecordAnomaly(ctx, "unusual_time", "high")
	r.RecordAnomaly(ctx, "unusual_time", "high")
	r.RecordNotificationOutcome(ctx, "gdpr_supervisory", "failed")
	r.RecordBaselineCalculation(ctx, "time", "ok", 12*time.Millisecond)
	r.SetQueueDepth(7)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	found := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = m.Data
		}
	}

	anomalies, ok := found["csm.anomalies.detected_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, anomalies.DataPoints, 1)
	assert.Equal(t, int64(2), anomalies.DataPoints[0].Value)

	depth, ok := found["csm.detection.queue_depth"].(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Equal(t, int64(7), depth.DataPoints[0].Value)

	assert.Contains(t, found, "csm.baseline.calculation_duration")
	assert.Contains(t, found, "csm.notifications.outcomes_total")
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.RecordAnomaly(context.Background(), "unusual_location", "low")
		r.SetQueueDepth(3)
	})
}
