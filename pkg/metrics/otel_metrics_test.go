package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestOTelMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewOTelMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordGeofenceAction(ctx, "snooze", "ok")
	m.RecordGeofenceAction(ctx, "snooze", "ok")
	m.RecordDispatch(ctx, DispatchSent, 0.12)
	m.RecordDispatch(ctx, DispatchSkippedSnooze, 0)
	m.RecordAutoSignOut(ctx, "queue", true)

	data := collect(t, reader)

	actions, ok := data["geofence_actions_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, actions.DataPoints, 1)
	assert.Equal(t, int64(2), actions.DataPoints[0].Value)

	dispatch, ok := data["push_dispatch_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, dispatch.DataPoints, 2)

	latency, ok := data["push_send_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, latency.DataPoints, 1)
	assert.Equal(t, uint64(1), latency.DataPoints[0].Count)

	assert.Contains(t, data, "geofence_auto_signout_total")
}

func TestPackageHelpersNoopBeforeInit(t *testing.T) {
	prev := metrics
	metrics = nil
	t.Cleanup(func() { metrics = prev })

	assert.NotPanics(t, func() {
		RecordGeofenceAction(context.Background(), "signout", "ok")
		RecordDispatch(context.Background(), DispatchFailed, 1)
		RecordAutoSignOut(context.Background(), "timer", false)
		RecordSubscriptionSaved(context.Background())
	})
}
