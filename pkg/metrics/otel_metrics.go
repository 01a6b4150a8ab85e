package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Dispatch outcomes.
const (
	DispatchSent           = "sent"
	DispatchSkippedSignOut = "skipped_signed_out"
	DispatchSkippedSnooze  = "skipped_snoozed"
	DispatchNoSubscription = "no_subscription"
	DispatchExpired        = "subscription_expired"
	DispatchFailed         = "failed"
)

// OTelMetrics is the geofence instrument set.
type OTelMetrics struct {
	GeofenceActionsTotal metric.Int64Counter
	PushDispatchTotal    metric.Int64Counter
	PushSendDuration     metric.Float64Histogram
	AutoSignOutTotal     metric.Int64Counter
	SubscriptionsSaved   metric.Int64Counter
}

var metrics *OTelMetrics

// InitMetrics creates the instruments on the global meter provider.
func InitMetrics() error {
	m, err := NewOTelMetrics(otel.Meter("sitesign"))
	if err != nil {
		return err
	}
	metrics = m
	return nil
}

// GetMetrics returns nil before InitMetrics.
func GetMetrics() *OTelMetrics {
	return metrics
}

func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	var (
		m   OTelMetrics
		err error
	)

	m.GeofenceActionsTotal, err = meter.Int64Counter(
		"geofence_actions_total",
		metric.WithDescription("Geofence actions handled, by action and result"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, err
	}

	m.PushDispatchTotal, err = meter.Int64Counter(
		"push_dispatch_total",
		metric.WithDescription("Push dispatch requests, by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.PushSendDuration, err = meter.Float64Histogram(
		"push_send_duration_seconds",
		metric.WithDescription("Time spent handing a message to the push service"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.AutoSignOutTotal, err = meter.Int64Counter(
		"geofence_auto_signout_total",
		metric.WithDescription("Automatic sign-outs, by source and whether the visit changed"),
		metric.WithUnit("{visit}"),
	)
	if err != nil {
		return nil, err
	}

	m.SubscriptionsSaved, err = meter.Int64Counter(
		"push_subscriptions_saved_total",
		metric.WithDescription("Push subscriptions stored on visits"),
		metric.WithUnit("{subscription}"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *OTelMetrics) RecordGeofenceAction(ctx context.Context, action, result string) {
	m.GeofenceActionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("result", result),
	))
}

func (m *OTelMetrics) RecordDispatch(ctx context.Context, outcome string, sendSeconds float64) {
	m.PushDispatchTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if sendSeconds > 0 {
		m.PushSendDuration.Record(ctx, sendSeconds, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (m *OTelMetrics) RecordAutoSignOut(ctx context.Context, source string, changed bool) {
	m.AutoSignOutTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("changed", changed),
	))
}

func (m *OTelMetrics) RecordSubscriptionSaved(ctx context.Context) {
	m.SubscriptionsSaved.Add(ctx, 1)
}

// Package-level helpers are no-ops until InitMetrics runs.

func RecordGeofenceAction(ctx context.Context, action, result string) {
	if m := GetMetrics(); m != nil {
		m.RecordGeofenceAction(ctx, action, result)
	}
}

func RecordDispatch(ctx context.Context, outcome string, sendSeconds float64) {
	if m := GetMetrics(); m != nil {
		m.RecordDispatch(ctx, outcome, sendSeconds)
	}
}

func RecordAutoSignOut(ctx context.Context, source string, changed bool) {
	if m := GetMetrics(); m != nil {
		m.RecordAutoSignOut(ctx, source, changed)
	}
}

func RecordSubscriptionSaved(ctx context.Context) {
	if m := GetMetrics(); m != nil {
		m.RecordSubscriptionSaved(ctx)
	}
}
