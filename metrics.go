package auth

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsSink is an ActivitySink counting auth events in Prometheus
type MetricsSink struct {
	events      *prometheus.CounterVec
	permissions *prometheus.CounterVec
}

var _ ActivitySink = (*MetricsSink)(nil)

// NewMetricsSink registers the auth counters with reg
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	factory := promauto.With(reg)
	return &MetricsSink{
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_events_total",
				Help: "Total number of authentication events by type",
			},
			[]string{"event"},
		),
		permissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_permission_checks_total",
				Help: "Total number of permission checks by permission and outcome",
			},
			[]string{"permission", "outcome"},
		),
	}
}

// Record implements ActivitySink
func (m *MetricsSink) Record(_ context.Context, event ActivityEvent) error {
	m.events.WithLabelValues(string(event.EventType)).Inc()

	switch event.EventType {
	case ActivityEventPermissionGranted, ActivityEventPermissionDenied:
		permission, _ := event.Metadata["permission"].(string)
		outcome := "denied"
		if event.EventType == ActivityEventPermissionGranted {
			outcome = "granted"
		}
		m.permissions.WithLabelValues(permission, outcome).Inc()
	}

	return nil
}
