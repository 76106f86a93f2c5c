package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "semchat"

// Event outcomes recorded by RecordEvent.
const (
	EventApplied   = "applied"
	EventDuplicate = "duplicate"
	EventEcho      = "echo"
	EventIgnored   = "ignored"
	EventBuffered  = "buffered"
)

// Operation status labels.
const (
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusRejected = "rejected"
)

// ChatMetrics holds the reconciliation metrics. A nil *ChatMetrics is valid
// and records nothing.
type ChatMetrics struct {
	Submits       *prometheus.CounterVec
	Deletes       *prometheus.CounterVec
	Events        *prometheus.CounterVec
	StreamErrors  prometheus.Counter
	Messages      prometheus.Gauge
	StoreDuration *prometheus.HistogramVec
	NATSConnected prometheus.Gauge
	BreakerState  prometheus.Gauge
}

// NewChatMetrics creates unregistered chat metrics.
func NewChatMetrics() *ChatMetrics {
	return &ChatMetrics{
		Submits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "submits_total",
				Help:      "Message submissions by status",
			},
			[]string{"status"},
		),

		Deletes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "deletes_total",
				Help:      "Message deletions by remote status",
			},
			[]string{"status"},
		),

		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "realtime",
				Name:      "events_total",
				Help:      "Realtime events by kind and merge outcome",
			},
			[]string{"kind", "outcome"},
		),

		StreamErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "realtime",
				Name:      "stream_errors_total",
				Help:      "Realtime subscription failures",
			},
		),

		Messages: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "messages",
				Help:      "Messages currently held by the session",
			},
		),

		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "duration_seconds",
				Help:      "Remote store call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "status"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		BreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "breaker_state",
				Help:      "Store circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
		),
	}
}

func (m *ChatMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Submits, m.Deletes, m.Events, m.StreamErrors,
		m.Messages, m.StoreDuration, m.NATSConnected, m.BreakerState,
	}
}

// RecordSubmit counts a submission outcome
func (m *ChatMetrics) RecordSubmit(status string) {
	if m == nil {
		return
	}
	m.Submits.WithLabelValues(status).Inc()
}

// RecordDelete counts a deletion by remote outcome
func (m *ChatMetrics) RecordDelete(status string) {
	if m == nil {
		return
	}
	m.Deletes.WithLabelValues(status).Inc()
}

// RecordEvent counts a realtime event by kind and merge outcome
func (m *ChatMetrics) RecordEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind, outcome).Inc()
}

// RecordStreamError counts a subscription failure
func (m *ChatMetrics) RecordStreamError() {
	if m == nil {
		return
	}
	m.StreamErrors.Inc()
}

// SetMessageCount updates the held message gauge
func (m *ChatMetrics) SetMessageCount(n int) {
	if m == nil {
		return
	}
	m.Messages.Set(float64(n))
}

// ObserveStore records a store call duration
func (m *ChatMetrics) ObserveStore(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusFailed
	}
	m.StoreDuration.WithLabelValues(operation, status).Observe(d.Seconds())
}

// RecordNATSStatus updates the NATS connection gauge
func (m *ChatMetrics) RecordNATSStatus(connected bool) {
	if m == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	m.NATSConnected.Set(value)
}

// Breaker states recorded by RecordBreakerState.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// RecordBreakerState updates the store circuit breaker gauge
func (m *ChatMetrics) RecordBreakerState(state int) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
}
