package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the service's Prometheus metrics.
//
// Tracked series:
//   - Inbound Slack requests and how they resolved
//   - Turn latency end to end, sandbox included
//   - Attachment ingestion volume
//   - Errors by component
type Metrics struct {
	// RequestCounter tracks inbound turn requests.
	// Labels: source (mention|thread_reply)
	RequestCounter *prometheus.CounterVec

	// TurnCounter counts completed turns by outcome.
	// Labels: outcome (artifact|no_artifact|error)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures whole-turn latency in seconds, sandbox
	// provisioning included.
	// Buckets: 1s to 600s
	TurnDuration prometheus.Histogram

	// ActiveTurns is a gauge of turns currently executing.
	ActiveTurns prometheus.Gauge

	// AttachmentCounter counts attachment ingestion by status.
	// Labels: status (ingested|skipped|failed)
	AttachmentCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component.
	// Labels: component (slack|sandbox|media|turn|sessions), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the default
// registry. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gifsmith_requests_total",
				Help: "Total inbound turn requests by source",
			},
			[]string{"source"},
		),

		TurnCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gifsmith_turns_total",
				Help: "Total completed turns by outcome",
			},
			[]string{"outcome"},
		),

		TurnDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gifsmith_turn_duration_seconds",
				Help:    "End to end turn latency in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),

		ActiveTurns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gifsmith_active_turns",
				Help: "Turns currently executing",
			},
		),

		AttachmentCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gifsmith_attachments_total",
				Help: "Attachment ingestion results by status",
			},
			[]string{"status"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gifsmith_errors_total",
				Help: "Errors by component and type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordTurn records a finished turn with its outcome and latency.
func (m *Metrics) RecordTurn(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TurnCounter.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(durationSeconds)
}

// TurnStarted marks a turn as executing.
func (m *Metrics) TurnStarted() {
	if m == nil {
		return
	}
	m.ActiveTurns.Inc()
}

// TurnEnded marks a turn as finished.
func (m *Metrics) TurnEnded() {
	if m == nil {
		return
	}
	m.ActiveTurns.Dec()
}

// RecordRequest counts an inbound request.
func (m *Metrics) RecordRequest(source string) {
	if m == nil {
		return
	}
	m.RequestCounter.WithLabelValues(source).Inc()
}

// RecordAttachments counts attachment ingestion results.
func (m *Metrics) RecordAttachments(status string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.AttachmentCounter.WithLabelValues(status).Add(float64(n))
}

// RecordError counts an error against a component.
func (m *Metrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
