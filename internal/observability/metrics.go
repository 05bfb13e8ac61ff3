package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cory-johannsen/roomlink/internal/result"
)

// Join attempt outcomes recorded by Metrics.JoinAttempt.
const (
	OutcomeJoined   = "joined"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
	OutcomeCreated  = "created"
	OutcomeFailed   = "failed"
)

// Metrics holds the SDK's Prometheus collectors. It implements the bridge
// observer and the session observer so both can report into one registry.
//
// Labels are bounded: return code names, drop reasons and join outcomes. No
// call id, room id or session key is ever used as a label.
type Metrics struct {
	pending        prometheus.Gauge
	resolved       *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	joinAttempts   *prometheus.CounterVec
	realtimeFailed prometheus.Counter
}

// NewMetrics registers the collectors with reg. A nil reg uses the default
// registerer.
//
// Postcondition: the returned Metrics is ready for concurrent use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "roomlink_bridge_pending_calls",
			Help: "Current number of bridged calls awaiting a callback.",
		}),
		resolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_bridge_resolved_total",
			Help: "Total number of bridged calls resolved, by return code.",
		}, []string{"code"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_bridge_dropped_callbacks_total",
			Help: "Total number of callbacks dropped without resolving a call, by reason.",
		}, []string{"reason"}),
		joinAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_session_join_attempts_total",
			Help: "Total number of room join or create attempts, by outcome.",
		}, []string{"outcome"}),
		realtimeFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "roomlink_session_realtime_init_failures_total",
			Help: "Total number of realtime channel initializations that failed after a room was entered.",
		}),
	}
}

// CallStarted records a newly registered call.
func (m *Metrics) CallStarted() {
	m.pending.Inc()
}

// CallResolved records the single resolution of a call.
func (m *Metrics) CallResolved(code result.Code) {
	m.pending.Dec()
	m.resolved.WithLabelValues(code.String()).Inc()
}

// CallbackDropped records a callback that resolved nothing.
func (m *Metrics) CallbackDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

// JoinAttempt records the outcome of one join or create step.
func (m *Metrics) JoinAttempt(outcome string) {
	m.joinAttempts.WithLabelValues(outcome).Inc()
}

// RealtimeFailed records a partial success: the room was entered but its
// realtime channel did not come up.
func (m *Metrics) RealtimeFailed() {
	m.realtimeFailed.Inc()
}
