package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/cory-johannsen/roomlink/internal/result"
)

func TestMetrics_PendingTracksResolutions(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.CallStarted()
	m.CallStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pending))

	m.CallResolved(result.CodeSuccess)
	m.CallResolved(result.CodeTimeout)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolved.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolved.WithLabelValues("timeout")))
}

func TestMetrics_DroppedAndJoinOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.CallbackDropped("unknown_id")
	m.CallbackDropped("unknown_id")
	m.JoinAttempt(OutcomeTimeout)
	m.JoinAttempt(OutcomeCreated)
	m.RealtimeFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dropped.WithLabelValues("unknown_id")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.joinAttempts.WithLabelValues(OutcomeTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.joinAttempts.WithLabelValues(OutcomeCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.realtimeFailed))
}

func TestMetrics_SeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
