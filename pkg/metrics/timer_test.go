package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCount(t *testing.T, o prometheus.Observer) (uint64, float64) {
	t.Helper()
	h, ok := o.(prometheus.Histogram)
	require.True(t, ok)

	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	d := timer.Duration()
	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), d)
}

func TestObserveKeyDerivationByIterations(t *testing.T) {
	// Iteration counts no real key file uses, so other tests cannot interfere
	const public, private = "600001", "1000001"
	pubBefore, _ := sampleCount(t, KeyDerivationDuration.WithLabelValues(public))
	privBefore, _ := sampleCount(t, KeyDerivationDuration.WithLabelValues(private))

	for i := 0; i < 2; i++ {
		NewTimer().ObserveDurationVec(KeyDerivationDuration, public)
	}
	NewTimer().ObserveDurationVec(KeyDerivationDuration, private)

	pubAfter, _ := sampleCount(t, KeyDerivationDuration.WithLabelValues(public))
	privAfter, _ := sampleCount(t, KeyDerivationDuration.WithLabelValues(private))
	assert.Equal(t, pubBefore+2, pubAfter)
	assert.Equal(t, privBefore+1, privAfter)
}

func TestObserveRecheckDuration(t *testing.T) {
	before, sumBefore := sampleCount(t, RecheckDuration)

	timer := NewTimer()
	time.Sleep(2 * time.Millisecond)
	timer.ObserveDuration(RecheckDuration)

	after, sumAfter := sampleCount(t, RecheckDuration)
	assert.Equal(t, before+1, after)
	assert.Greater(t, sumAfter, sumBefore)
}

func TestCountersByLabel(t *testing.T) {
	tests := []struct {
		name  string
		vec   *prometheus.CounterVec
		label string
	}{
		{name: "policy decision", vec: PolicyDecisions, label: "DENY_LISTED"},
		{name: "bypass activation", vec: BypassActivations, label: "integrity_check"},
		{name: "helper probe", vec: HelperProbes, label: "unhealthy"},
		{name: "recheck cycle", vec: RecheckCyclesTotal, label: "blocked"},
		{name: "token verification", vec: TokenVerifications, label: "TOKEN_REPLAYED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.vec.WithLabelValues(tt.label)
			var m dto.Metric
			require.NoError(t, c.Write(&m))
			before := m.GetCounter().GetValue()

			c.Inc()

			require.NoError(t, c.Write(&m))
			assert.Equal(t, before+1, m.GetCounter().GetValue())
		})
	}
}
