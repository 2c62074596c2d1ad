package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session token metrics
	TokensIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "uiwarden_session_tokens_issued_total",
			Help: "Total number of session tokens issued",
		},
	)

	TokenVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uiwarden_session_token_verifications_total",
			Help: "Session token verifications by result code",
		},
		[]string{"result"},
	)

	// Integrity metrics
	ConfigVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uiwarden_config_verifications_total",
			Help: "Configuration signature verifications by result code",
		},
		[]string{"result"},
	)

	BinaryChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uiwarden_binary_integrity_checks_total",
			Help: "Binary integrity checks by result",
		},
		[]string{"result"},
	)

	// Policy metrics
	PolicyDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uiwarden_policy_decisions_total",
			Help: "Process policy decisions by outcome code",
		},
		[]string{"code"},
	)

	// Bypass metrics
	BypassActivations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uiwarden_bypass_activations_total",
			Help: "Development bypass switches that short-circuited a check",
		},
		[]string{"switch"},
	)

	// Audit metrics
	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uiwarden_events_dropped_total",
			Help: "Security events discarded by the broker on a full buffer",
		},
		[]string{"stage"},
	)

	// Key management metrics
	KeyDerivationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uiwarden_key_derivation_duration_seconds",
			Help:    "PBKDF2 key derivation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"iterations"},
	)

	// Reconciliation metrics
	RecheckCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uiwarden_recheck_cycles_total",
			Help: "Periodic integrity re-checks by gate state",
		},
		[]string{"state"},
	)

	RecheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "uiwarden_recheck_duration_seconds",
			Help:    "Time taken by one periodic integrity re-check",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	HelperProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uiwarden_helper_probes_total",
			Help: "Helper liveness probes by result",
		},
		[]string{"result"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TokensIssued)
	prometheus.MustRegister(TokenVerifications)
	prometheus.MustRegister(ConfigVerifications)
	prometheus.MustRegister(BinaryChecks)
	prometheus.MustRegister(PolicyDecisions)
	prometheus.MustRegister(BypassActivations)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(KeyDerivationDuration)
	prometheus.MustRegister(RecheckCyclesTotal)
	prometheus.MustRegister(RecheckDuration)
	prometheus.MustRegister(HelperProbes)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Observer) {
	histogram.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time in a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogramVec *prometheus.HistogramVec, labels ...string) {
	histogramVec.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
