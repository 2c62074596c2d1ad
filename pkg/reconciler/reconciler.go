package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/uiwarden/pkg/health"
	"github.com/cuemby/uiwarden/pkg/metrics"
	"github.com/cuemby/uiwarden/pkg/orchestrator"
	"github.com/rs/zerolog"
)

// DefaultInterval between integrity re-checks
const DefaultInterval = 5 * time.Minute

// Options configures a Reconciler
type Options struct {
	Gate           *orchestrator.Gate
	PublicPassword string
	Checker        health.Checker // optional helper probe
	Health         health.Config
	Interval       time.Duration
	Logger         zerolog.Logger
}

// Reconciler re-runs the startup gate on an interval so that files changed
// after startup block further commands, and probes the helper when the gate
// is ready
type Reconciler struct {
	gate     *orchestrator.Gate
	password string
	checker  health.Checker
	hcfg     health.Config
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.RWMutex
	status *health.Status

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewReconciler creates a new reconciler
func NewReconciler(opts Options) *Reconciler {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	hcfg := opts.Health
	if hcfg.Retries <= 0 {
		hcfg = health.DefaultConfig()
	}

	return &Reconciler{
		gate:     opts.Gate,
		password: opts.PublicPassword,
		checker:  opts.Checker,
		hcfg:     hcfg,
		interval: interval,
		logger:   opts.Logger,
		status:   health.NewStatus(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler and waits for a running cycle to finish
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	<-r.doneCh
}

// run is the main reconciliation loop
func (r *Reconciler) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ticker.C:
			r.Reconcile(ctx)
		case <-r.stopCh:
			return
		}
	}
}

// Reconcile performs one cycle: re-verify keys, configuration and binaries,
// then probe the helper if the gate is still ready
func (r *Reconciler) Reconcile(ctx context.Context) orchestrator.State {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RecheckDuration)

	wasReady := r.gate.Ready()
	st, err := r.gate.Run(r.password)
	metrics.RecheckCyclesTotal.WithLabelValues(string(st.State)).Inc()

	if err != nil {
		if wasReady {
			r.logger.Error().Err(err).Str("code", st.Code).Msg("Integrity re-check failed, further commands are refused")
		}
		return st.State
	}
	if !wasReady {
		r.logger.Info().Msg("Integrity re-check passed, gate is ready again")
	}

	if r.checker != nil {
		r.probe(ctx)
	}
	return st.State
}

func (r *Reconciler) probe(ctx context.Context) {
	result := r.checker.Check(ctx)

	r.mu.Lock()
	inStart := r.status.InStartPeriod(r.hcfg)
	if !inStart || result.Healthy {
		r.status.Update(result, r.hcfg)
	}
	healthy := r.status.Healthy
	failures := r.status.ConsecutiveFailures
	r.mu.Unlock()

	if result.Healthy {
		metrics.HelperProbes.WithLabelValues("healthy").Inc()
	} else {
		metrics.HelperProbes.WithLabelValues("unhealthy").Inc()
		r.logger.Warn().Int("consecutive_failures", failures).Str("message", result.Message).Msg("Helper probe failed")
	}
	metrics.UpdateComponent(metrics.ComponentHelper, healthy, result.Message)
}

// HelperStatus returns a copy of the helper probe status
func (r *Reconciler) HelperStatus() health.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.status
}
