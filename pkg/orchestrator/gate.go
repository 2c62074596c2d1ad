package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/uiwarden/pkg/events"
	"github.com/cuemby/uiwarden/pkg/metrics"
	"github.com/cuemby/uiwarden/pkg/security"
	"github.com/cuemby/uiwarden/pkg/types"
	"github.com/rs/zerolog"
)

// State of the startup gate
type State string

const (
	StatePending State = "pending"
	StateReady   State = "ready"
	StateBlocked State = "blocked"
)

// ErrStartupBlocked is returned for any work attempted while the gate is not ready
var ErrStartupBlocked = errors.New("startup integrity checks did not pass")

// GateOptions configures a Gate
type GateOptions struct {
	Keys      *security.KeyVault
	Config    *security.ConfigIntegrity
	Binaries  *security.BinaryIntegrityChecker
	HelperKey string // manifest entry of the helper binary; empty skips the self check
	Logger    zerolog.Logger
	Events    events.Publisher
}

// Gate runs the startup integrity sequence and remembers its outcome
type Gate struct {
	keys      *security.KeyVault
	config    *security.ConfigIntegrity
	binaries  *security.BinaryIntegrityChecker
	helperKey string
	logger    zerolog.Logger
	events    events.Publisher

	mu     sync.RWMutex
	status Status
}

// Status is a snapshot of the gate
type Status struct {
	State     State                  `json:"state"`
	Stage     string                 `json:"stage,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Bypassed  []string               `json:"bypassed,omitempty"`
	CheckedAt time.Time              `json:"checkedAt"`
	Report    *types.IntegrityReport `json:"report,omitempty"`

	config *security.VerifiedConfig
}

// NewGate creates a gate in the pending state and registers its health components
func NewGate(opts GateOptions) *Gate {
	for _, c := range metrics.CriticalComponents {
		metrics.RegisterComponent(c, false, "startup checks pending")
	}

	return &Gate{
		keys:      opts.Keys,
		config:    opts.Config,
		binaries:  opts.Binaries,
		helperKey: opts.HelperKey,
		logger:    opts.Logger,
		events:    opts.Events,
		status:    Status{State: StatePending},
	}
}

// Run loads the keys, verifies the configuration signature, verifies every
// binary in the signed manifest and finally the helper itself. The first
// failure blocks startup and is returned.
func (g *Gate) Run(publicPassword string) (Status, error) {
	st := Status{CheckedAt: time.Now().UTC()}

	loaded, err := g.keys.LoadKeys(publicPassword, "")
	if err != nil {
		return g.block(st, metrics.ComponentKeys, err)
	}
	metrics.UpdateComponent(metrics.ComponentKeys, true, "thumbprint "+loaded.Thumbprint)

	// The public key decrypted above serves the signature check too
	verified, err := g.config.VerifyConfigWithKeys(loaded)
	loaded.Destroy()
	if err != nil {
		return g.block(st, metrics.ComponentConfig, err)
	}
	st.config = verified
	if verified.Bypassed {
		st.Bypassed = append(st.Bypassed, security.BypassConfigSignature)
		metrics.UpdateComponent(metrics.ComponentConfig, true, "signature check bypassed")
	} else {
		metrics.UpdateComponent(metrics.ComponentConfig, true, "signature verified")
	}

	report := g.binaries.VerifyAll(verified.BinaryHashes)
	st.Report = &report
	if !report.AllValid {
		return g.block(st, metrics.ComponentBinaries, firstFailure(report))
	}
	if report.Bypassed {
		st.Bypassed = append(st.Bypassed, security.BypassIntegrityCheck)
	}

	if g.helperKey != "" && !g.binaries.SelfCheck(g.helperKey, verified.BinaryHashes) {
		err := fmt.Errorf("%w: %s", security.ErrBinaryHashMismatch, g.helperKey)
		if _, listed := verified.BinaryHashes[g.helperKey]; !listed {
			err = fmt.Errorf("%w: %s", security.ErrBinaryNotListed, g.helperKey)
		}
		return g.block(st, metrics.ComponentBinaries, err)
	}
	metrics.UpdateComponent(metrics.ComponentBinaries, true, fmt.Sprintf("%d binaries verified", len(report.Results)))

	st.State = StateReady
	g.set(st)

	g.logger.Info().Strs("bypassed", st.Bypassed).Msg("Startup integrity checks passed")
	events.Emit(g.events, events.EventStartupReady, "startup integrity checks passed", nil)
	return st, nil
}

func (g *Gate) block(st Status, stage string, err error) (Status, error) {
	st.State = StateBlocked
	st.Stage = stage
	st.Code = security.ErrorCode(err)
	st.Message = err.Error()
	st.config = nil
	g.set(st)

	metrics.UpdateComponent(stage, false, st.Code)
	g.logger.Error().Err(err).Str("stage", stage).Str("code", st.Code).Msg("Startup blocked")
	events.Emit(g.events, events.EventStartupBlocked, err.Error(), map[string]string{
		"stage": stage,
		"code":  st.Code,
	})
	return st, fmt.Errorf("%w: %w", ErrStartupBlocked, err)
}

func (g *Gate) set(st Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = st
}

// Status returns the latest outcome
func (g *Gate) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// Ready reports whether the last run passed
func (g *Gate) Ready() bool {
	return g.Status().State == StateReady
}

// Config returns the verified configuration of a passed run
func (g *Gate) Config() *security.VerifiedConfig {
	return g.Status().config
}

func firstFailure(report types.IntegrityReport) error {
	for _, r := range report.Results {
		if r.Valid {
			continue
		}
		switch r.Kind {
		case types.IntegrityNotFound:
			return fmt.Errorf("%w: %s", security.ErrBinaryNotFound, r.Name)
		case types.IntegrityNotListed:
			return fmt.Errorf("%w: %s", security.ErrBinaryNotListed, r.Name)
		case types.IntegrityReadError:
			return fmt.Errorf("failed to read binary %s: %s", r.Name, r.Error)
		default:
			return fmt.Errorf("%w: %s", security.ErrBinaryHashMismatch, r.Name)
		}
	}
	return security.ErrBinaryHashMismatch
}
