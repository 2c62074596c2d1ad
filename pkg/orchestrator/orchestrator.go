package orchestrator

import (
	"context"
	"fmt"

	"github.com/cuemby/uiwarden/pkg/helper"
	"github.com/cuemby/uiwarden/pkg/policy"
	"github.com/rs/zerolog"
)

// Target identifies the process a helper command acts on
type Target struct {
	Name   string `json:"name,omitempty"`
	Path   string `json:"path,omitempty"`
	Signer string `json:"signer,omitempty"`
}

// DeniedError is returned when policy refuses a target
type DeniedError struct {
	Target   Target
	Decision policy.Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("process denied by policy (%s): %s", e.Decision.Code, e.Decision.Reason)
}

// Options configures an Orchestrator
type Options struct {
	Gate     *Gate
	Policy   *policy.Engine
	Launcher *helper.Launcher
	Logger   zerolog.Logger
}

// Orchestrator forwards commands to the helper once startup checks passed
// and the target process is allowed
type Orchestrator struct {
	gate     *Gate
	policy   *policy.Engine
	launcher *helper.Launcher
	logger   zerolog.Logger
}

// New creates an orchestrator
func New(opts Options) (*Orchestrator, error) {
	if opts.Gate == nil || opts.Policy == nil || opts.Launcher == nil {
		return nil, fmt.Errorf("gate, policy and launcher are required")
	}
	return &Orchestrator{
		gate:     opts.Gate,
		policy:   opts.Policy,
		launcher: opts.Launcher,
		logger:   opts.Logger,
	}, nil
}

// Gate returns the startup gate
func (o *Orchestrator) Gate() *Gate {
	return o.gate
}

// Check runs the policy pre-flight for target without invoking anything
func (o *Orchestrator) Check(target Target) policy.Decision {
	if target.Signer != "" {
		return o.policy.CheckProcessWithSignature(target.Name, target.Path, target.Signer)
	}
	return o.policy.CheckProcess(target.Name, target.Path)
}

// Invoke runs one helper command. A nil target skips the policy check, for
// commands that do not act on a process.
func (o *Orchestrator) Invoke(ctx context.Context, target *Target, command string, args ...string) (*helper.Outcome, error) {
	if st := o.gate.Status(); st.State != StateReady {
		return nil, fmt.Errorf("%w: gate is %s %s", ErrStartupBlocked, st.State, st.Code)
	}

	if target != nil {
		decision := o.Check(*target)
		if !decision.Allowed {
			return nil, &DeniedError{Target: *target, Decision: decision}
		}
	}

	outcome, err := o.launcher.Run(ctx, command, args...)
	if err != nil {
		o.logger.Error().Err(err).Str("command", command).Msg("Helper invocation failed")
		return nil, err
	}
	if !outcome.OK() {
		o.logger.Warn().
			Str("command", command).
			Int("exit_code", outcome.ExitCode).
			Str("error", outcome.Result.Error).
			Msg("Helper reported failure")
	}
	return outcome, nil
}
