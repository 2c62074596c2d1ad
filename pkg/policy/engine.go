package policy

import (
	"strings"

	"github.com/cuemby/uiwarden/pkg/events"
	"github.com/cuemby/uiwarden/pkg/metrics"
	"github.com/cuemby/uiwarden/pkg/types"
	"github.com/rs/zerolog"
)

// Code identifies which stage produced a decision
type Code string

const (
	CodeDevExcluded    Code = "DEV_EXCLUDED"
	CodeDenyListed     Code = "DENY_LISTED"
	CodeDevAllowPath   Code = "DEV_ALLOW_PATH"
	CodeAllowListed    Code = "ALLOW_LISTED"
	CodeDefaultAllow   Code = "DEFAULT_ALLOW"
	CodeNotAllowListed Code = "NOT_IN_ALLOW_LIST"
	CodeSignerMismatch Code = "SIGNER_MISMATCH"
	CodePathInvalid    Code = "PATH_INVALID"
	CodeNoTarget       Code = "NO_TARGET"
)

// Decision is the outcome of a policy check. Denials are ordinary values.
type Decision struct {
	Allowed bool               `json:"allowed"`
	Reason  string             `json:"reason"`
	Code    Code               `json:"code"`
	Rule    *types.ProcessRule `json:"rule,omitempty"`
}

// Options configures an Engine
type Options struct {
	DevMode bool // enables the development exclusion and allow-path stages
	Logger  zerolog.Logger
	Events  events.Publisher
}

// Engine evaluates processes against a Policy.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	policy  *Policy
	devMode bool
	logger  zerolog.Logger
	events  events.Publisher
}

// NewEngine creates an engine. A nil policy behaves like Default().
func NewEngine(p *Policy, opts Options) *Engine {
	if p == nil {
		p = Default()
	}
	return &Engine{
		policy:  p,
		devMode: opts.DevMode,
		logger:  opts.Logger,
		events:  opts.Events,
	}
}

// Policy returns the policy being enforced
func (e *Engine) Policy() *Policy {
	return e.policy
}

// CheckProcess decides whether a process may be automated. Allow rules that
// require a signer never match here.
func (e *Engine) CheckProcess(name, path string) Decision {
	return e.record(name, path, e.evaluate(name, path, ""))
}

// CheckProcessWithSignature is CheckProcess with the signer of the target
// binary, which allow rules carrying requiredSigner compare against
func (e *Engine) CheckProcessWithSignature(name, path, signer string) Decision {
	return e.record(name, path, e.evaluate(name, path, signer))
}

func (e *Engine) evaluate(name, path, signer string) Decision {
	if name == "" && path == "" {
		return deny(CodeNoTarget, "no process name or path given", nil)
	}
	if path != "" && !ValidatePath(path) {
		return deny(CodePathInvalid, "path failed validation: "+path, nil)
	}

	target := path
	if target == "" {
		target = name
	}

	if e.devMode {
		for _, pattern := range e.policy.Development.ExcludePatterns {
			if MatchPattern(pattern, target) {
				return deny(CodeDevExcluded, "excluded in development mode by "+pattern, &types.ProcessRule{Pattern: pattern})
			}
		}
	}

	for i := range e.policy.DenyList {
		rule := e.policy.DenyList[i]
		if matchRule(rule, name, path) {
			return deny(CodeDenyListed, "matched deny list rule "+describe(rule), &rule)
		}
	}

	if e.devMode && path != "" {
		for _, pattern := range e.policy.Development.AllowPaths {
			if MatchPattern(pattern, path) {
				return allow(CodeDevAllowPath, "allowed in development mode by "+pattern, &types.ProcessRule{Pattern: pattern})
			}
		}
	}

	var signerRejected *types.ProcessRule
	for i := range e.policy.AllowList {
		rule := e.policy.AllowList[i]
		if !matchRule(rule, name, path) {
			continue
		}
		if rule.RequiredSigner != "" && (signer == "" || !strings.EqualFold(rule.RequiredSigner, signer)) {
			if signerRejected == nil {
				signerRejected = &rule
			}
			continue
		}
		return allow(CodeAllowListed, "matched allow list rule "+describe(rule), &rule)
	}

	if e.policy.DefaultMode == ModeAllowAll {
		return allow(CodeDefaultAllow, "allowed by default policy", nil)
	}
	if signerRejected != nil {
		return deny(CodeSignerMismatch, "allow list rule "+describe(*signerRejected)+" requires signer "+signerRejected.RequiredSigner, signerRejected)
	}
	return deny(CodeNotAllowListed, "not in allow list", nil)
}

func (e *Engine) record(name, path string, d Decision) Decision {
	metrics.PolicyDecisions.WithLabelValues(string(d.Code)).Inc()

	if d.Allowed {
		e.logger.Debug().Str("process", name).Str("path", path).Str("code", string(d.Code)).Msg("Process allowed")
		return d
	}

	e.logger.Info().Str("process", name).Str("path", path).Str("code", string(d.Code)).Str("reason", d.Reason).Msg("Process denied")
	events.Emit(e.events, events.EventPolicyDenied, d.Reason, map[string]string{
		"process": name,
		"path":    path,
		"code":    string(d.Code),
	})
	return d
}

// matchRule ORs the selectors present on a rule. A pattern is tried against
// the path when one is given, otherwise against the name.
func matchRule(rule types.ProcessRule, name, path string) bool {
	if rule.Name != "" && name != "" && strings.EqualFold(rule.Name, name) {
		return true
	}
	if rule.Path != "" && path != "" && normalize(rule.Path) == normalize(path) {
		return true
	}
	if rule.Pattern != "" {
		if path != "" && MatchPattern(rule.Pattern, path) {
			return true
		}
		if name != "" && MatchPattern(rule.Pattern, name) {
			return true
		}
	}
	return false
}

func describe(rule types.ProcessRule) string {
	switch {
	case rule.Name != "":
		return "name=" + rule.Name
	case rule.Path != "":
		return "path=" + rule.Path
	default:
		return "pattern=" + rule.Pattern
	}
}

func allow(code Code, reason string, rule *types.ProcessRule) Decision {
	return Decision{Allowed: true, Code: code, Reason: reason, Rule: rule}
}

func deny(code Code, reason string, rule *types.ProcessRule) Decision {
	return Decision{Allowed: false, Code: code, Reason: reason, Rule: rule}
}
