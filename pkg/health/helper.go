package health

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/uiwarden/pkg/helper"
)

// HelperRunner runs one helper command, as helper.Launcher does
type HelperRunner interface {
	Run(ctx context.Context, command string, args ...string) (*helper.Outcome, error)
}

// HelperChecker probes the helper with the ping command. Every probe goes
// through the full session token handshake, so a helper that rejects tokens
// is reported unhealthy.
type HelperChecker struct {
	Runner  HelperRunner
	Timeout time.Duration
}

// NewHelperChecker creates a helper checker
func NewHelperChecker(runner HelperRunner) *HelperChecker {
	return &HelperChecker{
		Runner:  runner,
		Timeout: 10 * time.Second,
	}
}

// Check performs the helper health check
func (h *HelperChecker) Check(ctx context.Context) Result {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	outcome, err := h.Runner.Run(checkCtx, "ping")
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("helper did not run: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if !outcome.OK() {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("helper exited %d: %s %s", outcome.ExitCode, outcome.Result.Error, outcome.Result.Message),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("helper answered in %s", outcome.Duration.Round(time.Millisecond)),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the check type
func (h *HelperChecker) Type() CheckType {
	return CheckTypeHelper
}
