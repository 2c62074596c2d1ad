/*
Package health tracks the liveness of the privileged helper.

A Checker produces a Result; a Status folds consecutive results into a
healthy or unhealthy verdict using the retry threshold from Config:

	┌──────────────┐  Check(ctx)   ┌──────────────┐  Update(result, cfg)
	│ HelperChecker│ ────────────▶ │    Result    │ ──────────────────▶ Status
	└──────┬───────┘               └──────────────┘
	       │ Run(ctx, "ping")
	       ▼
	  helper.Launcher (fresh session token per probe)

The checker is driven by the reconciler while `uiwarden serve` runs. A single
failed probe does not flip the status; Retries consecutive failures do, and
one success restores it.

Example:

	checker := health.NewHelperChecker(launcher)
	status := health.NewStatus()
	status.Update(checker.Check(ctx), health.DefaultConfig())
*/
package health
