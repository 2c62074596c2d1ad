/*
Package reconciler keeps the startup gate honest while the orchestrator runs.

Startup checks prove the files were intact when the process started. The
reconciler repeats them on an interval (DefaultInterval unless configured):

	┌────────────────────── every Interval ──────────────────────┐
	│ Gate.Run: LoadKeys -> VerifyConfig -> VerifyAll -> SelfCheck│
	└──────────────┬─────────────────────────────┬───────────────┘
	               │ blocked                     │ ready
	               ▼                             ▼
	   commands refused until          HelperChecker ping with a
	   a later cycle passes            fresh session token

A configuration edited or a binary replaced after startup therefore blocks
new commands within one interval, and restoring the files unblocks them.
Helper probe results feed the non-critical "helper" health component.
*/
package reconciler
