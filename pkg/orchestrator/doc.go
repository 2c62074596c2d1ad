/*
Package orchestrator ties the security components together on the orchestrator
side.

A Gate runs once at startup:

	LoadKeys -> VerifyConfigWithKeys -> VerifyAll(binaryHashes) -> SelfCheck(helper)

Any failure leaves the gate blocked with the stage and error code recorded,
marks the matching health component unhealthy and publishes startup.blocked.
A blocked gate refuses every later command; per-command failures (policy
denials, rejected tokens) only fail that command.

An Orchestrator checks the target process against the policy engine and then
hands the command to the helper Launcher:

	o, _ := orchestrator.New(orchestrator.Options{Gate: gate, Policy: engine, Launcher: launcher})
	outcome, err := o.Invoke(ctx, &orchestrator.Target{Name: "notepad.exe"}, "ping")
*/
package orchestrator
