/*
Package api serves the orchestrator's HTTP endpoints while `uiwarden serve`
runs:

	GET /health   liveness, always 200 while the process runs
	GET /live     always 200, with the component summary (healthy, degraded
	              when only the helper probe fails, unhealthy)
	GET /ready    200 once the startup gate passed and keys, config and
	              binaries are healthy, 503 otherwise
	GET /status   startup gate status: state, blocking stage and code,
	              active bypass switches, binary integrity report
	GET /metrics  Prometheus metrics

The server is read-only. It never exposes key material, session secrets or
nonces.
*/
package api
