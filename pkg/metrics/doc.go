/*
Package metrics provides Prometheus metrics and health endpoints for uiwarden.

Metrics are registered with the default Prometheus registry at package init and
exposed by `uiwarden serve` on /metrics next to the /health, /ready, /live and
/status endpoints.

# Metrics Catalog

uiwarden_session_tokens_issued_total:
  - Type: Counter
  - Incremented by SessionTokenAuthenticator.GenerateToken

uiwarden_session_token_verifications_total{result}:
  - Type: Counter
  - result is "valid" or an error code such as TOKEN_REPLAYED; bypassed
    verifications are counted under uiwarden_bypass_activations_total

uiwarden_config_verifications_total{result}:
  - Type: Counter
  - result is "valid", "bypassed" or an error code such as CONFIG_HASH_MISMATCH

uiwarden_binary_integrity_checks_total{result}:
  - Type: Counter
  - result is "valid", "not_found", "hash_mismatch", "read_error" or "not_listed"

uiwarden_policy_decisions_total{code}:
  - Type: Counter
  - code is the policy decision code (ALLOW_LISTED, DENY_LISTED, ...)

uiwarden_bypass_activations_total{switch}:
  - Type: Counter
  - Any non-zero value in production is an incident

uiwarden_events_dropped_total{stage}:
  - Type: Counter
  - stage is "queue" (broker queue full) or "subscriber" (audit recorder behind)

uiwarden_key_derivation_duration_seconds{iterations}:
  - Type: Histogram
  - PBKDF2 cost per key half (600000 public, 1000000 private)

uiwarden_recheck_cycles_total{state}, uiwarden_recheck_duration_seconds:
  - Periodic re-runs of the startup gate, by resulting gate state

uiwarden_helper_probes_total{result}:
  - Type: Counter
  - result is "healthy" or "unhealthy"

# Health

The startup gate registers three critical components: keys, config and
binaries. /ready returns 503 until all three are registered and healthy, which
is how a supervisor sees the "blocked" startup state. The helper probe is
registered as a non-critical component: when it fails, GetHealth reports
"degraded" but readiness is unaffected. /live always answers 200 with the
GetHealth summary.

# Alerts

  - Bypass in production: increase(uiwarden_bypass_activations_total[1h]) > 0
  - Replay attempts: rate(uiwarden_session_token_verifications_total{result="TOKEN_REPLAYED"}[5m]) > 0
  - Tampering: uiwarden_binary_integrity_checks_total{result="hash_mismatch"} > 0
*/
package metrics
