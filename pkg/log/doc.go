/*
Package log provides structured logging for uiwarden using zerolog.

The package builds zerolog.Logger instances from a small Config and hands them to
components through their constructors. There is no process-wide logger: the
orchestrator builds one logger at startup and every component derives a child
logger with its component name.

# Configuration

  - Level: debug, info, warn or error (default info)
  - JSONOutput: JSON lines vs human-readable console output
  - Output: destination writer (default stderr, so stdout stays free for the
    helper's JSON result payload)

# Usage

	logger := log.New(log.Config{Level: log.InfoLevel})
	vaultLog := log.WithComponent(logger, "keyvault")
	vaultLog.Info().Str("dir", dir).Msg("keys initialized")

Tests pass log.Nop() to silence output.

# Bypass Warnings

Development bypass switches (session auth, config signature, integrity check)
must never activate silently. Bypass writes a warn-level record with a "bypass"
field naming the switch; every component calls it each time a bypass short
circuits a check.

	2025-01-10T10:30:00Z WRN SECURITY BYPASS ACTIVE: session token verification skipped ... bypass=session_auth component=session
*/
package log
