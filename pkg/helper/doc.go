/*
Package helper implements both sides of the privileged helper boundary.

The orchestrator uses a Launcher: for every command it mints a session token,
starts the helper with the token and the hex-encoded shared secret in its
environment, and decodes the single JSON line the helper prints.

	MCP_SESSION_TOKEN=<timestamp>:<nonce>:<hmac>
	MCP_SESSION_SECRET=<64 hex chars>

The helper uses a Runner: it verifies the token before looking at its
arguments, runs one Action and exits. An invalid, expired or replayed token
exits with ExitAuthFailed (10) and prints

	{"success":false,"error":"TOKEN_EXPIRED","message":"token expired: ..."}

Exit codes:

	0   success
	1   target or resource not found
	2   invalid arguments or unknown command
	3   action failed
	4   read-back failed
	5   element lookup failed
	10  session authentication failed
*/
package helper
