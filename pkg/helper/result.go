package helper

import (
	"encoding/json"
	"fmt"
	"io"
)

// Exit codes of the helper process. Callers depend on these values.
const (
	ExitSuccess         = 0
	ExitNotFound        = 1
	ExitInvalidArgs     = 2
	ExitActionFailed    = 3
	ExitReadBackFailed  = 4
	ExitElementNotFound = 5
	ExitAuthFailed      = 10
)

// Environment variables the orchestrator sets for each helper invocation
const (
	EnvSessionToken  = "MCP_SESSION_TOKEN"
	EnvSessionSecret = "MCP_SESSION_SECRET"
)

// Error codes reported in Result.Error for failures outside the security package
const (
	CodeInvalidArgs    = "INVALID_ARGS"
	CodeUnknownCommand = "UNKNOWN_COMMAND"
	CodeActionFailed   = "ACTION_FAILED"
)

// Result is the JSON document the helper writes to stdout
type Result struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Failure builds an unsuccessful result
func Failure(code, message string) Result {
	return Result{Success: false, Error: code, Message: message}
}

// Write encodes r as a single JSON line
func (r Result) Write(w io.Writer) error {
	return json.NewEncoder(w).Encode(r)
}

// ActionError lets an action choose its exit code and error code
type ActionError struct {
	ExitCode int
	Code     string
	Message  string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Fail returns an ActionError
func Fail(exitCode int, code, message string) error {
	return &ActionError{ExitCode: exitCode, Code: code, Message: message}
}
