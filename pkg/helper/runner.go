package helper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Action executes one helper command and returns JSON-encodable data
type Action func(ctx context.Context, args []string) (any, error)

// RunnerOptions configures a Runner
type RunnerOptions struct {
	Auth   AuthOptions
	Lookup func(string) (string, bool) // defaults to os.LookupEnv
	Stdout io.Writer                   // defaults to os.Stdout
	Logger zerolog.Logger
}

// Runner authenticates a helper invocation and dispatches it to an Action
type Runner struct {
	actions map[string]Action
	auth    AuthOptions
	lookup  func(string) (string, bool)
	stdout  io.Writer
	logger  zerolog.Logger
}

// NewRunner creates a runner with the built-in ping action registered
func NewRunner(opts RunnerOptions) *Runner {
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	r := &Runner{
		actions: make(map[string]Action),
		auth:    opts.Auth,
		lookup:  lookup,
		stdout:  stdout,
		logger:  opts.Logger,
	}
	r.Register("ping", ping)
	return r
}

// Register adds or replaces an action
func (r *Runner) Register(name string, action Action) {
	r.actions[name] = action
}

// Commands returns registered command names in order
func (r *Runner) Commands() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run authenticates, executes argv[0] with the remaining arguments, writes
// the Result and returns the process exit code. Nothing runs before the
// session token is verified.
func (r *Runner) Run(ctx context.Context, argv []string) int {
	if err := Authenticate(r.lookup, r.auth); err != nil {
		code := ErrorCode(err)
		r.logger.Warn().Err(err).Str("code", code).Msg("Helper invocation rejected")
		return r.finish(ExitAuthFailed, Failure(code, err.Error()))
	}

	if len(argv) == 0 {
		return r.finish(ExitInvalidArgs, Failure(CodeInvalidArgs, "no command given"))
	}

	action, ok := r.actions[argv[0]]
	if !ok {
		return r.finish(ExitInvalidArgs, Failure(CodeUnknownCommand, fmt.Sprintf("unknown command %q", argv[0])))
	}

	data, err := action(ctx, argv[1:])
	if err != nil {
		var ae *ActionError
		if errors.As(err, &ae) {
			return r.finish(ae.ExitCode, Failure(ae.Code, ae.Message))
		}
		return r.finish(ExitActionFailed, Failure(CodeActionFailed, err.Error()))
	}

	result := Result{Success: true}
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return r.finish(ExitActionFailed, Failure(CodeActionFailed, "failed to encode result: "+err.Error()))
		}
		result.Data = encoded
	}
	return r.finish(ExitSuccess, result)
}

func (r *Runner) finish(exitCode int, result Result) int {
	if err := result.Write(r.stdout); err != nil {
		r.logger.Error().Err(err).Msg("Failed to write result")
	}
	return exitCode
}

// PingResult is returned by the ping action
type PingResult struct {
	Pong bool      `json:"pong"`
	PID  int       `json:"pid"`
	Time time.Time `json:"time"`
}

func ping(_ context.Context, args []string) (any, error) {
	if len(args) > 0 {
		return nil, Fail(ExitInvalidArgs, CodeInvalidArgs, "ping takes no arguments")
	}
	return PingResult{Pong: true, PID: os.Getpid(), Time: time.Now().UTC()}, nil
}
