package helper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cuemby/uiwarden/pkg/config"
	"github.com/cuemby/uiwarden/pkg/security"
	"github.com/rs/zerolog"
)

// LauncherOptions configures a Launcher
type LauncherOptions struct {
	Path       string
	Auth       *security.SessionTokenAuthenticator
	Timeout    time.Duration
	DevMode    bool     // sets NODE_ENV=development for the helper
	BypassAuth bool     // sets SKIP_SESSION_AUTH=1 for the helper
	Env        []string // extra KEY=VALUE entries
	Logger     zerolog.Logger
}

// Launcher spawns the helper once per command with a freshly minted token
type Launcher struct {
	path       string
	auth       *security.SessionTokenAuthenticator
	timeout    time.Duration
	devMode    bool
	bypassAuth bool
	env        []string
	logger     zerolog.Logger
}

// Outcome is what a helper invocation produced
type Outcome struct {
	ExitCode int
	Result   Result
	Stderr   string
	Duration time.Duration
}

// OK reports whether the helper exited cleanly with a successful result
func (o *Outcome) OK() bool {
	return o.ExitCode == ExitSuccess && o.Result.Success
}

// NewLauncher creates a launcher
func NewLauncher(opts LauncherOptions) (*Launcher, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("helper path is required")
	}
	if opts.Auth == nil {
		return nil, fmt.Errorf("session authenticator is required")
	}

	return &Launcher{
		path:       opts.Path,
		auth:       opts.Auth,
		timeout:    opts.Timeout,
		devMode:    opts.DevMode,
		bypassAuth: opts.BypassAuth,
		env:        opts.Env,
		logger:     opts.Logger,
	}, nil
}

// controlledEnv lists variables the launcher sets itself and never inherits
var controlledEnv = []string{
	EnvSessionToken,
	EnvSessionSecret,
	config.EnvSkipSessionAuth,
	config.EnvNodeEnv,
}

func (l *Launcher) environ(token string) []string {
	var env []string
	for _, kv := range os.Environ() {
		inherited := true
		for _, name := range controlledEnv {
			if strings.HasPrefix(kv, name+"=") {
				inherited = false
				break
			}
		}
		if inherited {
			env = append(env, kv)
		}
	}

	env = append(env, l.env...)
	env = append(env,
		EnvSessionToken+"="+token,
		EnvSessionSecret+"="+l.auth.SecretHex(),
	)
	if l.devMode {
		env = append(env, config.EnvNodeEnv+"=development")
	}
	if l.bypassAuth {
		env = append(env, config.EnvSkipSessionAuth+"=1")
	}
	return env
}

// Run invokes the helper with command and args. A non-zero exit code with a
// decodable result is an Outcome, not an error; errors mean the helper could
// not be run or its output was unreadable.
func (l *Launcher) Run(ctx context.Context, command string, args ...string) (*Outcome, error) {
	token, err := l.auth.GenerateToken()
	if err != nil {
		return nil, err
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, l.path, append([]string{command}, args...)...)
	cmd.Env = l.environ(token)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	outcome := &Outcome{Stderr: stderr.String(), Duration: time.Since(start)}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("failed to run helper: %w", runErr)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("helper %s: %w", command, ctx.Err())
		}
		outcome.ExitCode = exitErr.ExitCode()
	}

	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &outcome.Result); err != nil {
		return nil, fmt.Errorf("helper %s exited %d with unreadable output: %w", command, outcome.ExitCode, err)
	}

	l.logger.Debug().
		Str("command", command).
		Int("exit_code", outcome.ExitCode).
		Dur("duration", outcome.Duration).
		Bool("success", outcome.Result.Success).
		Msg("Helper invocation finished")

	return outcome, nil
}
