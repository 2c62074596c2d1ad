package helper

import (
	"errors"
	"time"

	"github.com/cuemby/uiwarden/pkg/config"
	"github.com/cuemby/uiwarden/pkg/security"
	"github.com/rs/zerolog"
)

var (
	ErrMissingToken  = errors.New("session token not provided")
	ErrMissingSecret = errors.New("session secret not provided")
)

// AuthOptions configures helper-side token verification
type AuthOptions struct {
	DevMode bool
	Bypass  bool
	Now     func() time.Time
	Logger  zerolog.Logger
}

// AuthOptionsFromConfig takes the development and bypass settings from cfg
func AuthOptionsFromConfig(cfg *config.Config, logger zerolog.Logger) AuthOptions {
	return AuthOptions{
		DevMode: cfg.Development,
		Bypass:  cfg.Bypass.SessionAuth,
		Logger:  logger,
	}
}

// Authenticate verifies the token handed over in the environment against the
// hex secret next to it. Every helper process is short lived, so a fresh
// authenticator is built per call.
func Authenticate(lookup func(string) (string, bool), opts AuthOptions) error {
	if opts.Bypass {
		auth, err := security.NewSessionTokenAuthenticator(security.SessionOptions{
			Bypass: true,
			Logger: opts.Logger,
		})
		if err != nil {
			return err
		}
		return auth.VerifyToken("")
	}

	secretHex, ok := lookup(EnvSessionSecret)
	if !ok || secretHex == "" {
		return ErrMissingSecret
	}
	token, ok := lookup(EnvSessionToken)
	if !ok || token == "" {
		return ErrMissingToken
	}

	secret, err := security.SecretFromHex(secretHex)
	if err != nil {
		return err
	}

	auth, err := security.NewSessionTokenAuthenticator(security.SessionOptions{
		Secret:  secret,
		DevMode: opts.DevMode,
		Now:     opts.Now,
		Logger:  opts.Logger,
	})
	if err != nil {
		return err
	}
	return auth.VerifyToken(token)
}

// ErrorCode maps an authentication error to its reported code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "SESSION_TOKEN_MISSING"
	case errors.Is(err, ErrMissingSecret):
		return "SESSION_SECRET_MISSING"
	default:
		return security.ErrorCode(err)
	}
}
