package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/uiwarden/pkg/events"
	"github.com/cuemby/uiwarden/pkg/log"
	"github.com/cuemby/uiwarden/pkg/metrics"
	"github.com/rs/zerolog"
)

const (
	// SessionSecretSize is the shared secret length in bytes
	SessionSecretSize = 32

	// Token lifetimes
	ProductionTokenWindow  = 5 * time.Second
	DevelopmentTokenWindow = 60 * time.Second

	// ClockSkewTolerance is how far in the future a token timestamp may be
	ClockSkewTolerance = 5 * time.Second

	// DefaultMaxNonces bounds the replay set
	DefaultMaxNonces = 10000

	nonceSize = 16

	// BypassSessionAuth names the session authentication bypass switch
	BypassSessionAuth = "session_auth"
)

// SessionOptions configures a SessionTokenAuthenticator
type SessionOptions struct {
	Secret    []byte // generated when empty; must be 32 bytes otherwise
	DevMode   bool   // selects the 60s expiry window
	Bypass    bool
	MaxNonces int              // defaults to DefaultMaxNonces
	Now       func() time.Time // defaults to time.Now
	Logger    zerolog.Logger
	Events    events.Publisher
}

// SessionTokenAuthenticator issues and verifies short-lived, single-use
// tokens of the form timestamp:nonce:hmac. The secret and the replay set
// live only in memory for the lifetime of the instance.
type SessionTokenAuthenticator struct {
	secret    []byte
	window    time.Duration
	bypass    bool
	maxNonces int
	now       func() time.Time
	logger    zerolog.Logger
	events    events.Publisher

	mu         sync.Mutex
	usedNonces map[string]struct{}
	nonceOrder []string
}

// NewSessionTokenAuthenticator creates an authenticator
func NewSessionTokenAuthenticator(opts SessionOptions) (*SessionTokenAuthenticator, error) {
	secret := opts.Secret
	if len(secret) == 0 {
		secret = make([]byte, SessionSecretSize)
		if _, err := io.ReadFull(rand.Reader, secret); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
	} else if len(secret) != SessionSecretSize {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidSecret, len(secret))
	} else {
		secret = append([]byte(nil), secret...)
	}

	window := ProductionTokenWindow
	if opts.DevMode {
		window = DevelopmentTokenWindow
	}
	maxNonces := opts.MaxNonces
	if maxNonces <= 0 {
		maxNonces = DefaultMaxNonces
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &SessionTokenAuthenticator{
		secret:     secret,
		window:     window,
		bypass:     opts.Bypass,
		maxNonces:  maxNonces,
		now:        now,
		logger:     opts.Logger,
		events:     opts.Events,
		usedNonces: make(map[string]struct{}),
	}, nil
}

// SecretFromHex decodes a hex-encoded session secret
func SecretFromHex(s string) ([]byte, error) {
	secret, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: not hex", ErrInvalidSecret)
	}
	if len(secret) != SessionSecretSize {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidSecret, len(secret))
	}
	return secret, nil
}

// SecretHex returns the secret hex-encoded for handing to the helper process
func (a *SessionTokenAuthenticator) SecretHex() string {
	return hex.EncodeToString(a.secret)
}

// Window returns the token expiry window
func (a *SessionTokenAuthenticator) Window() time.Duration {
	return a.window
}

func (a *SessionTokenAuthenticator) sign(timestamp, nonce string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(timestamp + ":" + nonce))
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateToken issues a fresh token stamped with the current time
func (a *SessionTokenAuthenticator) GenerateToken() (string, error) {
	raw := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	timestamp := strconv.FormatInt(a.now().Unix(), 10)
	nonce := hex.EncodeToString(raw)

	metrics.TokensIssued.Inc()
	return timestamp + ":" + nonce + ":" + a.sign(timestamp, nonce), nil
}

// VerifyToken checks format, freshness, replay and HMAC, in that order. On
// success the nonce is consumed; a failed verification consumes nothing.
func (a *SessionTokenAuthenticator) VerifyToken(token string) error {
	if a.bypass {
		log.Bypass(a.logger, BypassSessionAuth, "session token verification skipped")
		metrics.BypassActivations.WithLabelValues(BypassSessionAuth).Inc()
		events.Emit(a.events, events.EventBypassActive, "session token verification skipped", map[string]string{
			"switch": BypassSessionAuth,
		})
		return nil
	}

	err := a.verify(token)
	if err != nil {
		code := ErrorCode(err)
		metrics.TokenVerifications.WithLabelValues(code).Inc()
		a.logger.Warn().Err(err).Str("code", code).Msg("Session token rejected")
		events.Emit(a.events, events.EventTokenRejected, err.Error(), map[string]string{
			"code": code,
		})
		return err
	}

	metrics.TokenVerifications.WithLabelValues("valid").Inc()
	return nil
}

func (a *SessionTokenAuthenticator) verify(token string) error {
	parts := strings.Split(token, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ErrTokenMalformed
	}
	timestamp, nonce, mac := parts[0], parts[1], parts[2]

	issued, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrTokenTimestamp, timestamp)
	}

	age := a.now().Unix() - issued
	if age > int64(a.window/time.Second) {
		return fmt.Errorf("%w: age %ds exceeds %s", ErrTokenExpired, age, a.window)
	}
	if age < -int64(ClockSkewTolerance/time.Second) {
		return fmt.Errorf("%w: %ds ahead", ErrTokenFromFuture, -age)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, used := a.usedNonces[nonce]; used {
		return ErrTokenReplayed
	}

	expected := a.sign(timestamp, nonce)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(mac))) {
		return ErrTokenSignature
	}

	a.recordNonce(nonce)
	return nil
}

// recordNonce adds a nonce to the replay set, evicting the oldest half once
// the set exceeds its bound. Callers hold a.mu.
func (a *SessionTokenAuthenticator) recordNonce(nonce string) {
	a.usedNonces[nonce] = struct{}{}
	a.nonceOrder = append(a.nonceOrder, nonce)

	if len(a.nonceOrder) <= a.maxNonces {
		return
	}

	evict := len(a.nonceOrder) / 2
	for _, n := range a.nonceOrder[:evict] {
		delete(a.usedNonces, n)
	}
	a.nonceOrder = append([]string(nil), a.nonceOrder[evict:]...)

	a.logger.Debug().Int("evicted", evict).Int("remaining", len(a.nonceOrder)).Msg("Replay set trimmed")
}

// UsedNonces returns the size of the replay set
func (a *SessionTokenAuthenticator) UsedNonces() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.usedNonces)
}
