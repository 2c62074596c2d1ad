package security

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/cuemby/uiwarden/pkg/events"
	"github.com/cuemby/uiwarden/pkg/log"
	"github.com/cuemby/uiwarden/pkg/metrics"
	"github.com/cuemby/uiwarden/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// SignatureAlgorithm is the only algorithm SignConfig produces and VerifyConfig accepts
	SignatureAlgorithm = "RSA-SHA256"

	// SignatureSuffix is appended to the config path to locate its signature
	SignatureSuffix = ".sig"

	// BinaryHashesField is the document field holding the embedded manifest
	BinaryHashesField = "binaryHashes"

	// BypassConfigSignature names the config signature bypass switch
	BypassConfigSignature = "config_signature"
)

// ConfigIntegrityOptions configures a ConfigIntegrity
type ConfigIntegrityOptions struct {
	ConfigPath    string
	SignaturePath string // defaults to ConfigPath + ".sig"
	Keys          *KeyVault
	Binaries      *BinaryIntegrityChecker
	BinaryPaths   map[string]string // logical name to relative path, hashed when signing
	Bypass        bool
	Logger        zerolog.Logger
	Events        events.Publisher
}

// ConfigIntegrity signs the configuration document and verifies it on load
type ConfigIntegrity struct {
	configPath    string
	signaturePath string
	keys          *KeyVault
	binaries      *BinaryIntegrityChecker
	binaryPaths   map[string]string
	bypass        bool
	logger        zerolog.Logger
	events        events.Publisher
}

// VerifiedConfig is a configuration document whose bytes passed verification
type VerifiedConfig struct {
	Raw          []byte
	Document     map[string]json.RawMessage
	BinaryHashes map[string]types.BinaryHash
	Signature    *types.ConfigSignature // nil when bypassed
	Bypassed     bool
}

// NewConfigIntegrity creates a ConfigIntegrity
func NewConfigIntegrity(opts ConfigIntegrityOptions) *ConfigIntegrity {
	sigPath := opts.SignaturePath
	if sigPath == "" {
		sigPath = opts.ConfigPath + SignatureSuffix
	}

	return &ConfigIntegrity{
		configPath:    opts.ConfigPath,
		signaturePath: sigPath,
		keys:          opts.Keys,
		binaries:      opts.Binaries,
		binaryPaths:   opts.BinaryPaths,
		bypass:        opts.Bypass,
		logger:        opts.Logger,
		events:        opts.Events,
	}
}

// SignaturePath returns where the signature artifact lives
func (ci *ConfigIntegrity) SignaturePath() string {
	return ci.signaturePath
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (ci *ConfigIntegrity) readConfig() ([]byte, error) {
	data, err := os.ReadFile(ci.configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, ci.configPath)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return data, nil
}

func parseDocument(data []byte) (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return nil, ErrConfigMalformed
	}
	return doc, nil
}

// withBinaryHashes returns the document with a freshly computed manifest
// embedded. Nothing is written.
func (ci *ConfigIntegrity) withBinaryHashes(data []byte) ([]byte, int, error) {
	if ci.binaries == nil {
		return nil, 0, fmt.Errorf("no binary integrity checker configured")
	}

	doc, err := parseDocument(data)
	if err != nil {
		return nil, 0, err
	}

	manifest, err := ci.binaries.Manifest(ci.binaryPaths)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to hash binaries: %w", err)
	}
	encoded, err := json.Marshal(manifest)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode binary hashes: %w", err)
	}
	doc[BinaryHashesField] = encoded

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode config: %w", err)
	}
	return append(out, '\n'), len(manifest), nil
}

// writeConfig replaces the config with data and reads it back. On any
// failure the previous bytes are restored.
func (ci *ConfigIntegrity) writeConfig(data, previous []byte) error {
	if err := writeFileAtomic(ci.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	written, err := ci.readConfig()
	if err == nil && !bytes.Equal(written, data) {
		err = fmt.Errorf("config changed while it was being written")
	}
	if err != nil {
		ci.restoreConfig(previous)
		return err
	}
	return nil
}

func (ci *ConfigIntegrity) restoreConfig(previous []byte) {
	if err := writeFileAtomic(ci.configPath, previous, 0644); err != nil {
		ci.logger.Error().Err(err).Str("config", ci.configPath).Msg("Failed to restore config after signing error")
	}
}

// SignConfig signs the configuration file. When includeBinaryHashes is set,
// the binary manifest is embedded in the document, which is written and read
// back before the signature file is replaced. The key is loaded and the
// signature computed before anything on disk changes, so a failed signing
// leaves the previous config and signature in place.
func (ci *ConfigIntegrity) SignConfig(privatePassword string, includeBinaryHashes bool) (*types.ConfigSignature, error) {
	original, err := ci.readConfig()
	if err != nil {
		return nil, err
	}

	key, err := ci.keys.LoadPrivateKey(privatePassword)
	if err != nil {
		return nil, err
	}
	thumbprint, err := ci.keys.Thumbprint()
	if err != nil {
		return nil, fmt.Errorf("failed to read signing certificate: %w", err)
	}

	data := original
	embedded := 0
	if includeBinaryHashes {
		if data, embedded, err = ci.withBinaryHashes(original); err != nil {
			return nil, err
		}
	}

	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign config: %w", err)
	}

	signature := &types.ConfigSignature{
		Signature:  base64.StdEncoding.EncodeToString(sig),
		Algorithm:  SignatureAlgorithm,
		Timestamp:  time.Now().UTC(),
		ConfigHash: hex.EncodeToString(digest[:]),
		Thumbprint: thumbprint,
	}

	out, err := json.MarshalIndent(signature, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode signature: %w", err)
	}

	if includeBinaryHashes {
		if err := ci.writeConfig(data, original); err != nil {
			return nil, err
		}
		ci.logger.Info().Int("binaries", embedded).Msg("Binary hashes embedded in config")
	}
	if err := writeFileAtomic(ci.signaturePath, out, 0644); err != nil {
		if includeBinaryHashes {
			ci.restoreConfig(original)
		}
		return nil, fmt.Errorf("failed to write signature: %w", err)
	}

	ci.logger.Info().
		Str("config", ci.configPath).
		Str("hash", prefix(signature.ConfigHash)).
		Str("thumbprint", prefix(thumbprint)).
		Msg("Config signed")
	events.Emit(ci.events, events.EventConfigSigned, "config signed", map[string]string{
		"config":     ci.configPath,
		"configHash": signature.ConfigHash,
		"thumbprint": thumbprint,
	})

	return signature, nil
}

func (ci *ConfigIntegrity) readSignature() (*types.ConfigSignature, []byte, error) {
	data, err := os.ReadFile(ci.signaturePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrSignatureNotFound, ci.signaturePath)
		}
		return nil, nil, fmt.Errorf("failed to read signature: %w", err)
	}

	var sig types.ConfigSignature
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSignatureCorrupted, err)
	}
	if sig.Signature == "" || sig.ConfigHash == "" {
		return nil, nil, fmt.Errorf("%w: missing signature or configHash", ErrSignatureCorrupted)
	}

	raw, err := base64.StdEncoding.DecodeString(sig.Signature)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: signature is not base64", ErrSignatureCorrupted)
	}
	return &sig, raw, nil
}

// VerifyConfig verifies the configuration against its signature artifact.
// The content hash is compared before any key is loaded, so a file edited
// after signing fails with ErrConfigHashMismatch regardless of the signature.
func (ci *ConfigIntegrity) VerifyConfig(publicPassword string) (*VerifiedConfig, error) {
	return ci.finish(ci.verify(func() (*LoadedKeys, func(), error) {
		loaded, err := ci.keys.LoadKeys(publicPassword, "")
		if err != nil {
			return nil, nil, err
		}
		return loaded, loaded.Destroy, nil
	}))
}

// VerifyConfigWithKeys is VerifyConfig for a caller that already holds the
// decrypted public key. keys is not destroyed.
func (ci *ConfigIntegrity) VerifyConfigWithKeys(keys *LoadedKeys) (*VerifiedConfig, error) {
	return ci.finish(ci.verify(func() (*LoadedKeys, func(), error) {
		if keys == nil || keys.PublicKey == nil {
			return nil, nil, fmt.Errorf("%w: no public key loaded", ErrNotInitialized)
		}
		return keys, func() {}, nil
	}))
}

func (ci *ConfigIntegrity) finish(verified *VerifiedConfig, err error) (*VerifiedConfig, error) {
	if err != nil {
		code := ErrorCode(err)
		metrics.ConfigVerifications.WithLabelValues(code).Inc()
		ci.logger.Error().Err(err).Str("code", code).Str("config", ci.configPath).Msg("Config verification failed")
		events.Emit(ci.events, events.EventConfigRejected, err.Error(), map[string]string{
			"config": ci.configPath,
			"code":   code,
		})
		return nil, err
	}

	if verified.Bypassed {
		metrics.ConfigVerifications.WithLabelValues("bypassed").Inc()
		return verified, nil
	}

	metrics.ConfigVerifications.WithLabelValues("valid").Inc()
	ci.logger.Info().Str("config", ci.configPath).Msg("Config signature verified")
	events.Emit(ci.events, events.EventConfigVerified, "config signature verified", map[string]string{
		"config":     ci.configPath,
		"configHash": verified.Signature.ConfigHash,
	})
	return verified, nil
}

// verify runs the checks in order; loadKeys is called only once the content
// hash matched
func (ci *ConfigIntegrity) verify(loadKeys func() (*LoadedKeys, func(), error)) (*VerifiedConfig, error) {
	data, err := ci.readConfig()
	if err != nil {
		return nil, err
	}

	if ci.bypass {
		log.Bypass(ci.logger, BypassConfigSignature, "config signature verification skipped")
		metrics.BypassActivations.WithLabelValues(BypassConfigSignature).Inc()
		events.Emit(ci.events, events.EventBypassActive, "config signature verification skipped", map[string]string{
			"switch": BypassConfigSignature,
		})
		return newVerifiedConfig(data, nil, true)
	}

	sig, rawSig, err := ci.readSignature()
	if err != nil {
		return nil, err
	}

	actual := hashBytes(data)
	if !strings.EqualFold(actual, sig.ConfigHash) {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrConfigHashMismatch, prefix(strings.ToLower(sig.ConfigHash)), prefix(actual))
	}

	if sig.Algorithm != SignatureAlgorithm {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrSignatureInvalid, sig.Algorithm)
	}

	loaded, release, err := loadKeys()
	if err != nil {
		return nil, err
	}
	defer release()

	if sig.Thumbprint != "" && loaded.Thumbprint != "" && !strings.EqualFold(sig.Thumbprint, loaded.Thumbprint) {
		return nil, fmt.Errorf("%w: signed by %s, key is %s", ErrSignatureKeyMismatch, prefix(sig.Thumbprint), prefix(loaded.Thumbprint))
	}

	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(loaded.PublicKey, crypto.SHA256, digest[:], rawSig); err != nil {
		return nil, ErrSignatureInvalid
	}

	return newVerifiedConfig(data, sig, false)
}

func newVerifiedConfig(data []byte, sig *types.ConfigSignature, bypassed bool) (*VerifiedConfig, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}

	vc := &VerifiedConfig{
		Raw:       data,
		Document:  doc,
		Signature: sig,
		Bypassed:  bypassed,
	}

	if raw, ok := doc[BinaryHashesField]; ok {
		if err := json.Unmarshal(raw, &vc.BinaryHashes); err != nil {
			return nil, fmt.Errorf("%w: invalid %s: %v", ErrConfigMalformed, BinaryHashesField, err)
		}
	}
	return vc, nil
}

// VerifyBinaries checks every binary embedded in a verified configuration.
// Missing files and hash mismatches are distinguished by the result Kind.
func (ci *ConfigIntegrity) VerifyBinaries(cfg *VerifiedConfig) map[string]types.IntegrityResult {
	results := make(map[string]types.IntegrityResult)
	if cfg == nil || ci.binaries == nil {
		return results
	}

	for name, expected := range cfg.BinaryHashes {
		results[name] = ci.binaries.VerifyBinary(name, expected)
	}
	return results
}
