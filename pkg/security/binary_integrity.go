package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cuemby/uiwarden/pkg/events"
	"github.com/cuemby/uiwarden/pkg/log"
	"github.com/cuemby/uiwarden/pkg/metrics"
	"github.com/cuemby/uiwarden/pkg/types"
	"github.com/rs/zerolog"
)

// BypassIntegrityCheck names the binary integrity bypass switch
const BypassIntegrityCheck = "integrity_check"

// BinaryIntegrityOptions configures a BinaryIntegrityChecker
type BinaryIntegrityOptions struct {
	BaseDir string // relative binary paths are resolved against this directory
	Bypass  bool
	Logger  zerolog.Logger
	Events  events.Publisher
}

// BinaryIntegrityChecker compares binaries on disk against a trusted manifest.
// It only reads binaries, never modifies them.
type BinaryIntegrityChecker struct {
	baseDir string
	bypass  bool
	logger  zerolog.Logger
	events  events.Publisher
}

// NewBinaryIntegrityChecker creates a checker
func NewBinaryIntegrityChecker(opts BinaryIntegrityOptions) *BinaryIntegrityChecker {
	return &BinaryIntegrityChecker{
		baseDir: opts.BaseDir,
		bypass:  opts.Bypass,
		logger:  opts.Logger,
		events:  opts.Events,
	}
}

func (c *BinaryIntegrityChecker) resolve(relPath string) string {
	if filepath.IsAbs(relPath) || c.baseDir == "" {
		return filepath.FromSlash(relPath)
	}
	return filepath.Join(c.baseDir, filepath.FromSlash(relPath))
}

// hashFile streams a file through SHA-256
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeHash hashes the binary at relPath and records its size and mtime
func (c *BinaryIntegrityChecker) ComputeHash(relPath string) (*types.BinaryHash, error) {
	full := c.resolve(relPath)

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBinaryNotFound, full)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", full, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", full)
	}

	sum, err := hashFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", full, err)
	}

	return &types.BinaryHash{
		Path:         filepath.ToSlash(relPath),
		SHA256:       sum,
		Size:         info.Size(),
		LastModified: info.ModTime().UTC(),
	}, nil
}

// Manifest hashes every binary in a logical name to relative path map
func (c *BinaryIntegrityChecker) Manifest(binaries map[string]string) (map[string]types.BinaryHash, error) {
	manifest := make(map[string]types.BinaryHash, len(binaries))
	for name, relPath := range binaries {
		hash, err := c.ComputeHash(relPath)
		if err != nil {
			return nil, fmt.Errorf("binary %q: %w", name, err)
		}
		manifest[name] = *hash
	}
	return manifest, nil
}

// VerifyBinary checks existence first, then compares the SHA-256 digest.
// Failures carry both the expected and the actual hash.
func (c *BinaryIntegrityChecker) VerifyBinary(name string, expected types.BinaryHash) types.IntegrityResult {
	full := c.resolve(expected.Path)
	result := types.IntegrityResult{
		Name:     name,
		Path:     expected.Path,
		Expected: strings.ToLower(expected.SHA256),
	}

	info, err := os.Stat(full)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		result.Kind = types.IntegrityNotFound
		result.Error = fmt.Sprintf("%s: %s", ErrBinaryNotFound, full)
	case err != nil:
		result.Kind = types.IntegrityReadError
		result.Error = err.Error()
	case info.IsDir():
		result.Kind = types.IntegrityReadError
		result.Error = fmt.Sprintf("%s is a directory", full)
	}
	if result.Kind != "" {
		c.reportFailure(result)
		return result
	}

	actual, err := hashFile(full)
	if err != nil {
		result.Kind = types.IntegrityReadError
		result.Error = err.Error()
		c.reportFailure(result)
		return result
	}
	result.Actual = actual

	if actual != result.Expected {
		result.Kind = types.IntegrityHashMismatch
		result.Error = fmt.Sprintf("%s: expected %s, got %s", ErrBinaryHashMismatch, prefix(result.Expected), prefix(actual))
		c.reportFailure(result)
		return result
	}

	result.Valid = true
	metrics.BinaryChecks.WithLabelValues("valid").Inc()
	c.logger.Debug().Str("binary", name).Str("sha256", prefix(actual)).Msg("Binary integrity verified")
	return result
}

func (c *BinaryIntegrityChecker) reportFailure(result types.IntegrityResult) {
	metrics.BinaryChecks.WithLabelValues(string(result.Kind)).Inc()
	c.logger.Error().
		Str("binary", result.Name).
		Str("path", result.Path).
		Str("kind", string(result.Kind)).
		Str("expected", prefix(result.Expected)).
		Str("actual", prefix(result.Actual)).
		Msg("Binary integrity check failed")
	events.Emit(c.events, events.EventBinaryRejected, result.Error, map[string]string{
		"binary":   result.Name,
		"kind":     string(result.Kind),
		"expected": result.Expected,
		"actual":   result.Actual,
	})
}

// VerifyAll verifies every manifest entry in name order. AllValid is true
// only if every result is valid. With the bypass switch on, nothing is
// hashed and the report says so.
func (c *BinaryIntegrityChecker) VerifyAll(manifest map[string]types.BinaryHash) types.IntegrityReport {
	if c.bypass {
		log.Bypass(c.logger, BypassIntegrityCheck, "binary integrity checks skipped")
		metrics.BypassActivations.WithLabelValues(BypassIntegrityCheck).Inc()
		events.Emit(c.events, events.EventBypassActive, "binary integrity checks skipped", map[string]string{
			"switch": BypassIntegrityCheck,
		})
		return types.IntegrityReport{AllValid: true, Bypassed: true, Results: []types.IntegrityResult{}}
	}

	names := make([]string, 0, len(manifest))
	for name := range manifest {
		names = append(names, name)
	}
	sort.Strings(names)

	report := types.IntegrityReport{AllValid: true, Results: make([]types.IntegrityResult, 0, len(names))}
	for _, name := range names {
		result := c.VerifyBinary(name, manifest[name])
		if !result.Valid {
			report.AllValid = false
		}
		report.Results = append(report.Results, result)
	}

	if report.AllValid {
		events.Emit(c.events, events.EventBinaryVerified, "all binaries verified", map[string]string{
			"count": fmt.Sprintf("%d", len(names)),
		})
	}
	return report
}

// SelfCheck verifies the single binary registered under key.
// A key missing from the manifest fails.
func (c *BinaryIntegrityChecker) SelfCheck(key string, manifest map[string]types.BinaryHash) bool {
	if c.bypass {
		log.Bypass(c.logger, BypassIntegrityCheck, "self check of "+key+" skipped")
		metrics.BypassActivations.WithLabelValues(BypassIntegrityCheck).Inc()
		return true
	}

	expected, ok := manifest[key]
	if !ok {
		metrics.BinaryChecks.WithLabelValues(string(types.IntegrityNotListed)).Inc()
		c.logger.Error().Str("binary", key).Msg("Binary not listed in manifest")
		events.Emit(c.events, events.EventBinaryRejected, fmt.Sprintf("%s: %s", ErrBinaryNotListed, key), map[string]string{
			"binary": key,
			"kind":   string(types.IntegrityNotListed),
		})
		return false
	}
	return c.VerifyBinary(key, expected).Valid
}

// prefix shortens a hex digest for log output
func prefix(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}
