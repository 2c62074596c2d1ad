package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/uiwarden/pkg/log"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv
const (
	EnvSkipSessionAuth     = "SKIP_SESSION_AUTH"
	EnvSkipConfigSignature = "SKIP_CONFIG_SIGNATURE"
	EnvSkipIntegrityCheck  = "SKIP_INTEGRITY_CHECK"
	EnvNodeEnv             = "NODE_ENV"
)

// Config is the orchestrator configuration
type Config struct {
	KeyDir        string            `yaml:"keyDir"`
	ConfigPath    string            `yaml:"configPath"`              // signed JSON document
	SignaturePath string            `yaml:"signaturePath,omitempty"` // defaults to configPath + ".sig"
	BinariesDir   string            `yaml:"binariesDir"`
	Binaries      map[string]string `yaml:"binaries,omitempty"` // logical name to path relative to binariesDir
	HelperKey     string            `yaml:"helperKey"`
	HelperTimeout time.Duration     `yaml:"helperTimeout"`
	Recheck       time.Duration     `yaml:"recheckInterval"` // 0 disables periodic integrity re-checks
	PolicyPath    string            `yaml:"policyPath,omitempty"`
	AuditDir      string            `yaml:"auditDir"`
	MetricsAddr   string            `yaml:"metricsAddr"`
	Development   bool              `yaml:"development"`
	Log           LogConfig         `yaml:"log"`
	Bypass        Bypass            `yaml:"bypass"`
}

// LogConfig selects log level and format
type LogConfig struct {
	Level log.Level `yaml:"level"`
	JSON  bool      `yaml:"json"`
}

// Bypass holds the development bypass switches. All default to off.
type Bypass struct {
	SessionAuth     bool `yaml:"sessionAuth"`
	ConfigSignature bool `yaml:"configSignature"`
	IntegrityCheck  bool `yaml:"integrityCheck"`
}

// Active returns the names of enabled switches
func (b Bypass) Active() []string {
	var active []string
	if b.SessionAuth {
		active = append(active, "session_auth")
	}
	if b.ConfigSignature {
		active = append(active, "config_signature")
	}
	if b.IntegrityCheck {
		active = append(active, "integrity_check")
	}
	return active
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		KeyDir:        "keys",
		ConfigPath:    "config.json",
		BinariesDir:   "bin",
		Binaries:      map[string]string{},
		HelperKey:     "helper",
		HelperTimeout: 30 * time.Second,
		Recheck:       5 * time.Minute,
		AuditDir:      "data",
		MetricsAddr:   "127.0.0.1:9090",
		Log:           LogConfig{Level: log.InfoLevel},
	}
}

// Load reads a YAML configuration file over the defaults. Relative paths in
// the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Binaries == nil {
		cfg.Binaries = map[string]string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.KeyDir == "" {
		return fmt.Errorf("keyDir is required")
	}
	if c.ConfigPath == "" {
		return fmt.Errorf("configPath is required")
	}
	if c.HelperKey == "" {
		return fmt.Errorf("helperKey is required")
	}
	if c.HelperTimeout <= 0 {
		return fmt.Errorf("helperTimeout must be positive")
	}
	if c.Recheck < 0 {
		return fmt.Errorf("recheckInterval cannot be negative")
	}
	switch c.Log.Level {
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	for name, p := range c.Binaries {
		if p == "" {
			return fmt.Errorf("binary %q has an empty path", name)
		}
	}
	return nil
}

func (c *Config) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.KeyDir = abs(c.KeyDir)
	c.ConfigPath = abs(c.ConfigPath)
	c.SignaturePath = abs(c.SignaturePath)
	c.BinariesDir = abs(c.BinariesDir)
	c.PolicyPath = abs(c.PolicyPath)
	c.AuditDir = abs(c.AuditDir)
}

// HelperPath returns the helper executable path, or "" when the helper key
// is not in Binaries
func (c *Config) HelperPath() string {
	rel, ok := c.Binaries[c.HelperKey]
	if !ok {
		return ""
	}
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.BinariesDir, filepath.FromSlash(rel))
}

// LogConfig returns the settings for log.New
func (c *Config) LogConfig() log.Config {
	return log.Config{Level: c.Log.Level, JSONOutput: c.Log.JSON}
}

// ApplyEnv overlays the bypass switches and development mode from the
// environment and returns the names of variables that changed something.
// This is the only place environment variables feed into configuration.
func ApplyEnv(c *Config, lookup func(string) (string, bool)) []string {
	var applied []string

	set := func(name string, target *bool) {
		if v, ok := lookup(name); ok && truthy(v) {
			*target = true
			applied = append(applied, name)
		}
	}
	set(EnvSkipSessionAuth, &c.Bypass.SessionAuth)
	set(EnvSkipConfigSignature, &c.Bypass.ConfigSignature)
	set(EnvSkipIntegrityCheck, &c.Bypass.IntegrityCheck)

	if v, ok := lookup(EnvNodeEnv); ok && strings.EqualFold(strings.TrimSpace(v), "development") {
		c.Development = true
		applied = append(applied, EnvNodeEnv)
	}
	return applied
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
