package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/uiwarden/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.False(t, cfg.Bypass.SessionAuth)
	assert.False(t, cfg.Bypass.ConfigSignature)
	assert.False(t, cfg.Bypass.IntegrityCheck)
	assert.Empty(t, cfg.Bypass.Active())
	assert.False(t, cfg.Development)
	assert.Equal(t, "helper", cfg.HelperKey)
	assert.Equal(t, 5*time.Minute, cfg.Recheck)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "uiwarden.yaml")
	doc := `
keyDir: secrets/keys
configPath: config.json
binariesDir: /opt/uiwarden/bin
binaries:
  helper: helper.exe
  server: server/server.js
helperTimeout: 10s
recheckInterval: 0s
policyPath: policy.yaml
development: true
log:
  level: debug
  json: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "secrets/keys"), cfg.KeyDir)
	assert.Equal(t, filepath.Join(dir, "config.json"), cfg.ConfigPath)
	assert.Equal(t, "/opt/uiwarden/bin", cfg.BinariesDir)
	assert.Equal(t, filepath.Join(dir, "policy.yaml"), cfg.PolicyPath)
	assert.Equal(t, 10*time.Second, cfg.HelperTimeout)
	assert.Zero(t, cfg.Recheck)
	assert.True(t, cfg.Development)
	assert.Equal(t, log.DebugLevel, cfg.Log.Level)
	assert.True(t, cfg.LogConfig().JSONOutput)
	assert.Equal(t, filepath.Join("/opt/uiwarden/bin", "helper.exe"), cfg.HelperPath())

	// Untouched fields keep their defaults
	assert.Equal(t, "127.0.0.1:9090", cfg.MetricsAddr)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown field", doc: "keydir: x\n"},
		{name: "bad log level", doc: "log:\n  level: loud\n"},
		{name: "bad duration", doc: "helperTimeout: soon\n"},
		{name: "negative recheck", doc: "recheckInterval: -1m\n"},
		{name: "empty helper key", doc: "helperKey: \"\"\n"},
		{name: "empty binary path", doc: "binaries:\n  helper: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestHelperPathMissing(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.HelperPath())
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    Bypass
		dev     bool
		applied []string
	}{
		{
			name: "nothing set",
		},
		{
			name:    "truthy values",
			env:     map[string]string{EnvSkipSessionAuth: "1", EnvSkipConfigSignature: "TRUE", EnvSkipIntegrityCheck: "yes"},
			want:    Bypass{SessionAuth: true, ConfigSignature: true, IntegrityCheck: true},
			applied: []string{EnvSkipSessionAuth, EnvSkipConfigSignature, EnvSkipIntegrityCheck},
		},
		{
			name: "falsy values ignored",
			env:  map[string]string{EnvSkipSessionAuth: "0", EnvSkipConfigSignature: "false", EnvSkipIntegrityCheck: ""},
		},
		{
			name:    "development mode",
			env:     map[string]string{EnvNodeEnv: "development"},
			dev:     true,
			applied: []string{EnvNodeEnv},
		},
		{
			name: "production mode",
			env:  map[string]string{EnvNodeEnv: "production"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			lookup := func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			}

			applied := ApplyEnv(cfg, lookup)
			assert.Equal(t, tt.want, cfg.Bypass)
			assert.Equal(t, tt.dev, cfg.Development)
			assert.Equal(t, tt.applied, applied)
		})
	}
}

func TestBypassActive(t *testing.T) {
	b := Bypass{SessionAuth: true, IntegrityCheck: true}
	assert.Equal(t, []string{"session_auth", "integrity_check"}, b.Active())
}
