package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  zerolog.Level
	}{
		{DebugLevel, zerolog.DebugLevel},
		{InfoLevel, zerolog.InfoLevel},
		{WarnLevel, zerolog.WarnLevel},
		{ErrorLevel, zerolog.ErrorLevel},
		{Level("bogus"), zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.level))
		})
	}
}

func TestNewJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(New(Config{Level: InfoLevel, JSONOutput: true, Output: &buf}), "keyvault")

	logger.Info().Msg("hello")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "keyvault", record["component"])
	assert.Equal(t, "hello", record["message"])
	assert.Equal(t, "info", record["level"])
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: ErrorLevel, JSONOutput: true, Output: &buf})

	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())
}

func TestBypassAlwaysWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: ErrorLevel, JSONOutput: true, Output: &buf})

	Bypass(logger, "integrity_check", "binary integrity verification skipped")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "warn", record["level"])
	assert.Equal(t, "integrity_check", record["bypass"])
	assert.Contains(t, record["message"], "SECURITY BYPASS ACTIVE")
}
