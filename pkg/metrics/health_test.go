package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetHealth clears registered components between tests
func resetHealth(t *testing.T) {
	t.Helper()
	healthChecker.mu.Lock()
	healthChecker.components = make(map[string]ComponentHealth)
	healthChecker.version = ""
	healthChecker.mu.Unlock()
	t.Cleanup(func() {
		healthChecker.mu.Lock()
		healthChecker.components = make(map[string]ComponentHealth)
		healthChecker.mu.Unlock()
	})
}

func allCriticalHealthy() {
	for _, c := range CriticalComponents {
		RegisterComponent(c, true, "ok")
	}
}

func TestReadinessGatedByCriticalComponents(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		wantStatus  string
		wantMessage string
	}{
		{
			name:        "nothing registered",
			setup:       func() {},
			wantStatus:  "not_ready",
			wantMessage: "waiting for keys initialization",
		},
		{
			name: "keys loaded, config not yet checked",
			setup: func() {
				RegisterComponent(ComponentKeys, true, "thumbprint ABC")
				RegisterComponent(ComponentConfig, false, "startup checks pending")
			},
			wantStatus:  "not_ready",
			wantMessage: "waiting for config",
		},
		{
			name:       "all critical components healthy",
			setup:      allCriticalHealthy,
			wantStatus: "ready",
		},
		{
			name: "helper probe failing",
			setup: func() {
				allCriticalHealthy()
				RegisterComponent(ComponentHelper, false, "helper exited 10")
			},
			wantStatus: "ready",
		},
		{
			name: "binary tampered after startup",
			setup: func() {
				allCriticalHealthy()
				UpdateComponent(ComponentBinaries, false, "BINARY_HASH_MISMATCH")
			},
			wantStatus:  "not_ready",
			wantMessage: "waiting for binaries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			tt.setup()

			r := GetReadiness()
			assert.Equal(t, tt.wantStatus, r.Status)
			assert.Equal(t, tt.wantMessage, r.Message)
			assert.Len(t, r.Components, len(CriticalComponents))
			assert.NotContains(t, r.Components, ComponentHelper)
		})
	}
}

func TestHealthDegradedByHelper(t *testing.T) {
	resetHealth(t)
	allCriticalHealthy()
	assert.Equal(t, "healthy", GetHealth().Status)

	UpdateComponent(ComponentHelper, false, "helper did not run")
	h := GetHealth()
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, "unhealthy: helper did not run", h.Components[ComponentHelper])
	assert.Equal(t, "healthy", h.Components[ComponentKeys])

	// A critical failure outranks the helper
	UpdateComponent(ComponentConfig, false, "CONFIG_HASH_MISMATCH")
	assert.Equal(t, "unhealthy", GetHealth().Status)

	UpdateComponent(ComponentConfig, true, "signature verified")
	UpdateComponent(ComponentHelper, true, "helper answered in 3ms")
	assert.Equal(t, "healthy", GetHealth().Status)
}

func TestLivenessHandler(t *testing.T) {
	resetHealth(t)
	SetVersion("1.2.3")
	RegisterComponent(ComponentKeys, false, "KEYS_NOT_INITIALIZED")

	w := httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/live", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, "unhealthy: KEYS_NOT_INITIALIZED", body.Components[ComponentKeys])
	assert.NotEmpty(t, body.Uptime)
	assert.WithinDuration(t, time.Now(), body.Timestamp, time.Minute)

	w = httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest(http.MethodPost, "/live", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
