package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/uiwarden/pkg/metrics"
	"github.com/cuemby/uiwarden/pkg/orchestrator"
)

// HealthServer provides the HTTP health, liveness, status and metrics endpoints
type HealthServer struct {
	gate    *orchestrator.Gate
	version string
	mux     *http.ServeMux
	server  *http.Server
}

// NewHealthServer creates a new health check HTTP server
func NewHealthServer(gate *orchestrator.Gate, version string) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		gate:    gate,
		version: version,
		mux:     mux,
	}

	// Register endpoints
	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.HandleFunc("/status", hs.statusHandler)
	mux.Handle("/live", metrics.LivenessHandler())
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start starts the health check HTTP server and blocks until it stops
func (hs *HealthServer) Start(addr string) error {
	hs.server = &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	err := hs.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops a started server
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	if hs.server == nil {
		return nil
	}
	return hs.server.Shutdown(ctx)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler implements the /health endpoint
// This is a simple liveness check - returns 200 if the process is alive
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   hs.version,
	})
}

// readyHandler implements the /ready endpoint
// Ready means the startup gate passed and every critical component is healthy
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	readiness := metrics.GetReadiness()
	checks := readiness.Components
	if checks == nil {
		checks = make(map[string]string)
	}
	ready := readiness.Status == "ready"
	message := readiness.Message

	if hs.gate == nil {
		checks["gate"] = "not initialized"
		ready = false
		message = "Startup gate not initialized"
	} else {
		st := hs.gate.Status()
		checks["gate"] = string(st.State)
		if st.State != orchestrator.StateReady {
			ready = false
			if st.Code != "" {
				message = "Startup blocked: " + st.Code
			} else if message == "" {
				message = "Startup checks pending"
			}
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	})
}

// statusHandler reports the full gate status, including bypassed switches
func (hs *HealthServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hs.gate == nil {
		http.Error(w, "Startup gate not initialized", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, hs.gate.Status())
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}
