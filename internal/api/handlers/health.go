// Package handlers provides HTTP request handlers for the clinical NLQ API.
package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"clinical-nlq/internal/api/response"
	"clinical-nlq/internal/config"
	"clinical-nlq/internal/ports"
)

// HealthHandler reports service health and readiness.
type HealthHandler struct {
	config    *config.Config
	store     ports.MetadataStore
	startTime time.Time
}

// HealthStatus is the health check response structure.
type HealthStatus struct {
	Status      string           `json:"status"`
	Server      string           `json:"server"`
	Version     string           `json:"version"`
	Environment string           `json:"environment"`
	Uptime      string           `json:"uptime"`
	Timestamp   string           `json:"timestamp"`
	Checks      map[string]Check `json:"checks"`
	System      SystemInfo       `json:"system"`
}

// Check is an individual health check result.
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// SystemInfo is runtime system information.
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	MemoryMB     uint64 `json:"memory_mb"`
}

const serverName = "clinical-nlq"

// NewHealthHandler creates a health check handler.
func NewHealthHandler(cfg *config.Config, store ports.MetadataStore) *HealthHandler {
	return &HealthHandler{config: cfg, store: store, startTime: time.Now()}
}

// Handle processes health check requests.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks := h.performHealthChecks(ctx)
	status := h.determineOverallStatus(checks)

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	body := HealthStatus{
		Status:      status,
		Server:      serverName,
		Version:     "1.0.0",
		Environment: h.getEnvironment(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Checks:      checks,
		System:      h.getSystemInfo(),
	}

	w.WriteHeader(statusCode)
	response.WriteSuccess(w, body)
}

// HandleReadiness reports whether the service can accept traffic: the
// metadata store must be reachable.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.store.ListChunks(ctx, "__readiness_probe__"); err != nil {
		response.WriteServiceUnavailable(w, "metadata store unreachable", err.Error())
		return
	}
	response.WriteSuccess(w, map[string]string{"status": "ready"})
}

// HandleLiveness reports whether the process is alive.
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	response.WriteSuccess(w, map[string]string{"status": "alive"})
}

func (h *HealthHandler) performHealthChecks(ctx context.Context) map[string]Check {
	checks := make(map[string]Check)
	checks["metadata_store"] = h.checkMetadataStore(ctx)
	checks["memory"] = h.checkMemory()
	checks["config"] = h.checkConfiguration()
	return checks
}

func (h *HealthHandler) checkMetadataStore(ctx context.Context) Check {
	start := time.Now()
	if _, err := h.store.ListChunks(ctx, "__health_probe__"); err != nil {
		return Check{Status: "unhealthy", Message: err.Error(), Latency: time.Since(start).Round(time.Millisecond).String()}
	}
	return Check{Status: "healthy", Latency: time.Since(start).Round(time.Millisecond).String()}
}

func (h *HealthHandler) checkMemory() Check {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	memoryMB := m.Alloc / 1024 / 1024
	if memoryMB > 500 {
		return Check{Status: "warning", Message: "high memory usage"}
	}
	return Check{Status: "healthy", Message: "memory usage normal"}
}

func (h *HealthHandler) checkConfiguration() Check {
	if err := h.config.Validate(); err != nil {
		return Check{Status: "warning", Message: "configuration validation warning: " + err.Error()}
	}
	return Check{Status: "healthy", Message: "configuration valid"}
}

func (h *HealthHandler) getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		MemoryMB:     m.Alloc / 1024 / 1024,
	}
}

func (h *HealthHandler) getEnvironment() string {
	if h.config.Server.Host == "localhost" || h.config.Server.Host == "127.0.0.1" {
		return "development"
	}
	return "production"
}

func (h *HealthHandler) determineOverallStatus(checks map[string]Check) string {
	hasUnhealthy := false
	hasWarning := false

	for _, check := range checks {
		switch check.Status {
		case "unhealthy":
			hasUnhealthy = true
		case "warning":
			hasWarning = true
		}
	}

	if hasUnhealthy {
		return "unhealthy"
	}
	if hasWarning {
		return "warning"
	}
	return "healthy"
}
