// Package api provides the HTTP API layer for the clinical NLQ service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"clinical-nlq/internal/api/handlers"
	"clinical-nlq/internal/api/middleware"
	"clinical-nlq/internal/config"
	"clinical-nlq/internal/conversation"
	"clinical-nlq/internal/orchestrator"
	"clinical-nlq/internal/ports"
)

// Router is the main API router: middleware stack plus the query/session/
// evaluation route table (spec.md section 6).
type Router struct {
	config  *config.Config
	mux     *chi.Mux
	version string
}

// NewRouter creates the API router with its middleware stack and routes
// wired to the orchestrator, session manager, and metadata store.
func NewRouter(cfg *config.Config, orch *orchestrator.Orchestrator, sessions *conversation.Manager, store ports.MetadataStore) *Router {
	r := &Router{
		config:  cfg,
		mux:     chi.NewRouter(),
		version: "1.0.0",
	}

	r.setupMiddleware()
	r.setupRoutes(orch, sessions, store)

	return r
}

// Handler returns the HTTP handler.
func (r *Router) Handler() http.Handler {
	return r.mux
}

// setupMiddleware configures the middleware stack.
func (r *Router) setupMiddleware() {
	r.mux.Use(chimiddleware.Recoverer)
	r.mux.Use(chimiddleware.Timeout(30 * time.Second))

	loggingMiddleware := middleware.NewLoggingMiddleware()
	r.mux.Use(loggingMiddleware.Handler())

	corsMiddleware := r.createCORSMiddleware()
	r.mux.Use(corsMiddleware.Handler())

	securityHeaders := r.createSecurityHeadersMiddleware()
	r.mux.Use(securityHeaders.Handler())

	rateLimiter := middleware.NewRateLimiter(r.rateLimitConfig())
	r.mux.Use(rateLimiter.Middleware())

	r.mux.Use(chimiddleware.RequestSize(1024 * 1024))
	r.mux.Use(chimiddleware.Heartbeat("/ping"))
}

func (r *Router) createCORSMiddleware() *middleware.CORSMiddleware {
	if r.isDevEnvironment() {
		return middleware.NewDefaultCORSMiddleware()
	}
	return middleware.NewProductionCORSMiddleware(r.config.Server.AllowedOrigins)
}

func (r *Router) createSecurityHeadersMiddleware() *middleware.SecurityHeadersMiddleware {
	if r.isDevEnvironment() {
		return middleware.NewDevelopmentSecurityHeadersMiddleware()
	}
	return middleware.NewDefaultSecurityHeadersMiddleware()
}

func (r *Router) rateLimitConfig() *middleware.RateLimitConfig {
	cfg := middleware.DefaultRateLimitConfig()
	if r.config.RateLimit.RequestsPerMinute > 0 {
		cfg.DefaultLimit = r.config.RateLimit.RequestsPerMinute
		cfg.DefaultWindow = time.Minute
	}
	return &cfg
}

func (r *Router) isDevEnvironment() bool {
	return r.config.Server.Host == "localhost" || r.config.Server.Host == "127.0.0.1"
}

// setupRoutes configures the API routes.
func (r *Router) setupRoutes(orch *orchestrator.Orchestrator, sessions *conversation.Manager, store ports.MetadataStore) {
	healthHandler := handlers.NewHealthHandler(r.config, store)
	r.mux.Get("/health", healthHandler.Handle)
	r.mux.Get("/readiness", healthHandler.HandleReadiness)
	r.mux.Get("/liveness", healthHandler.HandleLiveness)

	queryHandler := handlers.NewQueryHandler(orch, sessions)
	sessionHandler := handlers.NewSessionHandler(sessions)
	evaluationHandler := handlers.NewEvaluationHandler(store)

	r.mux.Route("/api/v1", func(rtr chi.Router) {
		rtr.Get("/health", healthHandler.Handle)
		rtr.Get("/readiness", healthHandler.HandleReadiness)
		rtr.Get("/liveness", healthHandler.HandleLiveness)

		rtr.Post("/query", queryHandler.Handle)

		rtr.Route("/sessions", func(sr chi.Router) {
			sr.Post("/", sessionHandler.Create)
			sr.Get("/{id}", sessionHandler.Get)
		})

		rtr.Route("/evaluations", func(er chi.Router) {
			er.Post("/", evaluationHandler.Create)
			er.Get("/", evaluationHandler.List)
		})
	})

	r.mux.Get("/", r.handleRoot)
	r.mux.NotFound(r.handleNotFound)
	r.mux.MethodNotAllowed(r.handleMethodNotAllowed)
}

func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	info := map[string]interface{}{
		"server":      "clinical-nlq",
		"version":     r.version,
		"api_version": "v1",
		"endpoints": map[string]string{
			"health":      "/health",
			"readiness":   "/readiness",
			"liveness":    "/liveness",
			"query":       "/api/v1/query",
			"sessions":    "/api/v1/sessions",
			"evaluations": "/api/v1/evaluations",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := writeJSON(w, info); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (r *Router) handleNotFound(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)

	errorResp := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "NOT_FOUND",
			"message": "Endpoint not found",
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := writeJSON(w, errorResp); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (r *Router) handleMethodNotAllowed(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)

	errorResp := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "METHOD_NOT_ALLOWED",
			"message": "Method not allowed",
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := writeJSON(w, errorResp); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) error {
	return json.NewEncoder(w).Encode(data)
}

// GetServerConfig returns the server configuration for external access.
func (r *Router) GetServerConfig() *config.Config {
	return r.config
}

// Stop gracefully shuts down router components. The router itself owns no
// background resources; cleanup of its collaborators (session cron,
// vector index, metadata store) is the caller's responsibility.
func (r *Router) Stop(ctx context.Context) error {
	return nil
}
