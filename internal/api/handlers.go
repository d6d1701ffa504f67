// Package api exposes the pipeline's trigger and status endpoints.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohamedkhairy/news-pipeline/internal/config"
	"github.com/mohamedkhairy/news-pipeline/internal/orchestrator"
	"github.com/mohamedkhairy/news-pipeline/pkg/logger"
)

// PipelineHandler handles the trigger and status endpoints.
type PipelineHandler struct {
	orch *orchestrator.Orchestrator
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(orch *orchestrator.Orchestrator) *PipelineHandler {
	return &PipelineHandler{orch: orch}
}

// NewRouter builds the HTTP router. Trigger endpoints require a bearer
// token when a JWT secret is configured; status, health and metrics are
// always open.
func NewRouter(orch *orchestrator.Orchestrator, cfg config.HTTPConfig) *mux.Router {
	h := NewPipelineHandler(orch)

	r := mux.NewRouter()
	r.Use(mux.MiddlewareFunc(RecoveryMiddleware()))
	r.Use(mux.MiddlewareFunc(LoggingMiddleware()))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/status", h.Status).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	triggers := r.PathPrefix("/").Subrouter()
	if cfg.JWTSecret != "" {
		triggers.Use(mux.MiddlewareFunc(JWTAuthMiddleware(cfg.JWTSecret)))
	}
	triggers.HandleFunc("/collect", h.Collect).Methods(http.MethodPost)
	triggers.HandleFunc("/analyze", h.Analyze).Methods(http.MethodPost)
	triggers.HandleFunc("/archive", h.Archive).Methods(http.MethodPost)

	return r
}

// Collect handles POST /collect: crawl the universe and analyze the intake.
func (h *PipelineHandler) Collect(w http.ResponseWriter, r *http.Request) {
	collected, analyzed, err := h.orch.Collect(r.Context())
	if errors.Is(err, orchestrator.ErrAlreadyRunning) {
		respondWithError(w, http.StatusConflict, "Pipeline already running")
		return
	}
	if err != nil {
		logger.Error("Manual collect failed", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Collect failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"collected": collected,
		"analyzed":  analyzed,
		"message":   "Collection completed",
	})
}

// Analyze handles POST /analyze: drain the analyzer group.
func (h *PipelineHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	analyzed, err := h.orch.Analyze(r.Context())
	if errors.Is(err, orchestrator.ErrAlreadyRunning) {
		respondWithError(w, http.StatusConflict, "Pipeline already running")
		return
	}
	if err != nil {
		logger.Error("Manual analyze failed", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Analyze failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"analyzed": analyzed,
		"message":  "Analysis completed",
	})
}

// Archive handles POST /archive: drain the archiver group.
func (h *PipelineHandler) Archive(w http.ResponseWriter, r *http.Request) {
	archived, err := h.orch.Archive(r.Context())
	if errors.Is(err, orchestrator.ErrAlreadyRunning) {
		respondWithError(w, http.StatusConflict, "Pipeline already running")
		return
	}
	if err != nil {
		logger.Error("Manual archive failed", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Archive failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"archived": archived,
		"message":  "Archive completed",
	})
}

// Status handles GET /status.
func (h *PipelineHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.orch.Status())
}

// Health handles GET /health.
func (h *PipelineHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", logger.ErrorField(err))
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
