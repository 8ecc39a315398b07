package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Harvey-AU/knowledge-crawler/internal/classify"
	"github.com/Harvey-AU/knowledge-crawler/internal/jobs"
)

// Version is the current API version (can be set via ldflags at build time)
var Version = "0.1.0"

const serviceName = "knowledge-crawler"

// KnowledgeBaseService is the job service surface the API drives
type KnowledgeBaseService interface {
	Create(ctx context.Context, req jobs.CreateRequest) (*jobs.KnowledgeBase, error)
	AddURLs(ctx context.Context, name string, urls []string) ([]string, error)
	List(ctx context.Context) ([]jobs.KnowledgeBase, error)
	Get(ctx context.Context, name string) (*jobs.KnowledgeBase, error)
	Status() jobs.StatusReport
}

// Predictor estimates crawl size for a site
type Predictor interface {
	Predict(ctx context.Context, rawURL string, depth int) (*classify.Prediction, error)
}

// HealthChecker reports storage reachability
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for API handlers
type Handler struct {
	Service   KnowledgeBaseService
	Predictor Predictor
	DB        HealthChecker
}

// NewHandler creates a new API handler with dependencies
func NewHandler(service KnowledgeBaseService, predictor Predictor, database HealthChecker) *Handler {
	return &Handler{
		Service:   service,
		Predictor: predictor,
		DB:        database,
	}
}

// SetupRoutes configures all API routes
func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/health/db", h.DatabaseHealthCheck)

	mux.HandleFunc("/v1/knowledge-bases", h.KnowledgeBasesHandler)
	mux.HandleFunc("/v1/knowledge-bases/", h.KnowledgeBaseHandler) // /v1/knowledge-bases/{name}[/urls]
	mux.HandleFunc("/v1/status", h.StatusHandler)
	mux.HandleFunc("/v1/predict", h.PredictHandler)
}

// HealthCheck handles basic health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	WriteHealthy(w, r, serviceName, Version)
}

// DatabaseHealthCheck handles database health check requests
func (h *Handler) DatabaseHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	if h.DB == nil {
		WriteUnhealthy(w, r, "database", fmt.Errorf("database connection not configured"))
		return
	}

	if err := h.DB.Ping(r.Context()); err != nil {
		WriteUnhealthy(w, r, "database", err)
		return
	}

	WriteHealthy(w, r, "database", "")
}

// StatusHandler reports progress of the active or most recent crawl
func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	WriteSuccess(w, r, h.Service.Status(), "")
}
