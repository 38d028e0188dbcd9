// Package api provides HTTP handlers for the Lumina API.
package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/lumina-labs/internal/config"
	"github.com/ashureev/lumina-labs/internal/profile"
	"github.com/ashureev/lumina-labs/internal/scoping"
	"github.com/ashureev/lumina-labs/internal/store"
)

// maxRequestBodySize caps request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler serves the scoping, generation, course, and profile endpoints.
type Handler struct {
	repo        store.Repository
	scoping     *scoping.Manager
	profiles    *profile.Service
	rateLimiter *RateLimiter
	cfg         *config.Config
}

// NewHandler creates a new Handler with its dependencies.
func NewHandler(repo store.Repository, sm *scoping.Manager, ps *profile.Service, cfg *config.Config) *Handler {
	return &Handler{
		repo:        repo,
		scoping:     sm,
		profiles:    ps,
		rateLimiter: NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		cfg:         cfg,
	}
}

// RegisterRoutes registers all authenticated API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/scoping", func(r chi.Router) {
		r.Post("/turn", h.HandleScopingTurn)
		r.Post("/reset", h.HandleScopingReset)
		r.Post("/variant", h.HandleScopingVariant)
		r.Get("/transcript", h.HandleScopingTranscript)
	})

	r.Post("/api/generate", h.HandleGenerate)
	r.Get("/api/generation/status", h.HandleGenerationStatus)
	r.Get("/ws/generation", h.HandleGenerationFeed)

	r.Route("/api/courses", func(r chi.Router) {
		r.Get("/", h.HandleListCourses)
		r.Get("/{courseID}", h.HandleGetCourse)
	})

	r.Route("/api/profile", func(r chi.Router) {
		r.Get("/", h.HandleGetProfile)
		r.Put("/", h.HandlePutProfile)
		r.Get("/presets", h.HandleProfilePresets)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// isDevelopment returns true if running in development mode.
func (h *Handler) isDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return h.cfg.FrontendURL == "" ||
		strings.Contains(h.cfg.FrontendURL, "localhost") ||
		strings.Contains(h.cfg.FrontendURL, "127.0.0.1")
}
