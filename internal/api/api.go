package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"quantgemini/internal/observability"
	"quantgemini/pkg/quantgemini"
)

// Options configures optional router behaviour.
type Options struct {
	// Logger defaults to the core logger.
	Logger *slog.Logger
	// AllowedOrigins defaults to "*".
	AllowedOrigins []string
	// Metrics enables request metrics and the /metrics endpoint.
	Metrics *observability.Metrics
}

// NewRouter builds the HTTP API router.
func NewRouter(core *quantgemini.Core, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil && core != nil {
		logger = core.Logger()
	}
	if logger == nil {
		logger = slog.Default()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	r.Use(requestLoggingMiddleware(logger))
	r.Use(recoveryLoggingMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	h := &handler{core: core, logger: logger}

	r.Get("/api/health", h.health)

	// Analysis
	r.Post("/api/analyze", h.analyze)
	r.Post("/api/analyze/stream", h.analyzeStream)

	// Recency list and quick picks
	r.Get("/api/recent", h.getRecent)
	r.Delete("/api/recent", h.clearRecent)
	r.Get("/api/suggestions", h.getSuggestions)

	// Stored analyses
	r.Get("/api/analyses/{ticker}", h.getLatestAnalysis)
	r.Get("/api/analyses/{ticker}/history", h.getAnalysisHistory)
	r.Delete("/api/analyses/{ticker}", h.deleteAnalyses)

	// Placeholder chart
	r.Get("/api/chart/{ticker}", h.getChart)

	// Settings
	r.Get("/api/settings", h.getSettings)
	r.Put("/api/settings", h.setSettings)

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	return r
}

type handler struct {
	core   *quantgemini.Core
	logger *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	recordErrorMessage(w, message)
	writeJSON(w, status, map[string]string{"error": message})
}
