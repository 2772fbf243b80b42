package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/bsvdl/internal/api/handler"
	mw "github.com/iconidentify/bsvdl/internal/api/middleware"
	"github.com/iconidentify/bsvdl/internal/metrics"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	processHandler *handler.ProcessHandler,
	healthHandler *handler.HealthHandler,
	uiHandler *handler.UIHandler,
	m *metrics.Metrics,
	requestTimeout time.Duration,
) *chi.Mux {
	if requestTimeout <= 0 {
		requestTimeout = 4 * time.Minute
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //health -> /health)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(m))
	r.Use(mw.Recovery)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(mw.CORS)

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	// Web UI
	r.Get("/", uiHandler.Index)
	r.Get("/favicon.ico", uiHandler.Favicon)

	r.Post("/process", processHandler.Process)

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", healthHandler.Live)

	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	return r
}
