package server

import (
	"context"
	"net/http"
	"time"

	"github.com/dtorcivia/trainercal/internal/response"
	"github.com/dtorcivia/trainercal/internal/server/middleware"
)

// setupRoutes registers all HTTP routes.
func (s *Server) setupRoutes() {
	// Health check (no auth required)
	s.router.HandleFunc("GET /health", s.handleHealth)

	// OAuth redirects arrive from the provider without the API token.
	s.apiHandler.RegisterPublicRoutes(s.router)

	apiMux := http.NewServeMux()
	s.apiHandler.RegisterRoutes(apiMux)

	apiHandler := middleware.TokenAuth(s.tokenHasher, s.config.Auth.APITokenHash, s.rateLimiter)(apiMux)
	s.router.Handle("/api/", apiHandler)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		response.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  "database unavailable",
		})
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": Version,
		"providers": map[string]bool{
			"google":  s.googleAuth.IsConfigured(),
			"outlook": s.outlookAuth.IsConfigured(),
		},
	})
}
