package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router.
// Passed from main.go so the router can configure CORS and auth from env vars.
type RouterConfig struct {
	// BackendAPIKey is the key that must be provided in X-API-Key or Authorization: Bearer <key>.
	// If empty, auth middleware is skipped (development mode).
	BackendAPIKey string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// CORS: restrict origins when configured, otherwise allow all (dev mode)
	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check — public, no auth required
	r.Get("/health", h.Health)

	// Blob serving — public so previews and thumbnails embed directly
	r.Get("/files/{bucket}/{filename}", h.ServeFile)

	// API routes — protected by API key auth when configured
	r.Route("/v1", func(r chi.Router) {
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}

		r.Post("/projects", h.CreateProject)
		r.Get("/projects/{id}", h.GetProject)

		// Photos
		r.Post("/projects/{id}/photos", h.UploadPhotos)
		r.Delete("/projects/{id}/photos/{photoId}", h.DeletePhoto)
		r.Put("/projects/{id}/photos/reorder", h.ReorderPhotos)
		r.Put("/projects/{id}/photos/duration", h.UpdatePhotoDuration)
		r.Put("/projects/{id}/photos/duration/all", h.UpdateAllPhotoDurations)

		// Music
		r.Post("/projects/{id}/music", h.UploadMusic)
		r.Post("/projects/{id}/sync-to-beats", h.SyncToBeats)

		// Settings
		r.Put("/projects/{id}/settings", h.UpdateSettings)

		// Export
		r.Post("/projects/{id}/export", h.StartExport)
		r.Get("/projects/{id}/export/status", h.ExportStatus)
		r.Get("/projects/{id}/export/download", h.ExportDownload)
	})

	return r
}
