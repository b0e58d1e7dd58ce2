package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/username/tradeclean/src/config"
)

// NewRouter wires the pages, the JSON API, /metrics and the global middleware.
func NewRouter(uploadHandler *UploadHandler, metricsHandler http.Handler, cfg *config.AppConfig) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(RateLimit(limiter))

	r.Get("/", uploadHandler.HandleIndex)
	r.Get("/upload", uploadHandler.HandleUploadPage)
	r.Post("/upload", uploadHandler.HandleUploadHTML)
	r.Post("/delete_files", uploadHandler.HandleDeleteFiles)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", uploadHandler.HandleUploadAPI)
		r.Delete("/uploads", uploadHandler.HandleDeleteAllUploads)
		r.Get("/uploads/{uploadID}", uploadHandler.HandleGetUploadResult)
		r.Get("/uploads/{uploadID}/{artifact}", uploadHandler.HandleDownloadArtifact)
	})

	return r
}
