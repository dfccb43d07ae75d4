package server

import (
	"net/http"

	"github.com/cloo-solutions/deskrag/internal/api"
	"github.com/cloo-solutions/deskrag/internal/api/handlers"
	"github.com/cloo-solutions/deskrag/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// multipartOverhead leaves room for multipart boundaries and headers on top
// of the largest accepted file.
const multipartOverhead int64 = 1 << 20

type RouterConfig struct {
	DocumentHandler *handlers.DocumentHandler
	QueryHandler    *handlers.QueryHandler
	// MaxUploadBytes is the largest accepted file; request bodies may exceed
	// it by multipartOverhead.
	MaxUploadBytes int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxUploadBytes + multipartOverhead

	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", cfg.DocumentHandler.Upload)
		r.Get("/", cfg.DocumentHandler.List)
		r.Post("/clear", cfg.DocumentHandler.Clear)
		r.Delete("/{id}", cfg.DocumentHandler.Delete)
	})

	r.Post("/query", cfg.QueryHandler.Query)

	return r
}
