package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/plastinin/pagesolver/internal/adapter/http/handler"
	httpmiddleware "github.com/plastinin/pagesolver/internal/adapter/http/middleware"
	"go.uber.org/zap"
)

// NewRouter создаёт и настраивает HTTP роутер
func NewRouter(
	jobHandler *handler.JobHandler,
	healthHandler *handler.HealthHandler,
	logger *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json"))

	// Health check (вне версионирования API)
	r.Get("/health", healthHandler.Check)

	r.Route("/api/v1/jobs", func(r chi.Router) {
		r.Post("/", jobHandler.Create)
		r.Get("/", jobHandler.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", jobHandler.GetByID)
			r.Delete("/", jobHandler.Delete)
			r.Get("/pages", jobHandler.Pages)
			r.Post("/cancel", jobHandler.Cancel)
		})
	})

	return r
}
