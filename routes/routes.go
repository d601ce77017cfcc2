package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/inventory-retrieval/app"
	"github.com/upb/inventory-retrieval/handlers"
	"github.com/upb/inventory-retrieval/internal/observability"
	"github.com/upb/inventory-retrieval/middleware"
	"github.com/upb/inventory-retrieval/utils"
)

// SetupRoutes configures all application routes and middleware.
// API routes are mounted only for the services deps carries.
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	timeout := 60 * time.Second
	if deps.Config != nil && deps.Config.Server.RequestTimeout > 0 {
		timeout = deps.Config.Server.RequestTimeout
	}

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.EchoRequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(timeout))
	r.Use(observability.Middleware())

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoints
	var health *handlers.HealthHandler
	if deps.DB != nil {
		health = handlers.NewHealthHandler(deps.DB.DB, deps.Logger)
	} else {
		health = handlers.NewHealthHandler(nil, deps.Logger)
	}
	if deps.RetrievalService != nil {
		collections := deps.RetrievalService.Collections()
		health.WithCheck("collection", func(ctx context.Context) error {
			_, err := collections.Resolve(ctx)
			return err
		})
	}
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.Config == nil || deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if deps.RetrievalService != nil {
			search := handlers.NewSearchHandler(deps.RetrievalService, deps.Logger)
			r.Post("/search/similarity", search.HandleSimilarity)
			r.Post("/search/hybrid", search.HandleHybrid)
			r.Post("/context", search.HandleContext)
		}

		if deps.InventoryService != nil {
			inv := handlers.NewInventoryHandler(deps.InventoryService, deps.Logger)
			r.Post("/inventory/search", inv.HandleSearch)
			r.Post("/inventory", inv.HandleLoad)
		}

		if deps.DocumentService != nil {
			docs := handlers.NewDocumentHandler(deps.DocumentService, deps.Logger)
			r.Post("/documents", docs.HandleAdd)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
