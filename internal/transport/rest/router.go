package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/payfast-itn/internal/itn"
	"github.com/frahmantamala/payfast-itn/internal/transport/middleware"
	"github.com/frahmantamala/payfast-itn/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

type RouterDeps struct {
	DB         *sql.DB
	ITNHandler *itn.Handler
	ITNPath    string
	// TrustForwardedFor lets X-Forwarded-For / X-Real-IP replace the peer
	// address. Only enable behind a proxy that sets them.
	TrustForwardedFor bool
	MetricsHandler    http.Handler
	MetricsPath       string
	Logger            *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, deps RouterDeps) {
	healthHandler := NewHealthHandler(deps.DB)

	// Apply global middleware
	if deps.TrustForwardedFor {
		router.Use(chiMiddleware.RealIP)
	}
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(deps.Logger))
	router.Use(middleware.RecoveryMiddleware(deps.Logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get(swagger.SpecPath, swagger.SpecHandler())
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	if deps.MetricsHandler != nil && deps.MetricsPath != "" {
		router.Handle(deps.MetricsPath, deps.MetricsHandler)
	}

	if deps.ITNHandler != nil {
		path := deps.ITNPath
		if path == "" {
			path = "/itn"
		}
		router.Post(path, deps.ITNHandler.Notify)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)
	})
}
