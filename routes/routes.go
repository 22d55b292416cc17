package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/report-gate/app"
	"github.com/upb/report-gate/config"
	"github.com/upb/report-gate/handlers"
	gatemiddleware "github.com/upb/report-gate/middleware"
	"github.com/upb/report-gate/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(gatemiddleware.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "WWW-Authenticate"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// The gate decides per path; requests outside the secured prefix pass through
	r.Use(deps.Gate.Handler)

	health := handlers.NewHealthHandler(deps.SQLDB(), deps.Audit, deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)
	r.Get("/public/health", health.HandleHealth)

	me := handlers.NewMeHandler(deps.Logger)
	r.Route(config.NormalizeSecuredPath(deps.Config.Auth.SecuredPath), func(r chi.Router) {
		r.Get("/me", me.HandleMe)

		if deps.AuditLogs != nil {
			auditHandler := handlers.NewAuditHandler(deps.AuditLogs, deps.Logger)
			r.Get("/audit/events", auditHandler.HandleList)
		}
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
