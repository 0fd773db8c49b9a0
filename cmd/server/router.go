package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/recall-api/internal/api"
	apiMiddleware "github.com/phrazzld/recall-api/internal/api/middleware"
	"github.com/phrazzld/recall-api/internal/api/shared"
	"github.com/phrazzld/recall-api/internal/domain"
)

// setupRouter creates the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(middleware.Recoverer)

	cardHandler, catalogHandler, changeRequestHandler := app.handlers()
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.RequireRole(domain.RoleClient))
			catalogHandler.Mount(r)
			r.Route("/accounts/me", cardHandler.Mount)
		})

		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.RequireRole(domain.RoleOperator))
			changeRequestHandler.Mount(r)
			cardHandler.MountOperator(r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, api.HealthResponse{Status: "ok"})
	})
	r.Method(http.MethodGet, "/metrics", app.metrics.Handler())

	return r
}
