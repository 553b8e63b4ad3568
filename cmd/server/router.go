package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/dayboard/internal/api"
	apiMiddleware "github.com/phrazzld/dayboard/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	api.Routes(r,
		apiMiddleware.NewAuthMiddleware(app.jwtService, app.config.Auth.IsElevated),
		api.NewBoardHandler(app.boards, app.reconciler, app.closer, app.policy, app.logger),
		api.NewMigrationHandler(app.executor, app.executor.Planner(), app.policy, app.logger),
	)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
