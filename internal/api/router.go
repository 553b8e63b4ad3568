package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/dayboard/internal/api/middleware"
)

// Routes registers the authenticated /api routes on r.
func Routes(r chi.Router, auth *middleware.AuthMiddleware, boards *BoardHandler, migrations *MigrationHandler) {
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Get("/boards/today", boards.GetToday)
		r.Get("/boards", boards.ListBoards)
		r.Get("/boards/{id}/tasks", boards.GetBoardTasks)
		r.Post("/boards/{id}/tasks", boards.CreateTask)

		r.Patch("/tasks/{id}/status", boards.TransitionTask)
		r.Post("/tasks/{id}/reorder", boards.ReorderTask)
		r.Get("/tasks/{id}/history", boards.TaskHistory)

		r.Post("/migrations/check", migrations.Check)
		r.Get("/migrations/pending", migrations.Pending)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireElevated)
			r.Post("/migrations/run", migrations.Run)
			r.Post("/boards/close-past", boards.ClosePast)
		})
	})
}
