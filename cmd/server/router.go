package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apiMiddleware "github.com/phrazzld/taskrelay/internal/api/middleware"
)

// setupRouter configures the application router with all routes and
// middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	r.Route("/instances/{id}/tasks", func(r chi.Router) {
		r.Post("/", app.taskHandler.Submit)
		r.Get("/", app.taskHandler.List)
	})

	r.Route("/tasks/{id}", func(r chi.Router) {
		r.Get("/", app.taskHandler.Get)
		r.Get("/status", app.taskHandler.GetStatus)
		r.Patch("/", app.taskHandler.Patch)
		r.Post("/cancel", app.taskHandler.Cancel)
		r.Post("/retry", app.taskHandler.Retry)
		r.Post("/review", app.taskHandler.Review)
		r.Delete("/", app.taskHandler.Delete)
	})

	// Live lifecycle events over websocket.
	r.Get("/ws/events", app.hub.ServeHTTP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
