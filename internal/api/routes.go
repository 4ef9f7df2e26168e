package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"example.com/companion/internal/auth"
)

// Router builds the control API with authentication applied.
func (h *Handler) Router(authn auth.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(authn.Wrap)

	r.Get("/healthz", healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authn.RequireScope(auth.ScopeSyncRead))
			r.Get("/logs", h.listLogs)
			r.Get("/status", h.status)
		})
		r.Group(func(r chi.Router) {
			r.Use(authn.RequireScope(auth.ScopeSyncWrite))
			r.Post("/sync", h.syncNow)
			r.Post("/import", h.runImport)
			r.Delete("/logs", h.clearLogs)
			r.Put("/settings/profile", h.updateProfile)
			r.Put("/settings/interval", h.updateInterval)
			r.Post("/setup", h.setup)
			r.Post("/disconnect", h.disconnect)
		})
	})
	return r
}
