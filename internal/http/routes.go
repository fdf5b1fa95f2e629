package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter registers every endpoint on a chi router wrapped in the CORS
// and request logging middleware.
//
//	GET    /api/images?url=&w=&h=&priority=
//	POST   /api/images/deprioritize?url=
//	DELETE /api/images?url=
//	DELETE /api/images/all
//	GET    /api/stats
//	GET    /healthz
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(h.CORSMiddleware)
	r.Use(h.RequestLoggingMiddleware)
	r.Use(chiMiddleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/images", h.HandleImage)
		r.Delete("/images", h.HandleCancel)
		r.Delete("/images/all", h.HandleCancelAll)
		r.Post("/images/deprioritize", h.HandleDeprioritize)
		r.Get("/stats", h.HandleStats)
	})
	r.Get("/healthz", h.HandleHealthz)

	return r
}
