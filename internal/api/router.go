package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/memewatch/internal/memeservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *memeservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Catalog.
	r.Get("/catalog", h.Catalog)
	r.Post("/catalog/refresh", h.RefreshCatalog)
	r.Get("/catalog/selection", h.GetSelection)
	r.Put("/catalog/selection", h.PutSelection)
	r.Get("/catalog/{id}", h.CatalogEntry)

	// Ad-hoc scoring.
	r.Post("/scan", h.Scan)

	// Page sessions.
	r.Get("/pages", h.ListPages)
	r.Post("/pages", h.OpenPage)
	r.Route("/pages/{id}", func(r chi.Router) {
		r.Get("/", h.GetPage)
		r.Delete("/", h.ClosePage)
		r.Put("/snapshot", h.ReplaceSnapshot)
		r.Post("/mutations", h.Mutations)
		r.Post("/inputs", h.Input)
		r.Post("/visibility", h.Visibility)
		r.Post("/start", h.StartPage)
		r.Post("/stop", h.StopPage)
		r.Post("/scan", h.ScanPage)
	})

	// Stats.
	r.Get("/stats", h.Stats)
	r.Get("/stats/recent", h.RecentDetections)

	// Config.
	r.Get("/config", h.GetConfig)
	r.Put("/config/detection", h.UpdateDetectionConfig)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
