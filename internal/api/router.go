package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/logtags/internal/tagservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events behind the same auth.
func NewRouter(svc *tagservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))
	r.Use(UserMiddleware)

	r.Route("/tags", func(r chi.Router) {
		r.Get("/", h.SearchTags)
		r.Post("/", h.CreateTag)
		r.Get("/suggest", h.Suggest)
		r.Get("/popular", h.Popular)
		r.Get("/by-name/{name}", h.GetTagByName)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetTag)
			r.Patch("/", h.UpdateTag)
			r.Delete("/", h.DeleteTag)
			r.Get("/usage", h.Usage)

			r.Get("/revisions", h.ListRevisions)
			r.Get("/revisions/diff", h.DiffRevisions)
			r.Get("/revisions/{number}", h.GetRevision)

			r.Get("/associations", h.ListAssociations)
			r.Post("/associations", h.CreateAssociation)
			r.Delete("/associations/{target}", h.DeleteAssociation)
			r.Get("/referrers", h.Referrers)
		})
	})

	r.Get("/users/{user}/recent-tags", h.RecentForUser)

	r.Put("/logs/{id}/tags", h.TagLog)
	r.Delete("/logs/{id}/tags", h.UntagLog)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
