package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/logtags/internal/models"
	"github.com/starford/logtags/internal/search"
	"github.com/starford/logtags/internal/store"
	"github.com/starford/logtags/internal/tagservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *tagservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *tagservice.Service) *Handler {
	return &Handler{svc: svc}
}

// pathParam returns a decoded URL parameter. Encoded slashes are allowed.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// SearchTags handles GET /api/tags.
//
//	@Summary		Search tags by name and description
//	@Tags			tags
//	@Produce		json
//	@Param			q		query		string	false	"Search text; empty lists all tags"
//	@Param			limit	query		int		false	"Page size (default 20, max 100)"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	TagListResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) SearchTags(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.SearchTags(r.Context(), search.Query{
		Text:   r.URL.Query().Get("q"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	})
	if err != nil {
		writeServiceError(w, "search tags", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// CreateTag handles POST /api/tags.
//
//	@Summary		Create a tag
//	@Tags			tags
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateTagRequest	true	"Tag to create"
//	@Success		201		{object}	models.Tag
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags [post]
func (h *Handler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req CreateTagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tag, err := h.svc.CreateTag(r.Context(), tagservice.CreateTagInput{
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
		CreatedBy:   ActingUser(r),
	})
	if err != nil {
		writeServiceError(w, "create tag", err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

// Suggest handles GET /api/tags/suggest.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.GetTagSuggestions(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit"))
	if err != nil {
		writeServiceError(w, "suggest tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagsWithUsageResponse{Tags: tags})
}

// Popular handles GET /api/tags/popular.
func (h *Handler) Popular(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.GetPopularTags(r.Context(), queryInt(r, "limit"))
	if err != nil {
		writeServiceError(w, "popular tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagsWithUsageResponse{Tags: tags})
}

// RecentForUser handles GET /api/users/{user}/recent-tags.
func (h *Handler) RecentForUser(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.GetRecentTagsForUser(r.Context(), pathParam(r, "user"), queryInt(r, "limit"))
	if err != nil {
		writeServiceError(w, "recent tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagsWithUsageResponse{Tags: tags})
}

// GetTagByName handles GET /api/tags/by-name/{name}.
func (h *Handler) GetTagByName(w http.ResponseWriter, r *http.Request) {
	tag, err := h.svc.GetTagByName(r.Context(), pathParam(r, "name"))
	if err != nil {
		writeServiceError(w, "get tag by name", err)
		return
	}
	if tag == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// GetTag handles GET /api/tags/{id}.
//
//	@Summary		Get a tag by id
//	@Tags			tags
//	@Produce		json
//	@Param			id	path		string	true	"Tag id"
//	@Success		200	{object}	models.Tag
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags/{id} [get]
func (h *Handler) GetTag(w http.ResponseWriter, r *http.Request) {
	tag, err := h.svc.GetTagByID(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, "get tag", err)
		return
	}
	if tag == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// UpdateTag handles PATCH /api/tags/{id}.
//
//	@Summary		Partially update a tag
//	@Description	Records a revision and re-derives associations from the description.
//	@Tags			tags
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Tag id"
//	@Param			body	body		UpdateTagRequest	true	"Fields to change"
//	@Success		200		{object}	models.Tag
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags/{id} [patch]
func (h *Handler) UpdateTag(w http.ResponseWriter, r *http.Request) {
	var req UpdateTagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tag, err := h.svc.UpdateTag(r.Context(), pathParam(r, "id"), tagservice.TagPatch{
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
	}, ActingUser(r))
	if err != nil {
		writeServiceError(w, "update tag", err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// DeleteTag handles DELETE /api/tags/{id}.
func (h *Handler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTag(r.Context(), pathParam(r, "id")); err != nil {
		writeServiceError(w, "delete tag", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Usage handles GET /api/tags/{id}/usage.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetTagUsageStats(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, "usage stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListRevisions handles GET /api/tags/{id}/revisions.
func (h *Handler) ListRevisions(w http.ResponseWriter, r *http.Request) {
	revs, err := h.svc.ListTagRevisions(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, "list revisions", err)
		return
	}
	writeJSON(w, http.StatusOK, RevisionsResponse{Revisions: revs})
}

// GetRevision handles GET /api/tags/{id}/revisions/{number}.
func (h *Handler) GetRevision(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("revision number must be a non-negative integer"))
		return
	}
	rev, err := h.svc.GetTagRevision(r.Context(), pathParam(r, "id"), n)
	if err != nil {
		writeServiceError(w, "get revision", err)
		return
	}
	if rev == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

// DiffRevisions handles GET /api/tags/{id}/revisions/diff?from=&to=.
func (h *Handler) DiffRevisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, errFrom := strconv.Atoi(q.Get("from"))
	to, errTo := strconv.Atoi(q.Get("to"))
	if errFrom != nil || errTo != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required integers"))
		return
	}
	diff, err := h.svc.DiffTagRevisions(r.Context(), pathParam(r, "id"), from, to)
	if err != nil {
		writeServiceError(w, "diff revisions", err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

// ListAssociations handles GET /api/tags/{id}/associations?sort=order|recent.
func (h *Handler) ListAssociations(w http.ResponseWriter, r *http.Request) {
	sort := store.AssociationSort(r.URL.Query().Get("sort"))
	assoc, err := h.svc.GetTagAssociations(r.Context(), pathParam(r, "id"), sort)
	if err != nil {
		writeServiceError(w, "list associations", err)
		return
	}
	writeJSON(w, http.StatusOK, AssociationsResponse{Associations: assoc})
}

// CreateAssociation handles POST /api/tags/{id}/associations.
func (h *Handler) CreateAssociation(w http.ResponseWriter, r *http.Request) {
	var req CreateAssociationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TargetID) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("target_id is required"))
		return
	}
	edge, err := h.svc.CreateTagAssociation(r.Context(), pathParam(r, "id"), req.TargetID, ActingUser(r))
	if err != nil {
		writeServiceError(w, "create association", err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

// DeleteAssociation handles DELETE /api/tags/{id}/associations/{target}.
func (h *Handler) DeleteAssociation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveTagAssociation(r.Context(), pathParam(r, "id"), pathParam(r, "target")); err != nil {
		writeServiceError(w, "delete association", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Referrers handles GET /api/tags/{id}/referrers.
func (h *Handler) Referrers(w http.ResponseWriter, r *http.Request) {
	refs, err := h.svc.GetRecentReferringTags(r.Context(), pathParam(r, "id"), queryInt(r, "limit"))
	if err != nil {
		writeServiceError(w, "referring tags", err)
		return
	}
	writeJSON(w, http.StatusOK, AssociationsResponse{Associations: refs})
}

// TagLog handles PUT /api/logs/{id}/tags.
func (h *Handler) TagLog(w http.ResponseWriter, r *http.Request) {
	var req TagLogRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ref := models.LogRef{ID: pathParam(r, "id"), UserID: req.UserID}
	if ref.UserID == "" {
		ref.UserID = ActingUser(r)
	}
	if req.CreatedAt != nil {
		ref.CreatedAt = *req.CreatedAt
	}
	tags, err := h.svc.TagLog(r.Context(), ref, req.Content, req.Tags)
	if err != nil {
		writeServiceError(w, "tag log", err)
		return
	}
	writeJSON(w, http.StatusOK, LogTagsResponse{LogID: ref.ID, Tags: tags})
}

// UntagLog handles DELETE /api/logs/{id}/tags.
func (h *Handler) UntagLog(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.UntagLog(r.Context(), pathParam(r, "id")); err != nil {
		writeServiceError(w, "untag log", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
