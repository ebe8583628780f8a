package api

import (
	"time"

	"github.com/starford/logtags/internal/models"
	"github.com/starford/logtags/internal/search"
)

// CreateTagRequest is the request body for creating a tag.
type CreateTagRequest struct {
	Name        string          `json:"name" example:"Fly fishing"`
	Description string          `json:"description" example:"Rivers and lakes, see #{trout}"`
	Metadata    models.Metadata `json:"metadata,omitempty"`
}

// UpdateTagRequest is a partial update; omitted fields are left unchanged.
type UpdateTagRequest struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Metadata    models.Metadata `json:"metadata,omitempty"`
}

// CreateAssociationRequest adds an explicit edge.
type CreateAssociationRequest struct {
	TargetID string `json:"target_id"`
}

// TagLogRequest links a log to tags. UserID defaults to the acting user and
// CreatedAt to now.
type TagLogRequest struct {
	UserID    string     `json:"user_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Content   string     `json:"content"`
	Tags      []string   `json:"tags"`
}

// TagListResponse is a page of tags.
type TagListResponse = search.Page

// TagsWithUsageResponse wraps ranked tags with usage figures.
type TagsWithUsageResponse struct {
	Tags []models.TagWithUsage `json:"tags"`
}

// AssociationsResponse wraps associated tags.
type AssociationsResponse struct {
	Associations []models.AssociatedTag `json:"associations"`
}

// RevisionsResponse wraps a tag's history.
type RevisionsResponse struct {
	Revisions []*models.TagRevision `json:"revisions"`
}

// LogTagsResponse lists the tags a log is linked to.
type LogTagsResponse struct {
	LogID string        `json:"log_id"`
	Tags  []*models.Tag `json:"tags"`
}
