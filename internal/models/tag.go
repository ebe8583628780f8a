// Package models defines the domain types for the tag engine.
package models

import "time"

// Metadata is the open key/value map attached to a tag. Stored as a JSON object.
type Metadata map[string]any

// Tag is a named, user-authored topic.
type Tag struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Metadata    Metadata  `json:"metadata"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TagAssociation is a directed, ordered edge TagID -> AssociatedTagID.
type TagAssociation struct {
	TagID            string    `json:"tag_id"`
	AssociatedTagID  string    `json:"associated_tag_id"`
	AssociationOrder int       `json:"association_order"`
	CreatedAt        time.Time `json:"created_at"`
}

// AssociatedTag is an edge joined with the tag on its far end.
type AssociatedTag struct {
	Tag              *Tag      `json:"tag"`
	AssociationOrder int       `json:"association_order"`
	AssociatedAt     time.Time `json:"associated_at"`
}

// TagRevision is an immutable full-state snapshot of a tag.
type TagRevision struct {
	ID             string    `json:"id"`
	TagID          string    `json:"tag_id"`
	RevisionNumber int       `json:"revision_number"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Metadata       Metadata  `json:"metadata"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// TagUsageStats is derived from log links on demand; it is never stored.
type TagUsageStats struct {
	UsageCount int        `json:"usage_count"`
	LastUsed   *time.Time `json:"last_used"`
}

// TagWithUsage pairs a tag with its usage statistics.
type TagWithUsage struct {
	Tag   *Tag          `json:"tag"`
	Usage TagUsageStats `json:"usage"`
}

// LogRef is the slice of a log entry the tag engine needs: who wrote it and when.
type LogRef struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TagSource links an imported tag file to the tag it produced.
type TagSource struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	TagID    string `json:"tag_id"`
}

// FileMetadata describes one tag file on disk.
type FileMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
