package tagservice

import (
	"context"
	"reflect"
	"sort"

	"github.com/starford/logtags/internal/apperr"
	"github.com/starford/logtags/internal/models"
)

// FieldChange is one differing field between two revisions. Metadata keys are
// reported individually as "metadata.<key>".
type FieldChange struct {
	Field string `json:"field"`
	From  any    `json:"from"`
	To    any    `json:"to"`
}

// RevisionDiff compares two revisions of a tag.
type RevisionDiff struct {
	TagID   string        `json:"tag_id"`
	From    int           `json:"from"`
	To      int           `json:"to"`
	Changes []FieldChange `json:"changes"`
}

// ListTagRevisions returns a tag's history, oldest first. History outlives
// the tag, so this works for deleted ids too.
func (s *Service) ListTagRevisions(ctx context.Context, tagID string) ([]*models.TagRevision, error) {
	return s.db.ListRevisions(ctx, tagID)
}

// GetTagRevision returns one revision, or nil when it does not exist.
func (s *Service) GetTagRevision(ctx context.Context, tagID string, number int) (*models.TagRevision, error) {
	return s.db.GetRevision(ctx, tagID, number)
}

// DiffTagRevisions compares revision from with revision to.
func (s *Service) DiffTagRevisions(ctx context.Context, tagID string, from, to int) (*RevisionDiff, error) {
	a, err := s.db.GetRevision(ctx, tagID, from)
	if err != nil {
		return nil, err
	}
	b, err := s.db.GetRevision(ctx, tagID, to)
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, apperr.ErrNotFound
	}
	return &RevisionDiff{TagID: tagID, From: from, To: to, Changes: diffRevisions(a, b)}, nil
}

func diffRevisions(a, b *models.TagRevision) []FieldChange {
	changes := []FieldChange{}
	if a.Name != b.Name {
		changes = append(changes, FieldChange{Field: "name", From: a.Name, To: b.Name})
	}
	if a.Description != b.Description {
		changes = append(changes, FieldChange{Field: "description", From: a.Description, To: b.Description})
	}

	keys := make(map[string]struct{}, len(a.Metadata)+len(b.Metadata))
	for k := range a.Metadata {
		keys[k] = struct{}{}
	}
	for k := range b.Metadata {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		av, aok := a.Metadata[k]
		bv, bok := b.Metadata[k]
		if aok == bok && reflect.DeepEqual(av, bv) {
			continue
		}
		changes = append(changes, FieldChange{Field: "metadata." + k, From: av, To: bv})
	}
	return changes
}
