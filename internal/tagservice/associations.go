package tagservice

import (
	"context"
	"log/slog"

	"github.com/starford/logtags/internal/apperr"
	"github.com/starford/logtags/internal/models"
	"github.com/starford/logtags/internal/search"
	"github.com/starford/logtags/internal/store"
)

// CreateTagAssociation adds an explicit edge tagID -> targetID after the
// tag's existing edges. It fails with apperr.ErrSelfAssociation,
// apperr.ErrNotFound when either tag is missing, or apperr.ErrAlreadyExists.
//
// Explicit edges live in the same set as derived ones, so the next update of
// tagID replaces them.
func (s *Service) CreateTagAssociation(ctx context.Context, tagID, targetID, actingUser string) (*models.TagAssociation, error) {
	if tagID == targetID {
		return nil, apperr.ErrSelfAssociation
	}

	var edge models.TagAssociation
	err := s.db.InTx(ctx, func(q *store.Queries) error {
		for _, tid := range []string{tagID, targetID} {
			t, err := q.GetTagByID(ctx, tid)
			if err != nil {
				return err
			}
			if t == nil {
				return apperr.ErrNotFound
			}
		}
		maxOrder, err := q.MaxAssociationOrder(ctx, tagID)
		if err != nil {
			return err
		}
		edge = models.TagAssociation{
			TagID:            tagID,
			AssociatedTagID:  targetID,
			AssociationOrder: maxOrder + 1,
			CreatedAt:        s.timestamp(),
		}
		return q.InsertAssociation(ctx, edge)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tag association created",
		slog.String("tag_id", tagID),
		slog.String("associated_tag_id", targetID),
		slog.String("user", actingUser),
	)
	if s.events != nil {
		s.events.PublishTagEvent(EventUpdated, tagID)
	}
	return &edge, nil
}

// RemoveTagAssociation deletes the edge tagID -> targetID if present.
func (s *Service) RemoveTagAssociation(ctx context.Context, tagID, targetID string) error {
	if err := s.db.DeleteAssociation(ctx, tagID, targetID); err != nil {
		return err
	}
	if s.events != nil {
		s.events.PublishTagEvent(EventUpdated, tagID)
	}
	return nil
}

// GetTagAssociations lists the tags tagID points to. An empty sort means
// store.SortByOrder.
func (s *Service) GetTagAssociations(ctx context.Context, tagID string, sort store.AssociationSort) ([]models.AssociatedTag, error) {
	switch sort {
	case "":
		sort = store.SortByOrder
	case store.SortByOrder, store.SortByRecent:
	default:
		return nil, apperr.ErrInvalidInput
	}
	return s.db.ListAssociations(ctx, tagID, sort)
}

// GetRecentReferringTags returns the tags pointing at tagID, newest edge first.
func (s *Service) GetRecentReferringTags(ctx context.Context, tagID string, limit int) ([]models.AssociatedTag, error) {
	return s.db.ListReferringTags(ctx, tagID, search.NormalizeLimit(limit))
}
