// Package tagservice is the library contract of the tag engine. It sequences
// tag writes, revision recording and association reconciliation inside one
// store transaction, then refreshes the search index and publishes events.
package tagservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/logtags/internal/apperr"
	"github.com/starford/logtags/internal/id"
	"github.com/starford/logtags/internal/models"
	"github.com/starford/logtags/internal/parser"
	"github.com/starford/logtags/internal/reconcile"
	"github.com/starford/logtags/internal/search"
	"github.com/starford/logtags/internal/store"
)

// Event kinds passed to a Publisher.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// Publisher receives tag change notifications after a write commits.
type Publisher interface {
	PublishTagEvent(kind, tagID string)
}

// Service coordinates the store, the reconciler and the search engine.
type Service struct {
	db         *store.DB
	engine     *search.Engine
	reconciler *reconcile.Reconciler
	logger     *slog.Logger
	now        func() time.Time
	events     Publisher
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets the receiver of tag events.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// New creates a tag service.
func New(db *store.DB, engine *search.Engine, opts ...Option) *Service {
	s := &Service{
		db:     db,
		engine: engine,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reconciler = reconcile.New(s.logger, s.timestamp)
	return s
}

// timestamp returns the current time in UTC.
func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}

// writeResult collects what a transaction changed, for post-commit work.
type writeResult struct {
	created []*models.Tag
	updated []*models.Tag
}

func (w *writeResult) touchedIDs() []string {
	ids := make([]string, 0, len(w.created)+len(w.updated))
	for _, t := range w.created {
		ids = append(ids, t.ID)
	}
	for _, t := range w.updated {
		ids = append(ids, t.ID)
	}
	return ids
}

// afterCommit refreshes the index and publishes events for a committed write.
// The refresh runs even when ctx is already canceled.
func (s *Service) afterCommit(ctx context.Context, w *writeResult) {
	s.engine.Refresh(context.WithoutCancel(ctx), w.touchedIDs()...)
	if s.events == nil {
		return
	}
	for _, t := range w.created {
		s.events.PublishTagEvent(EventCreated, t.ID)
	}
	for _, t := range w.updated {
		s.events.PublishTagEvent(EventUpdated, t.ID)
	}
}

// txStore binds the reconciler to the running transaction.
type txStore struct {
	*store.Queries
	svc *Service
	res *writeResult
}

func (t txStore) CreateImplicitTag(ctx context.Context, name, createdBy string) (*models.Tag, error) {
	tag, err := t.svc.insertTag(ctx, t.Queries, name, "", nil, createdBy)
	if err != nil {
		return nil, err
	}
	t.res.created = append(t.res.created, tag)
	return tag, nil
}

// insertTag writes a new tag row and its revision 0.
func (s *Service) insertTag(ctx context.Context, q *store.Queries, name, description string, meta models.Metadata, createdBy string) (*models.Tag, error) {
	tagID, err := id.NewTag()
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = models.Metadata{}
	}
	now := s.timestamp()
	tag := &models.Tag{
		ID:          tagID,
		Name:        name,
		Description: description,
		Metadata:    meta,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.CreateTag(ctx, tag); err != nil {
		return nil, err
	}
	if err := s.recordRevision(ctx, q, tag, createdBy); err != nil {
		return nil, err
	}
	return tag, nil
}

// recordRevision appends a full snapshot of tag. Errors abort the enclosing
// transaction.
func (s *Service) recordRevision(ctx context.Context, q *store.Queries, tag *models.Tag, author string) error {
	n, err := q.NextRevisionNumber(ctx, tag.ID)
	if err != nil {
		return err
	}
	revID, err := id.NewRevision()
	if err != nil {
		return err
	}
	return q.InsertRevision(ctx, &models.TagRevision{
		ID:             revID,
		TagID:          tag.ID,
		RevisionNumber: n,
		Name:           tag.Name,
		Description:    tag.Description,
		Metadata:       tag.Metadata,
		CreatedBy:      author,
		CreatedAt:      tag.UpdatedAt,
	})
}

// reconcileTag replaces tag's outgoing edges with those named in its description.
func (s *Service) reconcileTag(ctx context.Context, q *store.Queries, tag *models.Tag, actingUser string, res *writeResult) error {
	names := s.hashtagNames(tag.Description)
	_, err := s.reconciler.Reconcile(ctx, txStore{Queries: q, svc: s, res: res}, tag.ID, names, actingUser)
	return err
}

// hashtagNames extracts the hashtags of text that are usable as tag names.
func (s *Service) hashtagNames(text string) []string {
	all := parser.Hashtags(text)
	names := all[:0:0]
	for _, n := range all {
		if !validName(n) {
			s.logger.Debug("ignoring hashtag that is not a valid tag name", slog.Int("length", len(n)))
			continue
		}
		names = append(names, n)
	}
	return names
}

// CreateTag creates a tag, records revision 0 and derives its associations.
// A taken name fails with apperr.ErrDuplicateName.
func (s *Service) CreateTag(ctx context.Context, in CreateTagInput) (*models.Tag, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var (
		res writeResult
		tag *models.Tag
	)
	err := s.db.InTx(ctx, func(q *store.Queries) error {
		var err error
		tag, err = s.insertTag(ctx, q, in.Name, in.Description, in.Metadata, in.CreatedBy)
		if err != nil {
			return err
		}
		res.created = append(res.created, tag)
		return s.reconcileTag(ctx, q, tag, in.CreatedBy, &res)
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, &res)
	s.logger.Info("tag created", slog.String("tag_id", tag.ID), slog.String("name", tag.Name))
	return tag, nil
}

// UpdateTag applies patch to the tag, records a revision and re-derives its
// associations. updated_at is refreshed even when no value changes.
func (s *Service) UpdateTag(ctx context.Context, tagID string, patch TagPatch, actingUser string) (*models.Tag, error) {
	if patch.IsEmpty() {
		return nil, apperr.ErrNoFieldsProvided
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var (
		res writeResult
		tag *models.Tag
	)
	err := s.db.InTx(ctx, func(q *store.Queries) error {
		var err error
		tag, err = q.GetTagByID(ctx, tagID)
		if err != nil {
			return err
		}
		if tag == nil {
			return apperr.ErrNotFound
		}
		patch.apply(tag)
		tag.UpdatedAt = s.timestamp()

		if err := q.UpdateTag(ctx, tag); err != nil {
			return err
		}
		if err := s.recordRevision(ctx, q, tag, actingUser); err != nil {
			return err
		}
		res.updated = append(res.updated, tag)
		return s.reconcileTag(ctx, q, tag, actingUser, &res)
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, &res)
	return tag, nil
}

// GetTagByID returns the tag, or nil when it does not exist.
func (s *Service) GetTagByID(ctx context.Context, tagID string) (*models.Tag, error) {
	return s.db.GetTagByID(ctx, tagID)
}

// GetTagByName returns the tag with the exact name, or nil.
func (s *Service) GetTagByName(ctx context.Context, name string) (*models.Tag, error) {
	return s.db.GetTagByName(ctx, name)
}

// DeleteTag removes the tag, every edge touching it and its log links.
// Revisions are kept. Deleting an unknown id is not an error.
func (s *Service) DeleteTag(ctx context.Context, tagID string) error {
	var deleted bool
	err := s.db.InTx(ctx, func(q *store.Queries) error {
		var err error
		deleted, err = q.DeleteTag(ctx, tagID)
		return err
	})
	if err != nil {
		return err
	}
	if !deleted {
		return nil
	}

	s.engine.Refresh(context.WithoutCancel(ctx), tagID)
	if s.events != nil {
		s.events.PublishTagEvent(EventDeleted, tagID)
	}
	s.logger.Info("tag deleted", slog.String("tag_id", tagID))
	return nil
}

// SearchTags runs a paginated tag search.
func (s *Service) SearchTags(ctx context.Context, q search.Query) (search.Page, error) {
	return s.engine.Search(ctx, q)
}

// GetTagSuggestions ranks tags matching prefix by usage.
func (s *Service) GetTagSuggestions(ctx context.Context, prefix string, limit int) ([]models.TagWithUsage, error) {
	return s.engine.Suggest(ctx, prefix, limit)
}

// GetTagUsageStats derives usage from log links. Unknown ids yield zero usage.
func (s *Service) GetTagUsageStats(ctx context.Context, tagID string) (models.TagUsageStats, error) {
	return s.db.UsageStats(ctx, tagID)
}

// GetPopularTags returns the most used tags.
func (s *Service) GetPopularTags(ctx context.Context, limit int) ([]models.TagWithUsage, error) {
	return s.db.PopularTags(ctx, search.NormalizeLimit(limit))
}

// GetRecentTagsForUser returns the tags userID used most recently.
func (s *Service) GetRecentTagsForUser(ctx context.Context, userID string, limit int) ([]models.TagWithUsage, error) {
	return s.db.RecentTagsForUser(ctx, userID, search.NormalizeLimit(limit))
}

// RebuildSearchIndex reindexes every tag.
func (s *Service) RebuildSearchIndex(ctx context.Context) (int, error) {
	n, err := s.engine.Rebuild(ctx)
	if err != nil {
		return 0, fmt.Errorf("tagservice: rebuild index: %w", err)
	}
	return n, nil
}
