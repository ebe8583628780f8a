// Package reconcile derives a tag's outgoing associations from the hashtags in
// its description.
//
// The work is split in two: Plan is a pure function from resolved hashtag
// targets to the edge set, and Reconciler applies that edge set to a Store,
// resolving or implicitly creating the named tags first.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/logtags/internal/models"
)

// Target is one extracted hashtag name and the tag it resolved to.
type Target struct {
	Name  string
	TagID string
}

// Edge is a planned outgoing association.
type Edge struct {
	TargetID string
	Order    int
}

// Plan returns the outgoing edges of tagID for targets given in extraction
// order. The order of an edge is the index of its target in targets.
// Self-references, unresolved targets and repeated tag ids are skipped.
func Plan(tagID string, targets []Target) []Edge {
	edges := make([]Edge, 0, len(targets))
	seen := make(map[string]struct{}, len(targets))
	for i, t := range targets {
		if t.TagID == "" || t.TagID == tagID {
			continue
		}
		if _, dup := seen[t.TagID]; dup {
			continue
		}
		seen[t.TagID] = struct{}{}
		edges = append(edges, Edge{TargetID: t.TagID, Order: i})
	}
	return edges
}

// Store is the persistence a Reconciler needs. It is normally bound to the
// transaction of the tag write that triggered reconciliation.
type Store interface {
	GetTagByName(ctx context.Context, name string) (*models.Tag, error)
	// CreateImplicitTag creates a tag with an empty description on behalf of
	// createdBy. It must not reconcile the new tag.
	CreateImplicitTag(ctx context.Context, name, createdBy string) (*models.Tag, error)
	DeleteOutgoingAssociations(ctx context.Context, tagID string) error
	InsertAssociation(ctx context.Context, a models.TagAssociation) error
}

// Result reports what a reconciliation did.
type Result struct {
	Edges   []models.TagAssociation
	Created []*models.Tag
	Skipped int // self-references and repeats
	Failed  int // edge inserts that were logged and dropped
}

// Reconciler replaces a tag's outgoing edges with the ones its hashtags name.
type Reconciler struct {
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Reconciler. A nil now defaults to time.Now.
func New(logger *slog.Logger, now func() time.Time) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Reconciler{logger: logger, now: now}
}

// Reconcile deletes every outgoing edge of tagID and inserts one edge per
// name, in order. Unknown names are created as implicit tags owned by
// actingUser. A failed edge insert is logged and does not fail the call;
// lookup, creation and delete failures do.
func (r *Reconciler) Reconcile(ctx context.Context, st Store, tagID string, names []string, actingUser string) (Result, error) {
	res := Result{Edges: []models.TagAssociation{}}

	if err := st.DeleteOutgoingAssociations(ctx, tagID); err != nil {
		return res, fmt.Errorf("reconcile: clear edges of %s: %w", tagID, err)
	}
	if len(names) == 0 {
		return res, nil
	}

	targets := make([]Target, 0, len(names))
	for _, name := range names {
		tag, err := st.GetTagByName(ctx, name)
		if err != nil {
			return res, fmt.Errorf("reconcile: resolve %q: %w", name, err)
		}
		if tag == nil {
			tag, err = st.CreateImplicitTag(ctx, name, actingUser)
			if err != nil {
				return res, fmt.Errorf("reconcile: create implicit tag %q: %w", name, err)
			}
			res.Created = append(res.Created, tag)
		}
		targets = append(targets, Target{Name: name, TagID: tag.ID})
	}

	edges := Plan(tagID, targets)
	res.Skipped = len(targets) - len(edges)

	now := r.now()
	for _, e := range edges {
		a := models.TagAssociation{
			TagID:            tagID,
			AssociatedTagID:  e.TargetID,
			AssociationOrder: e.Order,
			CreatedAt:        now,
		}
		if err := st.InsertAssociation(ctx, a); err != nil {
			r.logger.Warn("reconcile: association insert failed",
				slog.String("tag_id", tagID),
				slog.String("associated_tag_id", e.TargetID),
				slog.String("error", err.Error()),
			)
			res.Failed++
			continue
		}
		res.Edges = append(res.Edges, a)
	}
	return res, nil
}
