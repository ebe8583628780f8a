package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/logtags/internal/apperr"
	"github.com/starford/logtags/internal/models"
)

// AssociationSort selects the ordering of a tag's outgoing associations.
type AssociationSort string

const (
	// SortByOrder lists edges by association_order, i.e. hashtag appearance order.
	SortByOrder AssociationSort = "order"
	// SortByRecent lists the newest edges first.
	SortByRecent AssociationSort = "recent"
)

// InsertAssociation adds the edge a.TagID -> a.AssociatedTagID.
// Constraint failures map to apperr.ErrAlreadyExists (edge exists),
// apperr.ErrNotFound (missing endpoint) and apperr.ErrSelfAssociation.
func (q *Queries) InsertAssociation(ctx context.Context, a models.TagAssociation) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO tag_associations (tag_id, associated_tag_id, association_order, created_at)
		VALUES (?, ?, ?, ?)
	`, a.TagID, a.AssociatedTagID, a.AssociationOrder, formatTime(a.CreatedAt))
	if err == nil {
		return nil
	}
	switch constraintCode(err) {
	case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
		return apperr.ErrAlreadyExists
	case sqlite3.ErrConstraintForeignKey:
		return apperr.ErrNotFound
	case sqlite3.ErrConstraintCheck:
		return apperr.ErrSelfAssociation
	}
	return fmt.Errorf("store: insert association: %w", err)
}

// DeleteOutgoingAssociations removes every edge whose source is tagID.
func (q *Queries) DeleteOutgoingAssociations(ctx context.Context, tagID string) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM tag_associations WHERE tag_id = ?`, tagID); err != nil {
		return fmt.Errorf("store: delete outgoing associations: %w", err)
	}
	return nil
}

// DeleteAssociation removes a single edge. Missing edges are not an error.
func (q *Queries) DeleteAssociation(ctx context.Context, tagID, associatedTagID string) error {
	_, err := q.q.ExecContext(ctx,
		`DELETE FROM tag_associations WHERE tag_id = ? AND associated_tag_id = ?`, tagID, associatedTagID)
	if err != nil {
		return fmt.Errorf("store: delete association: %w", err)
	}
	return nil
}

// MaxAssociationOrder returns the highest association_order among tagID's
// outgoing edges, or -1 when it has none.
func (q *Queries) MaxAssociationOrder(ctx context.Context, tagID string) (int, error) {
	var maxOrder sql.NullInt64
	err := q.q.QueryRowContext(ctx,
		`SELECT MAX(association_order) FROM tag_associations WHERE tag_id = ?`, tagID).Scan(&maxOrder)
	if err != nil {
		return 0, fmt.Errorf("store: max association order: %w", err)
	}
	if !maxOrder.Valid {
		return -1, nil
	}
	return int(maxOrder.Int64), nil
}

// ListAssociations returns the tags tagID points to, joined with the edge data.
func (q *Queries) ListAssociations(ctx context.Context, tagID string, sort AssociationSort) ([]models.AssociatedTag, error) {
	order := `a.association_order ASC, t.name ASC`
	if sort == SortByRecent {
		order = `a.created_at DESC, a.association_order ASC`
	}
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+tagColumnsT+`, a.association_order, a.created_at
		FROM tag_associations a
		JOIN tags t ON t.id = a.associated_tag_id
		WHERE a.tag_id = ?
		ORDER BY `+order, tagID)
	if err != nil {
		return nil, fmt.Errorf("store: list associations: %w", err)
	}
	return collectAssociated(rows)
}

// ListReferringTags returns the source tags of edges pointing at tagID,
// newest edge first.
func (q *Queries) ListReferringTags(ctx context.Context, tagID string, limit int) ([]models.AssociatedTag, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+tagColumnsT+`, a.association_order, a.created_at
		FROM tag_associations a
		JOIN tags t ON t.id = a.tag_id
		WHERE a.associated_tag_id = ?
		ORDER BY a.created_at DESC, t.name ASC
		LIMIT ?
	`, tagID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list referring tags: %w", err)
	}
	return collectAssociated(rows)
}

func collectAssociated(rows *sql.Rows) ([]models.AssociatedTag, error) {
	defer rows.Close()
	out := []models.AssociatedTag{}
	for rows.Next() {
		var (
			r          tagRow
			order      int
			associated string
		)
		if err := rows.Scan(append(r.dest(), &order, &associated)...); err != nil {
			return nil, err
		}
		t, err := r.finish()
		if err != nil {
			return nil, err
		}
		at, err := parseTime(associated)
		if err != nil {
			return nil, err
		}
		out = append(out, models.AssociatedTag{Tag: t, AssociationOrder: order, AssociatedAt: at})
	}
	return out, rows.Err()
}
