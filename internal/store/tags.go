package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/logtags/internal/apperr"
	"github.com/starford/logtags/internal/models"
)

// CreateTag inserts a new tag. A name collision returns apperr.ErrDuplicateName.
func (q *Queries) CreateTag(ctx context.Context, t *models.Tag) error {
	meta, err := encodeMetadata(t.Metadata)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO tags (id, name, description, metadata, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Name, t.Description, meta, t.CreatedBy, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		if constraintCode(err) == sqlite3.ErrConstraintUnique {
			return apperr.ErrDuplicateName
		}
		return fmt.Errorf("store: create tag: %w", err)
	}
	return nil
}

// UpdateTag overwrites the mutable fields of an existing tag.
func (q *Queries) UpdateTag(ctx context.Context, t *models.Tag) error {
	meta, err := encodeMetadata(t.Metadata)
	if err != nil {
		return err
	}
	res, err := q.q.ExecContext(ctx, `
		UPDATE tags SET name = ?, description = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`, t.Name, t.Description, meta, formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		if constraintCode(err) == sqlite3.ErrConstraintUnique {
			return apperr.ErrDuplicateName
		}
		return fmt.Errorf("store: update tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// GetTagByID returns the tag with the given id, or nil if absent.
func (q *Queries) GetTagByID(ctx context.Context, id string) (*models.Tag, error) {
	t, err := scanTag(q.q.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get tag %s: %w", id, err)
	}
	return t, nil
}

// GetTagByName returns the tag with the exact (case-sensitive) name, or nil.
func (q *Queries) GetTagByName(ctx context.Context, name string) (*models.Tag, error) {
	t, err := scanTag(q.q.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM tags WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get tag by name: %w", err)
	}
	return t, nil
}

// GetTagsByIDs returns the tags that exist among ids, keyed by id.
func (q *Queries) GetTagsByIDs(ctx context.Context, ids []string) (map[string]*models.Tag, error) {
	out := make(map[string]*models.Tag, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get tags by ids: %w", err)
	}
	tags, err := collectTags(rows)
	if err != nil {
		return nil, fmt.Errorf("store: get tags by ids: %w", err)
	}
	for _, t := range tags {
		out[t.ID] = t
	}
	return out, nil
}

// DeleteTag removes a tag together with every edge touching it, its log
// links and its import source. Revisions are kept. Returns false when no tag had that id.
func (q *Queries) DeleteTag(ctx context.Context, id string) (bool, error) {
	if _, err := q.q.ExecContext(ctx,
		`DELETE FROM tag_associations WHERE tag_id = ? OR associated_tag_id = ?`, id, id); err != nil {
		return false, fmt.Errorf("store: delete tag associations: %w", err)
	}
	if _, err := q.q.ExecContext(ctx, `DELETE FROM log_tag_associations WHERE tag_id = ?`, id); err != nil {
		return false, fmt.Errorf("store: delete tag log links: %w", err)
	}
	if _, err := q.q.ExecContext(ctx, `DELETE FROM tag_sources WHERE tag_id = ?`, id); err != nil {
		return false, fmt.Errorf("store: delete tag sources: %w", err)
	}
	res, err := q.q.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete tag: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AllTags returns every tag ordered by id.
func (q *Queries) AllTags(ctx context.Context) ([]*models.Tag, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+tagColumns+` FROM tags ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: all tags: %w", err)
	}
	return collectTags(rows)
}

// CountTags returns the number of tags.
func (q *Queries) CountTags(ctx context.Context) (int, error) {
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count tags: %w", err)
	}
	return n, nil
}

// ListRecentTags returns tags by updated_at descending.
func (q *Queries) ListRecentTags(ctx context.Context, limit, offset int) ([]*models.Tag, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+tagColumns+` FROM tags
		ORDER BY updated_at DESC, id ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list recent tags: %w", err)
	}
	return collectTags(rows)
}
