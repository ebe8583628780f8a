package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/logtags/internal/models"
)

// NextRevisionNumber returns one past the highest revision number recorded for
// tagID, or 0 for a tag with no history.
func (q *Queries) NextRevisionNumber(ctx context.Context, tagID string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(revision_number), -1) + 1 FROM tag_revisions WHERE tag_id = ?`, tagID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: next revision number: %w", err)
	}
	return n, nil
}

// InsertRevision appends a snapshot to the revision ledger.
func (q *Queries) InsertRevision(ctx context.Context, r *models.TagRevision) error {
	meta, err := encodeMetadata(r.Metadata)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO tag_revisions (id, tag_id, revision_number, name, description, metadata, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.TagID, r.RevisionNumber, r.Name, r.Description, meta, r.CreatedBy, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: insert revision %d for %s: %w", r.RevisionNumber, r.TagID, err)
	}
	return nil
}

const revisionColumns = `id, tag_id, revision_number, name, description, metadata, created_by, created_at`

func scanRevision(scanner interface{ Scan(dest ...any) error }) (*models.TagRevision, error) {
	var (
		r         models.TagRevision
		meta      string
		createdAt string
	)
	if err := scanner.Scan(&r.ID, &r.TagID, &r.RevisionNumber, &r.Name, &r.Description, &meta, &r.CreatedBy, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if r.Metadata, err = decodeMetadata(meta); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRevisions returns every revision of tagID, oldest first.
func (q *Queries) ListRevisions(ctx context.Context, tagID string) ([]*models.TagRevision, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+revisionColumns+` FROM tag_revisions WHERE tag_id = ? ORDER BY revision_number ASC`, tagID)
	if err != nil {
		return nil, fmt.Errorf("store: list revisions: %w", err)
	}
	defer rows.Close()

	out := []*models.TagRevision{}
	for rows.Next() {
		r, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRevision returns one revision, or nil if it does not exist.
func (q *Queries) GetRevision(ctx context.Context, tagID string, number int) (*models.TagRevision, error) {
	r, err := scanRevision(q.q.QueryRowContext(ctx,
		`SELECT `+revisionColumns+` FROM tag_revisions WHERE tag_id = ? AND revision_number = ?`, tagID, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get revision: %w", err)
	}
	return r, nil
}
