package store

import (
	"context"
	"fmt"

	"github.com/starford/logtags/internal/models"
)

// AllSources returns every imported tag file mapping keyed by path.
func (q *Queries) AllSources(ctx context.Context) (map[string]models.TagSource, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT path, checksum, tag_id FROM tag_sources`)
	if err != nil {
		return nil, fmt.Errorf("store: all sources: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.TagSource)
	for rows.Next() {
		var s models.TagSource
		if err := rows.Scan(&s.Path, &s.Checksum, &s.TagID); err != nil {
			return nil, err
		}
		out[s.Path] = s
	}
	return out, rows.Err()
}

// UpsertSource records the checksum and tag of an imported file.
func (q *Queries) UpsertSource(ctx context.Context, s models.TagSource) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO tag_sources (path, checksum, tag_id)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum = excluded.checksum,
			tag_id   = excluded.tag_id
	`, s.Path, s.Checksum, s.TagID)
	if err != nil {
		return fmt.Errorf("store: upsert source: %w", err)
	}
	return nil
}

// DeleteSource forgets an imported file. The tag it produced is kept.
func (q *Queries) DeleteSource(ctx context.Context, path string) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM tag_sources WHERE path = ?`, path); err != nil {
		return fmt.Errorf("store: delete source: %w", err)
	}
	return nil
}
