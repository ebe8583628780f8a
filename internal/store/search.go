package store

import (
	"context"
	"fmt"

	"github.com/starford/logtags/internal/models"
)

// SearchSubstring returns tags whose name or description contains text,
// most recently updated first, and the total number of matches.
// LIKE is case-insensitive for ASCII only.
func (q *Queries) SearchSubstring(ctx context.Context, text string, limit, offset int) ([]*models.Tag, int, error) {
	pattern := likePattern(text)
	const where = `WHERE name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\'`

	var total int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags `+where, pattern, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: substring count: %w", err)
	}
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+tagColumns+` FROM tags `+where+`
		ORDER BY updated_at DESC, id ASC
		LIMIT ? OFFSET ?
	`, pattern, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: substring search: %w", err)
	}
	tags, err := collectTags(rows)
	if err != nil {
		return nil, 0, err
	}
	return tags, total, nil
}
