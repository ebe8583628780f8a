package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/logtags/internal/models"
)

// UsageStats counts the logs linked to tagID and the newest log's creation
// time. Unknown ids yield zero usage.
func (q *Queries) UsageStats(ctx context.Context, tagID string) (models.TagUsageStats, error) {
	var (
		stats    models.TagUsageStats
		lastUsed sql.NullString
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(*), MAX(l.created_at)
		FROM log_tag_associations lt
		JOIN logs l ON l.id = lt.log_id
		WHERE lt.tag_id = ?
	`, tagID).Scan(&stats.UsageCount, &lastUsed)
	if err != nil {
		return models.TagUsageStats{}, fmt.Errorf("store: usage stats: %w", err)
	}
	if stats.LastUsed, err = parseNullableTime(lastUsed); err != nil {
		return models.TagUsageStats{}, err
	}
	return stats, nil
}

// usageSelect selects tag columns plus usage_count and last_used. Callers
// append WHERE/GROUP BY/ORDER BY clauses.
const usageSelect = `
	SELECT ` + tagColumnsT + `, COUNT(l.id) AS usage_count, MAX(l.created_at) AS last_used
	FROM tags t
	LEFT JOIN log_tag_associations lt ON lt.tag_id = t.id
	LEFT JOIN logs l ON l.id = lt.log_id
`

// PopularTags returns tags that appear on at least one log, most used first.
func (q *Queries) PopularTags(ctx context.Context, limit int) ([]models.TagWithUsage, error) {
	rows, err := q.q.QueryContext(ctx, usageSelect+`
		GROUP BY t.id
		HAVING usage_count > 0
		ORDER BY usage_count DESC, t.name ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: popular tags: %w", err)
	}
	return collectWithUsage(rows)
}

// RecentTagsForUser returns the tags on userID's logs, ordered by the user's
// latest use. Usage figures are scoped to that user's logs.
func (q *Queries) RecentTagsForUser(ctx context.Context, userID string, limit int) ([]models.TagWithUsage, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+tagColumnsT+`, COUNT(l.id) AS usage_count, MAX(l.created_at) AS last_used
		FROM log_tag_associations lt
		JOIN logs l ON l.id = lt.log_id
		JOIN tags t ON t.id = lt.tag_id
		WHERE l.user_id = ?
		GROUP BY t.id
		ORDER BY last_used DESC, t.name ASC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent tags for user: %w", err)
	}
	return collectWithUsage(rows)
}

// RankByUsage loads the tags among ids and orders them by usage count
// descending, then name ascending.
func (q *Queries) RankByUsage(ctx context.Context, ids []string, limit int) ([]models.TagWithUsage, error) {
	if len(ids) == 0 {
		return []models.TagWithUsage{}, nil
	}
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, limit)
	rows, err := q.q.QueryContext(ctx, usageSelect+`
		WHERE t.id IN (`+placeholders(len(ids))+`)
		GROUP BY t.id
		ORDER BY usage_count DESC, t.name ASC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: rank by usage: %w", err)
	}
	return collectWithUsage(rows)
}

// SuggestSubstring ranks tags whose name or description contains text by usage.
func (q *Queries) SuggestSubstring(ctx context.Context, text string, limit int) ([]models.TagWithUsage, error) {
	pattern := likePattern(text)
	rows, err := q.q.QueryContext(ctx, usageSelect+`
		WHERE t.name LIKE ? ESCAPE '\' OR t.description LIKE ? ESCAPE '\'
		GROUP BY t.id
		ORDER BY usage_count DESC, t.name ASC
		LIMIT ?
	`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("store: suggest substring: %w", err)
	}
	return collectWithUsage(rows)
}

func collectWithUsage(rows *sql.Rows) ([]models.TagWithUsage, error) {
	defer rows.Close()
	out := []models.TagWithUsage{}
	for rows.Next() {
		var (
			r        tagRow
			count    int
			lastUsed sql.NullString
		)
		if err := rows.Scan(append(r.dest(), &count, &lastUsed)...); err != nil {
			return nil, err
		}
		t, err := r.finish()
		if err != nil {
			return nil, err
		}
		last, err := parseNullableTime(lastUsed)
		if err != nil {
			return nil, err
		}
		out = append(out, models.TagWithUsage{Tag: t, Usage: models.TagUsageStats{UsageCount: count, LastUsed: last}})
	}
	return out, rows.Err()
}
