package store

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/logtags/internal/models"
)

// UpsertLog records or refreshes the log reference used for usage statistics.
func (q *Queries) UpsertLog(ctx context.Context, l models.LogRef) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO logs (id, user_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id    = excluded.user_id,
			created_at = excluded.created_at
	`, l.ID, l.UserID, formatTime(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: upsert log: %w", err)
	}
	return nil
}

// ReplaceLogTags sets the tags linked to logID to exactly tagIDs.
func (q *Queries) ReplaceLogTags(ctx context.Context, logID string, tagIDs []string, now time.Time) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM log_tag_associations WHERE log_id = ?`, logID); err != nil {
		return fmt.Errorf("store: clear log tags: %w", err)
	}
	ts := formatTime(now)
	for _, tagID := range tagIDs {
		_, err := q.q.ExecContext(ctx, `
			INSERT OR IGNORE INTO log_tag_associations (log_id, tag_id, created_at)
			VALUES (?, ?, ?)
		`, logID, tagID, ts)
		if err != nil {
			return fmt.Errorf("store: link log %s to tag %s: %w", logID, tagID, err)
		}
	}
	return nil
}

// DeleteLog forgets a log and all of its tag links.
func (q *Queries) DeleteLog(ctx context.Context, logID string) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM log_tag_associations WHERE log_id = ?`, logID); err != nil {
		return fmt.Errorf("store: delete log tags: %w", err)
	}
	if _, err := q.q.ExecContext(ctx, `DELETE FROM logs WHERE id = ?`, logID); err != nil {
		return fmt.Errorf("store: delete log: %w", err)
	}
	return nil
}

// LogTagIDs returns the ids of the tags linked to logID.
func (q *Queries) LogTagIDs(ctx context.Context, logID string) ([]string, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT tag_id FROM log_tag_associations WHERE log_id = ? ORDER BY tag_id`, logID)
	if err != nil {
		return nil, fmt.Errorf("store: log tag ids: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
