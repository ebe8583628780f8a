package tagservice

import (
	"context"
	"strings"

	"github.com/starford/logtags/internal/apperr"
	"github.com/starford/logtags/internal/models"
	"github.com/starford/logtags/internal/parser"
	"github.com/starford/logtags/internal/store"
)

// TagLog links a log to the tags named explicitly in names and by hashtags in
// content, replacing its previous links. Unknown names become implicit tags
// owned by the log's author. Returns the linked tags in first-mention order.
func (s *Service) TagLog(ctx context.Context, ref models.LogRef, content string, names []string) ([]*models.Tag, error) {
	if strings.TrimSpace(ref.ID) == "" {
		return nil, apperr.ErrInvalidInput
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = s.timestamp()
	}
	wanted := logTagNames(names, content)

	var (
		res    writeResult
		linked []*models.Tag
	)
	err := s.db.InTx(ctx, func(q *store.Queries) error {
		if err := q.UpsertLog(ctx, ref); err != nil {
			return err
		}
		ts := txStore{Queries: q, svc: s, res: &res}
		ids := make([]string, 0, len(wanted))
		for _, name := range wanted {
			tag, err := q.GetTagByName(ctx, name)
			if err != nil {
				return err
			}
			if tag == nil {
				if tag, err = ts.CreateImplicitTag(ctx, name, ref.UserID); err != nil {
					return err
				}
			}
			linked = append(linked, tag)
			ids = append(ids, tag.ID)
		}
		return q.ReplaceLogTags(ctx, ref.ID, ids, s.timestamp())
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, &res)
	if linked == nil {
		linked = []*models.Tag{}
	}
	return linked, nil
}

// UntagLog forgets a log and all of its tag links.
func (s *Service) UntagLog(ctx context.Context, logID string) error {
	return s.db.DeleteLog(ctx, logID)
}

// logTagNames pools explicit names with content hashtags, first mention wins.
func logTagNames(explicit []string, content string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(n string) {
		n = strings.TrimSpace(n)
		if !validName(n) {
			return
		}
		if _, dup := seen[n]; dup {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	for _, n := range explicit {
		add(n)
	}
	for _, n := range parser.Hashtags(content) {
		add(n)
	}
	return out
}
