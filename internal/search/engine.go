package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/starford/logtags/internal/models"
)

const (
	// MinIndexedQueryLength is the shortest trimmed query, in runes, served by
	// the index. Shorter queries fall back to substring matching.
	MinIndexedQueryLength = 3

	DefaultLimit = 20
	MaxLimit     = 100

	// rankChunkSize bounds the ids bound into one RankByUsage statement.
	rankChunkSize = 500
)

// Store is the read side of the tag store the engine needs.
type Store interface {
	AllTags(ctx context.Context) ([]*models.Tag, error)
	CountTags(ctx context.Context) (int, error)
	ListRecentTags(ctx context.Context, limit, offset int) ([]*models.Tag, error)
	GetTagsByIDs(ctx context.Context, ids []string) (map[string]*models.Tag, error)
	SearchSubstring(ctx context.Context, text string, limit, offset int) ([]*models.Tag, int, error)
	SuggestSubstring(ctx context.Context, text string, limit int) ([]models.TagWithUsage, error)
	RankByUsage(ctx context.Context, ids []string, limit int) ([]models.TagWithUsage, error)
}

// Query is a paginated search request. An empty Text lists every tag.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Page is one page of search results.
type Page struct {
	Items []*models.Tag `json:"items"`
	Total int           `json:"total"`
}

// Engine routes tag searches between the index and the store.
//
// Index writes are serialized by mu and always copy the store's current
// rows, so the last writer leaves the index matching the store.
type Engine struct {
	store  Store
	index  *Index
	logger *slog.Logger
	mu     sync.Mutex
}

// NewEngine creates an Engine over store and index.
func NewEngine(store Store, index *Index, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, index: index, logger: logger}
}

// UsesIndex reports whether text is long enough for the index.
func UsesIndex(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) >= MinIndexedQueryLength
}

// NormalizeLimit clamps limit into [1, MaxLimit], defaulting to DefaultLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// Search returns tags matching q, most recently updated first.
func (e *Engine) Search(ctx context.Context, q Query) (Page, error) {
	limit := NormalizeLimit(q.Limit)
	offset := max(q.Offset, 0)
	text := strings.TrimSpace(q.Text)

	switch {
	case text == "":
		items, err := e.store.ListRecentTags(ctx, limit, offset)
		if err != nil {
			return Page{}, err
		}
		total, err := e.store.CountTags(ctx)
		if err != nil {
			return Page{}, err
		}
		return Page{Items: items, Total: total}, nil

	case UsesIndex(text):
		ids, total, err := e.index.Match(ctx, text, limit, offset)
		if err != nil {
			return Page{}, err
		}
		items, err := e.hydrate(ctx, ids)
		if err != nil {
			return Page{}, err
		}
		return Page{Items: items, Total: total}, nil

	default:
		items, total, err := e.store.SearchSubstring(ctx, text, limit, offset)
		if err != nil {
			return Page{}, err
		}
		return Page{Items: items, Total: total}, nil
	}
}

// Suggest returns tags matching prefix ranked by usage count, then name.
// An empty prefix yields no suggestions.
func (e *Engine) Suggest(ctx context.Context, prefix string, limit int) ([]models.TagWithUsage, error) {
	limit = NormalizeLimit(limit)
	text := strings.TrimSpace(prefix)
	if text == "" {
		return []models.TagWithUsage{}, nil
	}
	if !UsesIndex(text) {
		return e.store.SuggestSubstring(ctx, text, limit)
	}
	ids, err := e.index.MatchAll(ctx, text)
	if err != nil {
		return nil, err
	}
	return e.rankByUsage(ctx, ids, limit)
}

// rankByUsage ranks ids in chunks and merges the per-chunk leaders. The
// overall top limit is always among the top limit of its own chunk.
func (e *Engine) rankByUsage(ctx context.Context, ids []string, limit int) ([]models.TagWithUsage, error) {
	if len(ids) <= rankChunkSize {
		return e.store.RankByUsage(ctx, ids, limit)
	}
	var merged []models.TagWithUsage
	for start := 0; start < len(ids); start += rankChunkSize {
		end := min(start+rankChunkSize, len(ids))
		ranked, err := e.store.RankByUsage(ctx, ids[start:end], limit)
		if err != nil {
			return nil, err
		}
		merged = append(merged, ranked...)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Usage.UsageCount != merged[j].Usage.UsageCount {
			return merged[i].Usage.UsageCount > merged[j].Usage.UsageCount
		}
		return merged[i].Tag.Name < merged[j].Tag.Name
	})
	return merged[:min(limit, len(merged))], nil
}

// hydrate loads tags for ids, keeping index order. Ids whose tag is gone are
// dropped.
func (e *Engine) hydrate(ctx context.Context, ids []string) ([]*models.Tag, error) {
	byID, err := e.store.GetTagsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Tag, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// Refresh brings the index in line with the store for ids: tags that exist
// are reindexed from their current row, the rest are dropped. Failures are
// logged: the index is derived data and is rebuilt from the store on startup.
func (e *Engine) Refresh(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.refresh(ctx, ids); err != nil {
		e.logger.Error("search index refresh failed",
			slog.Any("tag_ids", ids),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) refresh(ctx context.Context, ids []string) error {
	byID, err := e.store.GetTagsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	present := make([]*models.Tag, 0, len(byID))
	var gone []string
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			present = append(present, t)
		} else {
			gone = append(gone, id)
		}
	}
	if err := e.index.IndexTags(present); err != nil {
		return err
	}
	if len(gone) > 0 {
		return e.index.DeleteTags(gone...)
	}
	return nil
}

// Rebuild recreates the index from every tag in the store and returns the
// number of tags indexed.
func (e *Engine) Rebuild(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tags, err := e.store.AllTags(ctx)
	if err != nil {
		return 0, fmt.Errorf("search: load tags: %w", err)
	}
	if err := e.index.Reset(); err != nil {
		return 0, err
	}
	if err := e.index.IndexTags(tags); err != nil {
		return 0, err
	}
	return len(tags), nil
}
