// Package search serves tag lookups from a trigram bleve index, falling back
// to SQL substring matching for inputs too short to index.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/starford/logtags/internal/models"
)

// mappingVersion is bumped whenever buildIndexMapping changes. An on-disk
// index written with another version is discarded on open.
const mappingVersion = "2"

// Index wraps a bleve index of tag documents.
//
// All methods are safe for concurrent use. The mutex guards the index
// handle against Reset.
type Index struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// Options configures the search index.
type Options struct {
	Path   string // index directory; empty keeps the index in memory
	Logger *slog.Logger
}

// Open opens or creates the index at opts.Path.
func Open(opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ix := &Index{path: opts.Path, logger: logger}

	if opts.Path == "" {
		index, err := newIndex("")
		if err != nil {
			return nil, err
		}
		ix.index = index
		return ix, nil
	}

	versionPath := opts.Path + ".version"
	if _, err := os.Stat(opts.Path); err == nil {
		v, readErr := os.ReadFile(versionPath)
		if readErr == nil && string(v) == mappingVersion {
			index, openErr := bleve.Open(opts.Path)
			if openErr == nil {
				logger.Info("opened existing search index", slog.String("path", opts.Path))
				ix.index = index
				return ix, nil
			}
			logger.Warn("failed to open search index, recreating",
				slog.String("path", opts.Path),
				slog.String("error", openErr.Error()),
			)
		} else {
			logger.Info("search index mapping changed, recreating",
				slog.String("path", opts.Path),
				slog.String("version", mappingVersion),
			)
		}
		if err := os.RemoveAll(opts.Path); err != nil {
			return nil, fmt.Errorf("search: remove old index: %w", err)
		}
	}

	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("search: create index dir: %w", err)
		}
	}
	index, err := newIndex(opts.Path)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
		logger.Warn("failed to write search version file", slog.String("error", err.Error()))
	}
	logger.Info("created search index", slog.String("path", opts.Path))
	ix.index = index
	return ix, nil
}

func newIndex(path string) (bleve.Index, error) {
	m, err := buildIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("search: build mapping: %w", err)
	}
	var index bleve.Index
	if path == "" {
		index, err = bleve.NewMemOnly(m)
	} else {
		index, err = bleve.New(path, m)
	}
	if err != nil {
		return nil, fmt.Errorf("search: create index: %w", err)
	}
	return index, nil
}

// Close releases the index.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.index.Close()
}

func tagDocument(t *models.Tag) map[string]interface{} {
	return map[string]interface{}{
		"name":                t.Name,
		"description":         t.Description,
		nameValueField:        t.Name,
		descriptionValueField: t.Description,
		"updated_at":          float64(t.UpdatedAt.UnixMicro()),
	}
}

// IndexTags adds or replaces tag documents in batches.
func (ix *Index) IndexTags(tags []*models.Tag) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	const batchSize = 500
	for i := 0; i < len(tags); i += batchSize {
		end := min(i+batchSize, len(tags))
		batch := ix.index.NewBatch()
		for _, t := range tags[i:end] {
			if err := batch.Index(t.ID, tagDocument(t)); err != nil {
				return fmt.Errorf("search: batch index %s: %w", t.ID, err)
			}
		}
		if err := ix.index.Batch(batch); err != nil {
			return fmt.Errorf("search: commit batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// DeleteTags removes documents by tag id.
func (ix *Index) DeleteTags(ids ...string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	batch := ix.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return ix.index.Batch(batch)
}

// Reset drops every document by recreating the index.
func (ix *Index) Reset() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.index.Close(); err != nil {
		return fmt.Errorf("search: close index: %w", err)
	}
	if ix.path != "" {
		if err := os.RemoveAll(ix.path); err != nil {
			return fmt.Errorf("search: remove index: %w", err)
		}
	}
	index, err := newIndex(ix.path)
	if err != nil {
		return err
	}
	ix.index = index
	return nil
}

// Match returns the ids of tags whose name or description contains text,
// ignoring case, most recently updated first, and the total hit count.
func (ix *Index) Match(ctx context.Context, text string, limit, offset int) ([]string, int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(matchQuery(text), limit, offset, false)
	req.SortBy([]string{"-updated_at", "_id"})

	res, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("search: execute: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, int(res.Total), nil
}

// MatchAll returns the id of every tag Match would find, in no particular
// order.
func (ix *Index) MatchAll(ctx context.Context, text string) ([]string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	count, err := ix.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("search: doc count: %w", err)
	}
	if count == 0 {
		return []string{}, nil
	}
	req := bleve.NewSearchRequestOptions(matchQuery(text), int(count), 0, false)
	req.SortBy([]string{"_id"})

	res, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: execute: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// matchQuery matches text as a contiguous, case-insensitive substring of
// name or description.
func matchQuery(text string) query.Query {
	return bleve.NewDisjunctionQuery(
		fieldMatch("name", nameValueField, text),
		fieldMatch("description", descriptionValueField, text),
	)
}

func fieldMatch(trigramField, valueField, text string) query.Query {
	grams := bleve.NewMatchQuery(text)
	grams.SetField(trigramField)
	grams.SetOperator(query.MatchQueryOperatorAnd)

	substring := bleve.NewRegexpQuery(substringPattern(text))
	substring.SetField(valueField)

	return bleve.NewConjunctionQuery(grams, substring)
}

// substringPattern builds a regexp matching any term that contains text
// lowercased, with every regexp metacharacter in text taken literally.
func substringPattern(text string) string {
	return `(?s).*` + regexp.QuoteMeta(strings.ToLower(text)) + `.*`
}
