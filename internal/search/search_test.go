package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/logtags/internal/models"
	"github.com/starford/logtags/internal/store"
)

var base = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func setupEngine(t *testing.T) (*Engine, *store.DB) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "search-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ix, err := Open(Options{Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })

	return NewEngine(db, ix, logger), db
}

func addTag(t *testing.T, db *store.DB, id, name, desc string, at time.Time) *models.Tag {
	t.Helper()
	tag := &models.Tag{ID: id, Name: name, Description: desc, CreatedAt: at, UpdatedAt: at}
	require.NoError(t, db.CreateTag(context.Background(), tag))
	return tag
}

func names(tags []*models.Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Name
	}
	return out
}

func TestSearch_EmptyQueryListsByRecency(t *testing.T) {
	e, db := setupEngine(t)
	addTag(t, db, "tag-1", "old", "", base)
	addTag(t, db, "tag-2", "new", "", base.Add(time.Hour))

	page, err := e.Search(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, []string{"new", "old"}, names(page.Items))
}

func TestSearch_ShortQueryUsesSubstring(t *testing.T) {
	e, db := setupEngine(t)
	// Not indexed: a two-rune query must still find it.
	addTag(t, db, "tag-1", "Go", "", base)

	page, err := e.Search(context.Background(), Query{Text: "go"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, []string{"Go"}, names(page.Items))
}

func TestSearch_LongQueryRequiresIndex(t *testing.T) {
	e, db := setupEngine(t)
	ctx := context.Background()
	tag := addTag(t, db, "tag-1", "Fly Fishing", "rivers and lakes", base)

	page, err := e.Search(ctx, Query{Text: "fishing"})
	require.NoError(t, err)
	assert.Empty(t, page.Items, "unindexed tag must not match on the index path")

	e.Refresh(ctx, tag.ID)

	page, err = e.Search(ctx, Query{Text: "fishing"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, []string{"Fly Fishing"}, names(page.Items))

	page, err = e.Search(ctx, Query{Text: "d lak"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total, "description substring spanning a space")
}

func TestSearch_IndexOrderAndPaging(t *testing.T) {
	e, db := setupEngine(t)
	ctx := context.Background()
	a := addTag(t, db, "tag-a", "trail running", "", base)
	b := addTag(t, db, "tag-b", "running shoes", "", base.Add(time.Minute))
	c := addTag(t, db, "tag-c", "swimming", "after running", base.Add(2*time.Minute))
	e.Refresh(ctx, a.ID, b.ID, c.ID)

	page, err := e.Search(ctx, Query{Text: "running"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []string{"swimming", "running shoes", "trail running"}, names(page.Items))

	page, err = e.Search(ctx, Query{Text: "running", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []string{"running shoes"}, names(page.Items))
}

func TestSearch_UnicodeIndexed(t *testing.T) {
	e, db := setupEngine(t)
	ctx := context.Background()
	tag := addTag(t, db, "tag-1", "アニメーション", "", base)
	e.Refresh(ctx, tag.ID)

	page, err := e.Search(ctx, Query{Text: "アニメ"})
	require.NoError(t, err)
	assert.Equal(t, []string{"アニメーション"}, names(page.Items))
}

func TestSearch_MatchIsContiguousSubstring(t *testing.T) {
	e, db := setupEngine(t)
	ctx := context.Background()
	a := addTag(t, db, "tag-a", "abc-xbcd", "", base)
	b := addTag(t, db, "tag-b", "banana", "", base.Add(time.Minute))
	c := addTag(t, db, "tag-c", "ABCD tools", "", base.Add(2*time.Minute))
	d := addTag(t, db, "tag-d", "c++ (lang)", "rivers\nand lakes", base.Add(3*time.Minute))
	e.Refresh(ctx, a.ID, b.ID, c.ID, d.ID)

	cases := []struct {
		text string
		want []string
	}{
		{"abcd", []string{"ABCD tools"}},
		{"nanab", []string{}},
		{"anan", []string{"banana"}},
		{"c-xb", []string{"abc-xbcd"}},
		{"+ (l", []string{"c++ (lang)"}},
		{"s.and", []string{}},
		{"s\nand", []string{"c++ (lang)"}},
	}
	for _, tc := range cases {
		page, err := e.Search(ctx, Query{Text: tc.text})
		require.NoError(t, err, tc.text)
		assert.Equal(t, len(tc.want), page.Total, tc.text)
		assert.Equal(t, tc.want, names(page.Items), tc.text)
	}
}

func TestRefresh_ReadsCurrentRow(t *testing.T) {
	e, db := setupEngine(t)
	ctx := context.Background()
	tag := addTag(t, db, "tag-1", "kayaking", "", base)
	e.Refresh(ctx, tag.ID)

	renamed := *tag
	renamed.Name = "canoeing"
	renamed.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, db.UpdateTag(ctx, &renamed))

	// A late refresh for the id indexes whatever the store holds now.
	e.Refresh(ctx, tag.ID)

	page, err := e.Search(ctx, Query{Text: "kayak"})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)

	page, err = e.Search(ctx, Query{Text: "canoe"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, []string{"canoeing"}, names(page.Items))
}

func TestRefresh_AfterDeleteDropsDocument(t *testing.T) {
	e, db := setupEngine(t)
	ctx := context.Background()
	keep := addTag(t, db, "tag-1", "climbing gym", "", base)
	gone := addTag(t, db, "tag-2", "climbing wall", "", base.Add(time.Minute))
	e.Refresh(ctx, keep.ID, gone.ID)

	deleted, err := db.DeleteTag(ctx, gone.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	e.Refresh(ctx, gone.ID)
	// An update's refresh landing after the delete must not bring it back.
	e.Refresh(ctx, gone.ID, keep.ID)

	page, err := e.Search(ctx, Query{Text: "climb"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, []string{"climbing gym"}, names(page.Items))
}

func TestSearch_Rebuild(t *testing.T) {
	e, db := setupEngine(t)
	ctx := context.Background()
	addTag(t, db, "tag-1", "climbing", "", base)

	page, err := e.Search(ctx, Query{Text: "climb"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	n, err := e.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	page, err = e.Search(ctx, Query{Text: "climb"})
	require.NoError(t, err)
	assert.Equal(t, []string{"climbing"}, names(page.Items))
}

func TestSuggest_RanksByUsageThenName(t *testing.T) {
	e, db := setupEngine(t)
	ctx := context.Background()
	x := addTag(t, db, "tag-x", "beta hiking", "", base)
	y := addTag(t, db, "tag-y", "alpha hiking", "", base)
	z := addTag(t, db, "tag-z", "hiking boots", "", base)
	e.Refresh(ctx, x.ID, y.ID, z.ID)

	require.NoError(t, db.UpsertLog(ctx, models.LogRef{ID: "log-1", UserID: "u1", CreatedAt: base}))
	require.NoError(t, db.ReplaceLogTags(ctx, "log-1", []string{"tag-z"}, base))

	for _, prefix := range []string{"hiking", "hi"} {
		got, err := e.Suggest(ctx, prefix, 10)
		require.NoError(t, err)
		require.Len(t, got, 3, prefix)
		assert.Equal(t, "hiking boots", got[0].Tag.Name, prefix)
		assert.Equal(t, 1, got[0].Usage.UsageCount, prefix)
		assert.Equal(t, "alpha hiking", got[1].Tag.Name, prefix)
		assert.Equal(t, "beta hiking", got[2].Tag.Name, prefix)
	}
}

func TestSuggest_UsageOutranksRecency(t *testing.T) {
	e, db := setupEngine(t)
	ctx := context.Background()
	old := addTag(t, db, "tag-old", "hiking classic", "", base)

	// More recent matches than one ranking chunk holds.
	ids := []string{old.ID}
	require.NoError(t, db.InTx(ctx, func(q *store.Queries) error {
		for i := 0; i < rankChunkSize+100; i++ {
			at := base.Add(time.Duration(i+1) * time.Minute)
			tag := &models.Tag{
				ID:        fmt.Sprintf("tag-%04d", i),
				Name:      fmt.Sprintf("hiking trail %04d", i),
				CreatedAt: at,
				UpdatedAt: at,
			}
			if err := q.CreateTag(ctx, tag); err != nil {
				return err
			}
			ids = append(ids, tag.ID)
		}
		return nil
	}))
	e.Refresh(ctx, ids...)

	require.NoError(t, db.UpsertLog(ctx, models.LogRef{ID: "log-1", UserID: "u1", CreatedAt: base}))
	require.NoError(t, db.ReplaceLogTags(ctx, "log-1", []string{old.ID}, base))

	got, err := e.Suggest(ctx, "hiking", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "hiking classic", got[0].Tag.Name)
	assert.Equal(t, 1, got[0].Usage.UsageCount)
	assert.Equal(t, "hiking trail 0000", got[1].Tag.Name)
	assert.Equal(t, "hiking trail 0001", got[2].Tag.Name)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-5))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, MaxLimit, NormalizeLimit(1000))
}

func TestUsesIndex(t *testing.T) {
	assert.False(t, UsesIndex("ab"))
	assert.False(t, UsesIndex("  ab  "))
	assert.True(t, UsesIndex("abc"))
	assert.True(t, UsesIndex("写真家"))
}
