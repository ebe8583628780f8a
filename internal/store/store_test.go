package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/logtags/internal/apperr"
	"github.com/starford/logtags/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "logtags-test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func mustCreate(t *testing.T, db *DB, id, name, desc string, at time.Time) *models.Tag {
	t.Helper()
	tag := &models.Tag{ID: id, Name: name, Description: desc, CreatedBy: "u1", CreatedAt: at, UpdatedAt: at}
	if err := db.CreateTag(context.Background(), tag); err != nil {
		t.Fatalf("CreateTag(%s): %v", name, err)
	}
	return tag
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"tags", "tag_associations", "tag_revisions", "logs", "log_tag_associations", "tag_sources"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestCreateAndGetTag(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	tag := &models.Tag{
		ID: "tag-1", Name: "Fishing", Description: "rivers",
		Metadata: models.Metadata{"color": "blue"}, CreatedBy: "u1",
		CreatedAt: base, UpdatedAt: base,
	}
	if err := db.CreateTag(ctx, tag); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	got, err := db.GetTagByID(ctx, "tag-1")
	if err != nil {
		t.Fatalf("GetTagByID: %v", err)
	}
	if got.Name != "Fishing" || got.Description != "rivers" || got.Metadata["color"] != "blue" {
		t.Errorf("unexpected tag: %+v", got)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, base)
	}

	byName, err := db.GetTagByName(ctx, "Fishing")
	if err != nil || byName == nil || byName.ID != "tag-1" {
		t.Fatalf("GetTagByName = %v, %v", byName, err)
	}
	if miss, err := db.GetTagByName(ctx, "fishing"); err != nil || miss != nil {
		t.Errorf("name lookup should be exact, got %v, %v", miss, err)
	}
	if miss, err := db.GetTagByID(ctx, "nope"); err != nil || miss != nil {
		t.Errorf("missing id should be nil, nil; got %v, %v", miss, err)
	}
}

func TestCreateTag_DuplicateName(t *testing.T) {
	db := testDB(t)
	mustCreate(t, db, "tag-1", "dup", "", base)
	err := db.CreateTag(context.Background(), &models.Tag{ID: "tag-2", Name: "dup", CreatedAt: base, UpdatedAt: base})
	if !errors.Is(err, apperr.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestUpdateTag(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	tag := mustCreate(t, db, "tag-1", "a", "", base)
	mustCreate(t, db, "tag-2", "b", "", base)

	tag.Name = "b"
	if err := db.UpdateTag(ctx, tag); !errors.Is(err, apperr.ErrDuplicateName) {
		t.Errorf("rename collision: expected ErrDuplicateName, got %v", err)
	}
	if err := db.UpdateTag(ctx, &models.Tag{ID: "missing", Name: "x", UpdatedAt: base}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing id: expected ErrNotFound, got %v", err)
	}
}

func TestAssociations_Constraints(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustCreate(t, db, "tag-a", "a", "", base)
	mustCreate(t, db, "tag-b", "b", "", base)

	edge := models.TagAssociation{TagID: "tag-a", AssociatedTagID: "tag-b", CreatedAt: base}
	if err := db.InsertAssociation(ctx, edge); err != nil {
		t.Fatalf("InsertAssociation: %v", err)
	}
	if err := db.InsertAssociation(ctx, edge); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate edge: expected ErrAlreadyExists, got %v", err)
	}
	self := models.TagAssociation{TagID: "tag-a", AssociatedTagID: "tag-a", CreatedAt: base}
	if err := db.InsertAssociation(ctx, self); !errors.Is(err, apperr.ErrSelfAssociation) {
		t.Errorf("self edge: expected ErrSelfAssociation, got %v", err)
	}
	dangling := models.TagAssociation{TagID: "tag-a", AssociatedTagID: "ghost", CreatedAt: base}
	if err := db.InsertAssociation(ctx, dangling); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("dangling edge: expected ErrNotFound, got %v", err)
	}

	maxOrder, err := db.MaxAssociationOrder(ctx, "tag-b")
	if err != nil || maxOrder != -1 {
		t.Errorf("MaxAssociationOrder(no edges) = %d, %v; want -1", maxOrder, err)
	}
}

func TestListAssociations_Sorting(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustCreate(t, db, "tag-src", "src", "", base)
	mustCreate(t, db, "tag-x", "x", "", base)
	mustCreate(t, db, "tag-y", "y", "", base)

	_ = db.InsertAssociation(ctx, models.TagAssociation{TagID: "tag-src", AssociatedTagID: "tag-x", AssociationOrder: 0, CreatedAt: base})
	_ = db.InsertAssociation(ctx, models.TagAssociation{TagID: "tag-src", AssociatedTagID: "tag-y", AssociationOrder: 1, CreatedAt: base.Add(time.Minute)})

	byOrder, err := db.ListAssociations(ctx, "tag-src", SortByOrder)
	if err != nil {
		t.Fatalf("ListAssociations: %v", err)
	}
	if len(byOrder) != 2 || byOrder[0].Tag.Name != "x" || byOrder[1].Tag.Name != "y" {
		t.Errorf("order sort = %+v", byOrder)
	}

	byRecent, err := db.ListAssociations(ctx, "tag-src", SortByRecent)
	if err != nil {
		t.Fatalf("ListAssociations: %v", err)
	}
	if len(byRecent) != 2 || byRecent[0].Tag.Name != "y" {
		t.Errorf("recent sort = %+v", byRecent)
	}

	refs, err := db.ListReferringTags(ctx, "tag-x", 10)
	if err != nil {
		t.Fatalf("ListReferringTags: %v", err)
	}
	if len(refs) != 1 || refs[0].Tag.ID != "tag-src" {
		t.Errorf("referrers = %+v", refs)
	}
}

func TestDeleteTag_Cascades(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustCreate(t, db, "tag-a", "a", "", base)
	mustCreate(t, db, "tag-b", "b", "", base)
	mustCreate(t, db, "tag-c", "c", "", base)
	_ = db.InsertAssociation(ctx, models.TagAssociation{TagID: "tag-a", AssociatedTagID: "tag-b", CreatedAt: base})
	_ = db.InsertAssociation(ctx, models.TagAssociation{TagID: "tag-c", AssociatedTagID: "tag-a", CreatedAt: base})
	_ = db.UpsertLog(ctx, models.LogRef{ID: "log-1", UserID: "u1", CreatedAt: base})
	_ = db.ReplaceLogTags(ctx, "log-1", []string{"tag-a", "tag-b"}, base)
	_ = db.InsertRevision(ctx, &models.TagRevision{ID: "rev-1", TagID: "tag-a", Name: "a", CreatedAt: base})

	deleted, err := db.DeleteTag(ctx, "tag-a")
	if err != nil || !deleted {
		t.Fatalf("DeleteTag = %v, %v", deleted, err)
	}

	var edges int
	_ = db.conn.QueryRow(`SELECT count(*) FROM tag_associations WHERE tag_id = 'tag-a' OR associated_tag_id = 'tag-a'`).Scan(&edges)
	if edges != 0 {
		t.Errorf("expected no edges touching tag-a, got %d", edges)
	}
	ids, _ := db.LogTagIDs(ctx, "log-1")
	if len(ids) != 1 || ids[0] != "tag-b" {
		t.Errorf("log tags after delete = %v", ids)
	}
	revs, _ := db.ListRevisions(ctx, "tag-a")
	if len(revs) != 1 {
		t.Errorf("revisions should survive deletion, got %d", len(revs))
	}

	again, err := db.DeleteTag(ctx, "tag-a")
	if err != nil || again {
		t.Errorf("second delete = %v, %v; want false, nil", again, err)
	}
}

func TestRevisions_Numbering(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n, err := db.NextRevisionNumber(ctx, "tag-a")
		if err != nil {
			t.Fatalf("NextRevisionNumber: %v", err)
		}
		if n != i {
			t.Fatalf("revision number = %d, want %d", n, i)
		}
		rev := &models.TagRevision{ID: "rev-" + string(rune('0'+i)), TagID: "tag-a", RevisionNumber: n, Name: "a", CreatedAt: base}
		if err := db.InsertRevision(ctx, rev); err != nil {
			t.Fatalf("InsertRevision: %v", err)
		}
	}
	dup := &models.TagRevision{ID: "rev-x", TagID: "tag-a", RevisionNumber: 1, Name: "a", CreatedAt: base}
	if err := db.InsertRevision(ctx, dup); err == nil {
		t.Error("expected unique violation for repeated revision number")
	}

	r, err := db.GetRevision(ctx, "tag-a", 2)
	if err != nil || r == nil || r.RevisionNumber != 2 {
		t.Errorf("GetRevision = %v, %v", r, err)
	}
	if r, err := db.GetRevision(ctx, "tag-a", 9); err != nil || r != nil {
		t.Errorf("missing revision = %v, %v", r, err)
	}
}

func TestUsageStats(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustCreate(t, db, "tag-a", "a", "", base)
	mustCreate(t, db, "tag-b", "b", "", base)

	_ = db.UpsertLog(ctx, models.LogRef{ID: "log-1", UserID: "u1", CreatedAt: base})
	_ = db.UpsertLog(ctx, models.LogRef{ID: "log-2", UserID: "u2", CreatedAt: base.Add(time.Hour)})
	_ = db.ReplaceLogTags(ctx, "log-1", []string{"tag-a"}, base)
	_ = db.ReplaceLogTags(ctx, "log-2", []string{"tag-a", "tag-b"}, base)

	stats, err := db.UsageStats(ctx, "tag-a")
	if err != nil {
		t.Fatalf("UsageStats: %v", err)
	}
	if stats.UsageCount != 2 || stats.LastUsed == nil || !stats.LastUsed.Equal(base.Add(time.Hour)) {
		t.Errorf("stats = %+v", stats)
	}

	unknown, err := db.UsageStats(ctx, "ghost")
	if err != nil || unknown.UsageCount != 0 || unknown.LastUsed != nil {
		t.Errorf("unknown stats = %+v, %v", unknown, err)
	}

	popular, err := db.PopularTags(ctx, 10)
	if err != nil {
		t.Fatalf("PopularTags: %v", err)
	}
	if len(popular) != 2 || popular[0].Tag.Name != "a" || popular[0].Usage.UsageCount != 2 {
		t.Errorf("popular = %+v", popular)
	}

	recent, err := db.RecentTagsForUser(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("RecentTagsForUser: %v", err)
	}
	if len(recent) != 1 || recent[0].Tag.Name != "a" || recent[0].Usage.UsageCount != 1 {
		t.Errorf("recent for u1 = %+v", recent)
	}
}

func TestSearchSubstring(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustCreate(t, db, "tag-1", "Go", "language", base)
	mustCreate(t, db, "tag-2", "golf", "", base.Add(time.Minute))
	mustCreate(t, db, "tag-3", "tennis", "not go-related", base.Add(2*time.Minute))
	mustCreate(t, db, "tag-4", "100%", "", base)

	tags, total, err := db.SearchSubstring(ctx, "go", 10, 0)
	if err != nil {
		t.Fatalf("SearchSubstring: %v", err)
	}
	if total != 3 || len(tags) != 3 {
		t.Fatalf("total = %d, len = %d, want 3", total, len(tags))
	}
	if tags[0].Name != "tennis" || tags[1].Name != "golf" || tags[2].Name != "Go" {
		t.Errorf("expected recency order, got %s, %s, %s", tags[0].Name, tags[1].Name, tags[2].Name)
	}

	page, total, _ := db.SearchSubstring(ctx, "go", 1, 1)
	if total != 3 || len(page) != 1 || page[0].Name != "golf" {
		t.Errorf("paged = %v (total %d)", page, total)
	}

	pct, _, _ := db.SearchSubstring(ctx, "%", 10, 0)
	if len(pct) != 1 || pct[0].Name != "100%" {
		t.Errorf("LIKE metacharacters should be literal, got %v", pct)
	}
}

func TestInTx_RollsBack(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.InTx(ctx, func(q *Queries) error {
		if err := q.CreateTag(ctx, &models.Tag{ID: "tag-1", Name: "temp", CreatedAt: base, UpdatedAt: base}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx err = %v", err)
	}
	if got, _ := db.GetTagByID(ctx, "tag-1"); got != nil {
		t.Error("tag should not exist after rollback")
	}
}

func TestSources(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustCreate(t, db, "tag-1", "a", "", base)

	if err := db.UpsertSource(ctx, models.TagSource{Path: "a.md", Checksum: "c1", TagID: "tag-1"}); err != nil {
		t.Fatalf("UpsertSource: %v", err)
	}
	_ = db.UpsertSource(ctx, models.TagSource{Path: "a.md", Checksum: "c2", TagID: "tag-1"})
	all, err := db.AllSources(ctx)
	if err != nil || all["a.md"].Checksum != "c2" {
		t.Fatalf("AllSources = %v, %v", all, err)
	}
	_ = db.DeleteSource(ctx, "a.md")
	all, _ = db.AllSources(ctx)
	if len(all) != 0 {
		t.Errorf("expected no sources, got %v", all)
	}
}
